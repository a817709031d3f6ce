package events_test

import (
	"testing"

	"folio/internal/testsupport"
)

func TestMain(m *testing.M) {
	testsupport.RunTests(m)
}
