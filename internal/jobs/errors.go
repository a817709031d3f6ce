package jobs

import (
	"errors"
	"fmt"
)

var errPanicked = errors.New("job panicked")

func errUnknownJob(name string) error {
	return fmt.Errorf("unknown job %q", name)
}
