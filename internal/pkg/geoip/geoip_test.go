package geoip_test

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"folio/internal/pkg/geoip"

	"github.com/stretchr/testify/assert"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolverWithoutDatabase(t *testing.T) {
	t.Run("empty path disables resolution", func(t *testing.T) {
		r := geoip.Open("", testLogger())

		assert.False(t, r.Enabled())
		assert.Equal(t, "", r.CountryCode("8.8.8.8"))
		assert.NoError(t, r.Close())
	})

	t.Run("missing file disables resolution", func(t *testing.T) {
		r := geoip.Open(filepath.Join(t.TempDir(), "missing.mmdb"), testLogger())

		assert.False(t, r.Enabled())
		assert.Equal(t, "", r.CountryCode("8.8.8.8"))
	})

	t.Run("corrupt file disables resolution", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.mmdb")
		assert.NoError(t, os.WriteFile(path, []byte("not a maxmind database"), 0o600))

		r := geoip.Open(path, testLogger())

		assert.False(t, r.Enabled())
	})

	t.Run("nil resolver is safe", func(t *testing.T) {
		var r *geoip.Resolver
		assert.False(t, r.Enabled())
		assert.Equal(t, "", r.CountryCode("1.1.1.1"))
	})
}

func TestCountryCodeSkipsLocalAddresses(t *testing.T) {
	r := geoip.Open("", testLogger())

	for _, ip := range []string{"127.0.0.1", "10.0.0.4", "192.168.1.20", "::1", "not-an-ip", ""} {
		assert.Equal(t, "", r.CountryCode(ip), ip)
	}
}
