// Package testutil provides shared test helpers for qcline packages.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tphakala/qcline/internal/conf"
	"github.com/tphakala/qcline/internal/history"
)

// Common test timeout constants.
const (
	// DefaultTestTimeout is the standard timeout for most async test operations.
	DefaultTestTimeout = 5 * time.Second

	// ShortTestTimeout is for operations expected to complete quickly.
	ShortTestTimeout = 1 * time.Second
)

// WriteConfig writes body to a config.yaml in a fresh temp dir and returns
// its path.
func WriteConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// LoadSettings loads the built-in defaults overlaid with body.
func LoadSettings(t *testing.T, body string) *conf.Settings {
	t.Helper()
	settings, err := conf.Load(WriteConfig(t, body))
	require.NoError(t, err)
	return settings
}

// SeededSettings loads the defaults with a fixed random seed.
func SeededSettings(t *testing.T, seed int64) *conf.Settings {
	t.Helper()
	return LoadSettings(t, fmt.Sprintf("simulation:\n  seed: %d\n", seed))
}

// HistoryStore opens an in-memory history private to the test and closes it
// on cleanup.
func HistoryStore(t *testing.T) *history.Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	store, err := history.Open(fmt.Sprintf("file:test_%s?mode=memory&cache=shared", name), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// ReceiveWithin waits for a value on ch or fails after timeout.
func ReceiveWithin[T any](t *testing.T, ch <-chan T, timeout time.Duration, msg string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		require.FailNow(t, msg)
	}
	var zero T
	return zero
}
