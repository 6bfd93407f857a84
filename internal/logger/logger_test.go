package logger_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/qcline/internal/logger"
)

// decodeLines parses every JSON log line in buf
func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for line := range strings.SplitSeq(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestSlogLoggerLevels(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC)

	log.Debug("hidden")
	log.Trace("hidden")
	log.Info("visible", logger.String("lane", "L1"))
	log.Warn("also visible")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "visible", lines[0]["msg"])
	assert.Equal(t, "L1", lines[0]["lane"])
	assert.Equal(t, "WARN", lines[1]["level"])
}

func TestModuleAndFields(t *testing.T) {
	buf := &bytes.Buffer{}
	base := logger.NewSlogLogger(buf, logger.LogLevelDebug, time.UTC)

	lineLog := base.Module("line").Module("lane").With(logger.String("lane", "L2"))
	lineLog.Debug("spawned",
		logger.Uint64("item_id", 7),
		logger.Float64("height", 45.123456),
		logger.Duration("elapsed", 1500*time.Millisecond),
		logger.Error(nil))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "line.lane", lines[0]["module"])
	assert.Equal(t, "L2", lines[0]["lane"])
	assert.InDelta(t, 45.123, lines[0]["height"], 1e-9)
	assert.Equal(t, "1.5s", lines[0]["elapsed"])
}

func TestWithContextTraceID(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC)

	ctx := logger.WithTraceID(t.Context(), "req-42")
	log.WithContext(ctx).Info("handled")
	log.WithContext(t.Context()).Info("plain")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "req-42", lines[0]["trace_id"])
	assert.NotContains(t, lines[1], "trace_id")
}

func TestLogExplicitLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelWarn, time.UTC)

	log.Log(logger.LogLevelInfo, "dropped")
	log.Log(logger.LogLevelError, "kept")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "kept", lines[0]["msg"])
}

func TestCentralLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "qcline.log")

	cl, err := logger.NewCentralLogger(&logger.LoggingConfig{
		DefaultLevel: "debug",
		Timezone:     "UTC",
		Console:      &logger.ConsoleOutput{Enabled: false},
		FileOutput:   &logger.FileOutput{Enabled: true, Path: path, Level: "debug"},
		ModuleLevels: map[string]string{"quiet": "error"},
	})
	require.NoError(t, err)

	cl.Module("simulator").Info("tick", logger.Int("items", 3))
	cl.Module("quiet").Info("suppressed")
	require.NoError(t, cl.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	data := string(raw)
	assert.Contains(t, data, `"module":"simulator"`)
	assert.Contains(t, data, `"items":3`)
	assert.NotContains(t, data, "suppressed")
}

func TestCentralLoggerRejectsBadTimezone(t *testing.T) {
	_, err := logger.NewCentralLogger(&logger.LoggingConfig{Timezone: "Mars/Olympus"})
	assert.Error(t, err)

	_, err = logger.NewCentralLogger(nil)
	assert.Error(t, err)
}
