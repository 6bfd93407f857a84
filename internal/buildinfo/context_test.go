package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextGetters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		ctx       *Context
		version   string
		buildDate string
		runID     string
	}{
		{
			name:      "nil context",
			ctx:       nil,
			version:   UnknownValue,
			buildDate: UnknownValue,
			runID:     UnknownValue,
		},
		{
			name:      "empty fields",
			ctx:       NewContext("", "", ""),
			version:   UnknownValue,
			buildDate: UnknownValue,
			runID:     UnknownValue,
		},
		{
			name:      "populated",
			ctx:       NewContext("1.2.0-beta.1", "2026-05-01", "run-1"),
			version:   "1.2.0-beta.1",
			buildDate: "2026-05-01",
			runID:     "run-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var info BuildInfo = tt.ctx
			assert.Equal(t, tt.version, info.GetVersion())
			assert.Equal(t, tt.buildDate, info.GetBuildDate())
			assert.Equal(t, tt.runID, info.GetRunID())
		})
	}
}

func TestRelease(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "qcline@1.0.0", NewContext("1.0.0", "", "").Release())
	assert.Equal(t, "qcline@dev", Current("x").Release())
}
