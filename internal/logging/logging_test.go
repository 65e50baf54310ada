package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "info")
	require.NoError(t, err)

	log.Debug().Msg("hidden")
	log.Info().Str("package", "tool").Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "tool")
}

func TestNewInvalidLevel(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "loud")
	assert.Error(t, err)
}

func TestVerbosity(t *testing.T) {
	tests := []struct {
		level   string
		verbose int
		want    string
	}{
		{"warn", 0, "warn"},
		{"warn", 1, "info"},
		{"warn", 2, "debug"},
		{"warn", 9, "trace"},
		{"", 1, "info"},
		{"bogus", 1, "bogus"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Verbosity(tt.level, tt.verbose), "%s -v%d", tt.level, tt.verbose)
	}
}
