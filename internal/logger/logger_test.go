package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"trace", LevelTrace, false},
		{"DEBUG", LevelDebug, false},
		{"", LevelInfo, false},
		{"warning", LevelWarning, false},
		{"Error", LevelError, false},
		{"fatal", LevelFatal, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.wantErr, err != nil, tt.in)
	}
}

func TestSetupJSON(t *testing.T) {
	var buf bytes.Buffer
	Setup(Options{Level: "debug", Format: "json", Output: &buf})
	t.Cleanup(func() { Setup(Options{}) })

	Debug("rule set reloaded", "rules", 3)
	Logger.Log(context.Background(), LevelTrace, "hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "DEBUG", entry["level"])
	assert.Equal(t, "rule set reloaded", entry["msg"])
	assert.EqualValues(t, 3, entry["rules"])
}

func TestSetupTextUsesCustomLevelNames(t *testing.T) {
	var buf bytes.Buffer
	Setup(Options{Level: "trace", Format: "text", Output: &buf})
	t.Cleanup(func() { Setup(Options{}) })

	Logger.Log(context.Background(), LevelTrace, "walking tree")
	assert.Contains(t, buf.String(), "walking tree")
}

func TestWarnAndErrorAlwaysCount(t *testing.T) {
	var buf bytes.Buffer
	Setup(Options{Output: &buf, ErrorSampleRate: 1000000})
	t.Cleanup(func() { Setup(Options{}) })

	warnings, errs := TotalWarnings.Load(), TotalErrors.Load()
	for i := 0; i < 10; i++ {
		Warn("w")
		Error("e")
	}
	assert.Equal(t, warnings+10, TotalWarnings.Load())
	assert.Equal(t, errs+10, TotalErrors.Load())
}
