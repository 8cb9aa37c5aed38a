package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLoggerMethods(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	l := NewZerologLogger("test")
	if l == nil {
		t.Fatalf("nil logger")
	}
	l.Debugf("debug %d", 1)
	l.Debugw("debug", map[string]any{"k": 1})
	l.Infof("info %s", "test")
	l.Warnf("warn")
	l.Warnw("warn", map[string]any{"participant": "p1"})
	l.Errorf("error")
}

func TestNewWithWriterFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "clearer", "warn")
	l.Infof("dropped")
	l.Warnw("fallback bid", map[string]any{"participant": "boiler"})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "clearer", entry["component"])
	assert.Equal(t, "boiler", entry["participant"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "fallback bid", entry["message"])
}

func TestNewWithWriterDefaultLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "x", "bogus")
	l.Debugf("hidden")
	l.Infof("shown")
	assert.Contains(t, buf.String(), "shown")
	assert.NotContains(t, buf.String(), "hidden")
}
