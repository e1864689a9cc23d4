package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONIncludesFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "debug", Format: "json", Output: &buf})
	l.Named("tracker").Debug("poll", "store_key", "uABC", "progress", 40)

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "poll", line["@message"])
	assert.Equal(t, "mediacid.tracker", line["@module"])
	assert.Equal(t, "uABC", line["store_key"])
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "warn", Output: &buf})
	l.Info("hidden")
	l.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "chatty", Output: &buf})
	l.Debug("dbg")
	l.Info("inf")
	out := buf.String()
	assert.False(t, strings.Contains(out, "dbg"))
	assert.True(t, strings.Contains(out, "inf"))
}

func TestOr(t *testing.T) {
	assert.NotNil(t, Or(nil))
	l := NewNop()
	assert.Equal(t, l, Or(l))
}
