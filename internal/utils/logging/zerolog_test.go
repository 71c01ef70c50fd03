package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Output: &buf})
	log.Info("mapping checked", Fields{"function": "fn-a", "attempt": 2})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "info", entry["level"])
	require.Equal(t, "mapping checked", entry["message"])
	require.Equal(t, "fn-a", entry["function"])
	require.EqualValues(t, 2, entry["attempt"])
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})
	log.Debug("hidden", nil)
	log.Info("hidden", nil)
	log.Warn("shown", nil)
	log.Error("shown", nil)
	require.Equal(t, 2, strings.Count(buf.String(), "shown"))
	require.NotContains(t, buf.String(), "hidden")
}

func TestNopLogger(t *testing.T) {
	var l Logger = NopLogger{}
	l.Debug("x", nil)
	l.Info("x", nil)
	l.Warn("x", nil)
	l.Error("x", Fields{"k": "v"})
}
