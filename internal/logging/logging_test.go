package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitJSONComponent(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Config{Level: "debug", Format: "json", Output: &buf}))
	t.Cleanup(func() { _ = Init(Config{Level: "warn"}) })

	logger := Component("driver")
	logger.Debug().Str("pattern", "Name:").Msg("waiting")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "driver", entry["component"])
	require.Equal(t, "waiting", entry["message"])
	require.Equal(t, "Name:", entry["pattern"])
}

func TestInitRejectsBadInput(t *testing.T) {
	require.Error(t, Init(Config{Level: "loud"}))
	require.Error(t, Init(Config{Format: "xml"}))
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Config{Level: "error", Format: "json", Output: &buf}))
	t.Cleanup(func() { _ = Init(Config{Level: "warn"}) })

	logger := Component("cli")
	logger.Info().Msg("hidden")
	require.Zero(t, buf.Len())

	logger.Error().Msg("shown")
	require.Contains(t, buf.String(), "shown")
}
