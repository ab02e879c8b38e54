package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_JSON(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	require.NoError(t, Setup("debug", FormatJSON, &buf))

	log.Debug().Int("track", 3).Msg("creating track")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "creating track", entry["message"])
	assert.EqualValues(t, 3, entry["track"])
}

func TestSetup_LevelFilters(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	require.NoError(t, Setup("info", FormatJSON, &buf))

	log.Debug().Msg("removing track")
	assert.Zero(t, buf.Len())

	log.Info().Msg("speed measured")
	assert.Contains(t, buf.String(), "speed measured")
}

func TestSetup_Console(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	require.NoError(t, Setup("", "", &buf))

	log.Info().Str("label", "car").Msg("object detected")
	assert.Contains(t, buf.String(), "object detected")
	assert.Contains(t, buf.String(), "car")
}

func TestSetup_Errors(t *testing.T) {
	assert.Error(t, Setup("loud", FormatJSON, nil))
	assert.Error(t, Setup("info", "xml", nil))
}
