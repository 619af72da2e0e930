package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter(t *testing.T) {
	t.Run("json format emits structured fields", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(&buf, 1, "json", false)

		log.Info().Str("chain", "ethereum").Msg("sample accepted")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "info", entry["level"])
		assert.Equal(t, "ethereum", entry["chain"])
		assert.Equal(t, "pgasmond", entry["service"])
		assert.Equal(t, "sample accepted", entry["message"])
	})

	t.Run("level filters lower entries", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(&buf, 2, "json", false)

		log.Info().Msg("dropped")
		assert.Empty(t, buf.String())

		log.Warn().Msg("kept")
		assert.Contains(t, buf.String(), "kept")
	})

	t.Run("console format is human readable", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(&buf, 0, "console", false)

		log.Debug().Msg("hello")
		assert.Contains(t, buf.String(), "hello")
		assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
	})
}
