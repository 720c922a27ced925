package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: "INFO", Format: "json"}, &buf)
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("import applied", zap.Int("weeks", 3))
	require.NoError(t, log.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "import applied", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, float64(3), entry["weeks"])
	assert.Contains(t, entry, "ts")
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(DefaultConfig(), &buf)
	require.NoError(t, err)
	log.Info("dropped")
	log.Warn("sqlite backend unavailable")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "sqlite backend unavailable")
}

func TestValidate(t *testing.T) {
	assert.Error(t, Config{Level: "loud", Format: "json"}.Validate())
	assert.Error(t, Config{Level: "info", Format: "xml"}.Validate())
	assert.NoError(t, DefaultConfig().Validate())
}
