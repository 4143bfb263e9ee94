package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultPoolSize, cfg.Pool.Size)
	assert.Equal(t, DefaultReconnectWindow, cfg.Pool.ReconnectWindow)
	assert.Equal(t, DefaultSweepInterval, cfg.Pool.SweepInterval)
	assert.Equal(t, DefaultSeekCooldown, cfg.Playback.SeekCooldown)
	assert.Equal(t, DefaultCallTimeout, cfg.Engines.CallTimeout)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 8080
pool:
  size: 3
  reconnect_window: 90s
playback:
  seek_cooldown: 1500ms
engines:
  transcription_url: http://asr:8001
  call_timeout: 4s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Pool.Size)
	assert.Equal(t, 90*time.Second, cfg.Pool.ReconnectWindow)
	assert.Equal(t, 1500*time.Millisecond, cfg.Playback.SeekCooldown)
	assert.Equal(t, "http://asr:8001", cfg.Engines.TranscriptionURL)
	assert.Equal(t, 4*time.Second, cfg.Engines.CallTimeout)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pool:\n  size: 3\n"), 0o644))

	t.Setenv("POOL_SIZE", "7")
	t.Setenv("RECONNECT_WINDOW_MS", "60000")
	t.Setenv("SEEK_COOLDOWN_MS", "2500")
	t.Setenv("ASR_API_URL", "http://asr.internal:9000")
	t.Setenv("AI_API_URL", "http://ai.internal:9001")
	t.Setenv("EXTERNAL_CALL_TIMEOUT_MS", "10000")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Pool.Size)
	assert.Equal(t, time.Minute, cfg.Pool.ReconnectWindow)
	assert.Equal(t, 2500*time.Millisecond, cfg.Playback.SeekCooldown)
	assert.Equal(t, "http://asr.internal:9000", cfg.Engines.TranscriptionURL)
	assert.Equal(t, "http://ai.internal:9001", cfg.Engines.AIURL)
	assert.Equal(t, MaxCallTimeout, cfg.Engines.CallTimeout)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pool: [unterminated"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
