package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/habitcast?sslmode=disable")
	t.Setenv("PROJECT_ROOT", "/srv/habitcast")
	t.Setenv("TTS_SERVER_URL", "")
	t.Setenv("TTS_SERVER_PORT", "")
	t.Setenv("AUDIO_GENERATION_TZ", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.APIPort)
	assert.Equal(t, "http://127.0.0.1:5000", cfg.TTSBaseURL)
	assert.Equal(t, "/generate_audio", cfg.TTSGeneratePath)
	assert.Equal(t, 300, cfg.TTSWarmupAttempts)
	assert.Equal(t, time.Second, cfg.TTSWarmupDelay)
	assert.Equal(t, 150*time.Second, cfg.TTSFileTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.TTSFilePoll)
	assert.Equal(t, "0 1 * * *", cfg.GenerationSchedule)
	assert.Equal(t, filepath.Join("/srv/habitcast", "audio", "generated"), cfg.AudioOutputDir)
	assert.Equal(t, "openai", cfg.ScriptProvider)
	assert.Equal(t, "gpt-4o", cfg.ScriptModel)
	assert.Equal(t, time.Local, cfg.GenerationLocation)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/habitcast?sslmode=disable")
	t.Setenv("TTS_SERVER_URL", "http://10.0.0.2:5000/")
	t.Setenv("TTS_GENERATE_PATH", "synth")
	t.Setenv("TTS_WARMUP_ATTEMPTS", "not-a-number")
	t.Setenv("AUDIO_GENERATION_TZ", "Europe/Berlin")
	t.Setenv("SCRIPT_PROVIDER", "Gemini")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://10.0.0.2:5000", cfg.TTSBaseURL)
	assert.Equal(t, "/synth", cfg.TTSGeneratePath)
	assert.Equal(t, 300, cfg.TTSWarmupAttempts, "invalid ints fall back to the default")
	assert.Equal(t, "Europe/Berlin", cfg.GenerationLocation.String())
	assert.Equal(t, "gemini", cfg.ScriptProvider)
}

func TestLoadValidation(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("DATABASE_URL", "postgres://localhost/habitcast")
	t.Setenv("AUDIO_GENERATION_TZ", "Mars/Olympus")
	_, err = Load()
	require.Error(t, err)

	t.Setenv("AUDIO_GENERATION_TZ", "")
	t.Setenv("SCRIPT_PROVIDER", "llama")
	_, err = Load()
	require.Error(t, err)
}
