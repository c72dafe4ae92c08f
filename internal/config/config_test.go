package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wendysoncomercial-beep/transcricao-voz-0800/internal/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 1, cfg.Workers.Count)
	assert.Equal(t, types.DefaultProcessingOptions(), cfg.Defaults)
	assert.Equal(t, -16.0, cfg.Loudness.Target().IntegratedLUFS)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8088
workers:
  count: 2
defaults:
  model_size: small
  left_label: Agent
  right_label: Customer
  temperatures: [0.0, 0.5]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Workers.Count)
	assert.Equal(t, "small", cfg.Defaults.ModelSize)
	assert.Equal(t, "Agent", cfg.Defaults.LeftLabel)
	assert.Equal(t, []float64{0.0, 0.5}, cfg.Defaults.Temperatures)
	// untouched keys keep their defaults
	assert.Equal(t, 8, cfg.Defaults.BeamSize)
	assert.Equal(t, "outputs", cfg.Storage.OutputDir)
	assert.Nil(t, cfg.Defaults.StartClock)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 8088\n")
	t.Setenv("TRANSCRIBER_SERVER_PORT", "9090")
	t.Setenv("TRANSCRIBER_STORAGE_OUTPUT_DIR", "/data/out")
	t.Setenv("TRANSCRIBER_GDRIVE_FOLDER_NAME", "Calls")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/data/out", cfg.Storage.OutputDir)
	assert.Equal(t, "Calls", cfg.GoogleDrive.FolderName)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero workers", "workers:\n  count: 0\n"},
		{"bad model", "defaults:\n  model_size: huge\n"},
		{"beam too large", "defaults:\n  beam_size: 17\n"},
		{"malformed yaml", "server: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestValidate_ModelSizeWrapsSentinel(t *testing.T) {
	cfg := Default()
	cfg.Defaults.ModelSize = "xl"
	assert.ErrorIs(t, cfg.Validate(), types.ErrInvalidOption)
}
