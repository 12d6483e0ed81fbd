package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	defer os.Chdir(wd)

	config, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0.5, config.Threshold)
	assert.Equal(t, 512, config.SectorSize)
	assert.Equal(t, 4096, config.ClusterSize)
	assert.Equal(t, "recuperabit_output", config.OutputDir)
	assert.Equal(t, "auto", config.Color)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	content := "threshold: 0.8\ncluster_size: 8192\noutput_dir: /tmp/out\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("FSRECOVER_COLOR", "never")

	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.8, config.Threshold)
	assert.Equal(t, 8192, config.ClusterSize)
	assert.Equal(t, "/tmp/out", config.OutputDir)
	assert.Equal(t, "never", config.Color)
}

func TestLoadRejects(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("threshold: 2\n"), 0644))
	_, err = Load(bad)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	valid := Config{Threshold: 0.5, SectorSize: 512, ChunkSectors: 8, ClusterSize: 4096, Color: "auto"}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"sector size", func(c *Config) { c.SectorSize = 500 }},
		{"chunk", func(c *Config) { c.ChunkSectors = 0 }},
		{"cluster", func(c *Config) { c.ClusterSize = 3000 }},
		{"color", func(c *Config) { c.Color = "blue" }},
		{"threshold", func(c *Config) { c.Threshold = -0.1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid
			tt.mutate(&config)
			assert.ErrorIs(t, config.Validate(), ErrInvalidConfig)
		})
	}
}
