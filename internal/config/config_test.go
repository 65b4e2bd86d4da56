package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rescp17/fileproc/pkg/transfer"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil, noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "localhost:50051", cfg.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Timeout)
	assert.Equal(t, transfer.DefaultChunkSize, cfg.ChunkSize)
	assert.Equal(t, "gs", cfg.Ghostscript)
	assert.Equal(t, 4, cfg.MaxJobs)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Precedence(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("FILEPROC_MAX_JOBS=7\nFILEPROC_LOG_LEVEL=debug\n"), 0644))
	t.Setenv("FILEPROC_ADDR", "10.0.0.5:6000")
	t.Setenv("FILEPROC_TIMEOUT", "30s")
	t.Setenv("FILEPROC_CHUNK_SIZE", "8192")
	t.Cleanup(func() {
		os.Unsetenv("FILEPROC_MAX_JOBS")
		os.Unsetenv("FILEPROC_LOG_LEVEL")
	})

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("addr", "localhost:50051", "")
	flags.Int("chunk-size", transfer.DefaultChunkSize, "")
	require.NoError(t, flags.Parse([]string{"--chunk-size", "16384"}))

	cfg, err := Load(flags, envFile)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5:6000", cfg.Addr, "environment beats an unset flag")
	assert.Equal(t, 16384, cfg.ChunkSize, "a set flag beats the environment")
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 7, cfg.MaxJobs, "read from the .env file")
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 16384, cfg.TransferConfig().ChunkSize)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(nil, noEnvFile(t))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"Chunk too small", func(c *Config) { c.ChunkSize = transfer.MinChunkSize - 1 }},
		{"Chunk too large", func(c *Config) { c.ChunkSize = transfer.MaxChunkSize + 1 }},
		{"Zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"No job slots", func(c *Config) { c.MaxJobs = 0 }},
		{"Bad log level", func(c *Config) { c.LogLevel = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
