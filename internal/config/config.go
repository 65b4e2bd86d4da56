// Package config resolves settings from defaults, a .env file, FILEPROC_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rescp17/fileproc/internal/logger"
	"github.com/rescp17/fileproc/pkg/transfer"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. FILEPROC_ADDR.
const EnvPrefix = "FILEPROC"

// Config carries the settings of both the invoke client and the daemon. Keys
// match the flag names.
type Config struct {
	// client
	Addr            string        `mapstructure:"addr"`
	Timeout         time.Duration `mapstructure:"timeout"`
	ChunkSize       int           `mapstructure:"chunk-size"`
	Progress        bool          `mapstructure:"progress"`
	Discover        bool          `mapstructure:"discover"`
	DiscoverTimeout time.Duration `mapstructure:"discover-timeout"`

	// daemon
	Listen      string `mapstructure:"listen"`
	WorkDir     string `mapstructure:"work-dir"`
	Ghostscript string `mapstructure:"ghostscript"`
	MaxJobs     int    `mapstructure:"max-jobs"`
	Announce    bool   `mapstructure:"announce"`
	Echo        bool   `mapstructure:"echo"`
	// StatsInterval is how often runtime stats are logged; 0 disables them.
	StatsInterval time.Duration `mapstructure:"stats-interval"`

	LogLevel string `mapstructure:"log-level"`
	LogFile  string `mapstructure:"log-file"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", "localhost:50051")
	v.SetDefault("timeout", 5*time.Minute)
	v.SetDefault("chunk-size", transfer.DefaultChunkSize)
	v.SetDefault("progress", false)
	v.SetDefault("discover", false)
	v.SetDefault("discover-timeout", 3*time.Second)

	v.SetDefault("listen", ":50051")
	v.SetDefault("work-dir", "")
	v.SetDefault("ghostscript", "gs")
	v.SetDefault("max-jobs", 4)
	v.SetDefault("announce", false)
	v.SetDefault("echo", false)
	v.SetDefault("stats-interval", time.Minute)

	v.SetDefault("log-level", "info")
	v.SetDefault("log-file", "")
}

// Load resolves the configuration. flags may be nil; only flags the user set
// override the environment. A missing envFile is not an error; an empty
// envFile means ".env".
func Load(flags *pflag.FlagSet, envFile string) (*Config, error) {
	if err := loadDotEnv(envFile); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	return &cfg, nil
}

func loadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Validate checks the values shared by both programs.
func (c *Config) Validate() error {
	if !transfer.IsValidChunkSize(c.ChunkSize) {
		return fmt.Errorf("chunk-size must be between %d and %d, got %d", transfer.MinChunkSize, transfer.MaxChunkSize, c.ChunkSize)
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.MaxJobs < 1 {
		return fmt.Errorf("max-jobs must be at least 1, got %d", c.MaxJobs)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// TransferConfig returns the chunking settings for the client.
func (c *Config) TransferConfig() *transfer.Config {
	tc := transfer.DefaultConfig()
	tc.ChunkSize = c.ChunkSize
	return tc
}
