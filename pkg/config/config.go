// Package config loads, defaults and validates the gitdrive configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete gitdrive configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (GITDRIVE_*)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// GitHub configures the hosting account and credentials
	GitHub GitHubConfig `mapstructure:"github"`

	// Drive configures chunking, capacity and local working state
	Drive DriveConfig `mapstructure:"drive"`

	// Transfer configures retry, backoff, pacing and parallelism
	Transfer TransferConfig `mapstructure:"transfer"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// GitHubConfig identifies the hosting account gitdrive stores into.
//
// The token is read from Token if set, otherwise from the file at TokenFile.
// Exactly one of the two must be configured.
type GitHubConfig struct {
	// Owner is the account or organization owning the drive's repositories
	Owner string `mapstructure:"owner" validate:"required"`

	// Token is the access token, inline. Prefer TokenFile so the token stays
	// out of the config file.
	Token string `mapstructure:"token"`

	// TokenFile is the path of a file holding the access token
	TokenFile string `mapstructure:"token_file"`

	// CommitterName and CommitterEmail sign the commits gitdrive creates
	CommitterName  string `mapstructure:"committer_name" validate:"required"`
	CommitterEmail string `mapstructure:"committer_email" validate:"required"`
}

// DriveConfig configures the drive's layout and local state.
type DriveConfig struct {
	// MetadataRepo is the repository holding the metadata snapshot
	MetadataRepo string `mapstructure:"metadata_repo" validate:"required"`

	// ChunkSize is the split size in bytes. Must not exceed MaxRepoSize.
	ChunkSize int `mapstructure:"chunk_size" validate:"required,gt=0"`

	// MaxRepoSize is the per-repository capacity ceiling in bytes
	MaxRepoSize int64 `mapstructure:"max_repo_size" validate:"required,gt=0"`

	// WorkDir roots the drive lock and per-operation staging clones
	WorkDir string `mapstructure:"work_dir" validate:"required"`
}

// TransferConfig tunes the transfer engine. Zero values fall back to the
// engine's defaults.
type TransferConfig struct {
	// MaxAttempts bounds tries per transfer, first attempt included
	MaxAttempts int `mapstructure:"max_attempts" validate:"gte=0"`

	// InitialInterval, Multiplier and MaxInterval shape the backoff curve
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`

	// RateLimitWait is the extra wait after a rate-limited failure
	RateLimitWait time.Duration `mapstructure:"rate_limit_wait"`

	// RequestsPerSecond and Burst pace backend calls; 0 disables pacing
	RequestsPerSecond uint `mapstructure:"requests_per_second"`
	Burst             uint `mapstructure:"burst"`

	// Workers bounds parallel per-repository batches
	Workers int `mapstructure:"workers" validate:"gte=0"`
}

// ResolveToken returns the access token from Token or TokenFile.
func (c *GitHubConfig) ResolveToken() (string, error) {
	if c.Token != "" {
		return c.Token, nil
	}
	data, err := os.ReadFile(c.TokenFile)
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file
// settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the GITDRIVE_ prefix and underscores.
	// Example: GITDRIVE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("GITDRIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing file is
// acceptable; defaults and environment variables take over.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "gitdrive")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "gitdrive")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
