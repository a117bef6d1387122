package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Chunking defaults: 2 MiB chunks inside 20 MiB repositories. The ceiling
// stays well under the hosting service's soft repository cap so commit
// metadata and transfer overhead never push a repository over it.
const (
	DefaultChunkSize   = 2 * 1024 * 1024
	DefaultMaxRepoSize = 20 * 1024 * 1024
)

// DefaultMetadataRepo is the repository holding the metadata snapshot.
const DefaultMetadataRepo = "gitdrive-meta"

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values (0, "", false, nil) are replaced with defaults; explicit values
// are preserved. Transfer defaults are owned by the transfer engine and not
// duplicated here.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyGitHubDefaults(&cfg.GitHub)
	applyDriveDefaults(&cfg.Drive)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

// applyGitHubDefaults sets committer identity defaults.
func applyGitHubDefaults(cfg *GitHubConfig) {
	if cfg.CommitterName == "" {
		cfg.CommitterName = "gitdrive"
	}
	if cfg.CommitterEmail == "" {
		cfg.CommitterEmail = "gitdrive@localhost"
	}
}

// applyDriveDefaults sets chunking and local-state defaults.
func applyDriveDefaults(cfg *DriveConfig) {
	if cfg.MetadataRepo == "" {
		cfg.MetadataRepo = DefaultMetadataRepo
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.MaxRepoSize == 0 {
		cfg.MaxRepoSize = DefaultMaxRepoSize
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = defaultWorkDir()
	}
}

// defaultWorkDir returns the default location for the drive lock and staging
// clones.
func defaultWorkDir() string {
	if xdgState := os.Getenv("XDG_STATE_HOME"); xdgState != "" {
		return filepath.Join(xdgState, "gitdrive")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "gitdrive")
	}
	return filepath.Join(home, ".local", "state", "gitdrive")
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for generating sample configuration files, testing, and
// documentation.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Transfer: TransferConfig{
			MaxAttempts:       6,
			InitialInterval:   time.Second,
			Multiplier:        2.0,
			MaxInterval:       60 * time.Second,
			RateLimitWait:     20 * time.Second,
			RequestsPerSecond: 5,
			Burst:             10,
			Workers:           8,
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
