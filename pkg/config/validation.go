package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Struct tags handle the declarative checks; validateCustomRules covers the
// cross-field rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// A chunk must always fit a fresh repository; otherwise no allocation can
	// ever succeed for it.
	if int64(cfg.Drive.ChunkSize) > cfg.Drive.MaxRepoSize {
		return fmt.Errorf("drive: chunk_size (%d) must not exceed max_repo_size (%d)",
			cfg.Drive.ChunkSize, cfg.Drive.MaxRepoSize)
	}

	if cfg.GitHub.Token == "" && cfg.GitHub.TokenFile == "" {
		return fmt.Errorf("github: one of token or token_file must be set")
	}
	if cfg.GitHub.Token != "" && cfg.GitHub.TokenFile != "" {
		return fmt.Errorf("github: token and token_file are mutually exclusive")
	}
	if cfg.GitHub.TokenFile != "" {
		if _, err := os.Stat(cfg.GitHub.TokenFile); err != nil {
			return fmt.Errorf("github: token_file %s: %w", cfg.GitHub.TokenFile, err)
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
