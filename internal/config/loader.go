package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// SecretEnvVar is consulted for the webhook secret when no flag sets one.
const SecretEnvVar = "WEBHOOK_SECRET"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads a YAML config file on top of Defaults. An empty path
// returns the defaults untouched. The result is not validated; callers
// apply overrides first and then call Validate.
func Load(configPath string) (Config, error) {
	cfg := Defaults()
	if configPath == "" {
		return cfg, nil
	}

	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", absPath, err)
	}

	// Apply environment variable interpolation
	interpolated := interpolateEnv(string(data))

	dec := yaml.NewDecoder(bytes.NewReader([]byte(interpolated)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse YAML %s: %w", absPath, err)
	}

	return cfg, nil
}

// ApplyEnv overrides the file's secret with WEBHOOK_SECRET when that
// variable is set and non-empty.
func ApplyEnv(cfg Config, lookup func(string) (string, bool)) Config {
	if v, ok := lookup(SecretEnvVar); ok && v != "" {
		cfg.Secret = v
	}
	return cfg
}

// Validate checks the fields the listener cannot run without.
func Validate(cfg Config) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535 (got %d)", cfg.Port)
	}
	if cfg.RepoPath == "" {
		return fmt.Errorf("repo is required")
	}
	if strings.TrimSpace(cfg.Branch) == "" {
		return fmt.Errorf("branch is required")
	}
	if strings.ContainsAny(cfg.Branch, " \t\n") {
		return fmt.Errorf("branch %q must not contain whitespace", cfg.Branch)
	}
	if cfg.SyncTimeout <= 0 {
		return fmt.Errorf("sync_timeout must be positive")
	}
	if cfg.MaxBodySize <= 0 {
		return fmt.Errorf("max_body_size must be positive")
	}
	if cfg.GitBinary == "" {
		return fmt.Errorf("git is required")
	}
	if cfg.HistorySize < 0 {
		return fmt.Errorf("history_size must not be negative")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.LogLevel)] {
		return fmt.Errorf("log_level must be one of: debug, info, warn, error (got %q)", cfg.LogLevel)
	}
	if f := strings.ToLower(cfg.LogFormat); f != "json" && f != "text" {
		return fmt.Errorf("log_format must be json or text (got %q)", cfg.LogFormat)
	}

	if m := envVarPattern.FindStringSubmatch(cfg.Secret); len(m) > 1 {
		return fmt.Errorf("secret: environment variable ${%s} is not set", m[1])
	}

	return nil
}

// interpolateEnv replaces ${VAR} with its value. Unset variables keep
// the placeholder so Validate can name them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// ParseByteSize parses size strings like "1MB", "512KB" or "2048576".
func ParseByteSize(size string) (int64, error) {
	upper := strings.ToUpper(strings.TrimSpace(size))
	if upper == "" {
		return 0, fmt.Errorf("empty size")
	}

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(upper, "KB"):
		multiplier = 1024
		upper = strings.TrimSuffix(upper, "KB")
	case strings.HasSuffix(upper, "MB"):
		multiplier = 1024 * 1024
		upper = strings.TrimSuffix(upper, "MB")
	case strings.HasSuffix(upper, "GB"):
		multiplier = 1024 * 1024 * 1024
		upper = strings.TrimSuffix(upper, "GB")
	}

	value, err := strconv.ParseInt(strings.TrimSpace(upper), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value %q: %w", size, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}

	result := value * multiplier
	if result/multiplier != value {
		return 0, fmt.Errorf("size too large")
	}
	return result, nil
}
