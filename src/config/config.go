// Package config loads server settings from the environment and an optional
// dotenv file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const DefaultEnvFile = ".env"

// Config holds everything the server reads at startup.
type Config struct {
	APIKey string
	// DefaultModel may be empty; calls must then name a model.
	DefaultModel string

	SessionTTL  time.Duration
	MaxSessions int

	LogLevel  string
	LogFormat string
}

// Load reads envFile into the process environment, without overriding
// variables already set, and then builds the Config. A missing file is only
// an error when it was named explicitly.
func Load(envFile string) (*Config, error) {
	explicit := envFile != ""
	if !explicit {
		envFile = DefaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return FromEnv()
}

// FromEnv builds the Config from the current environment.
func FromEnv() (*Config, error) {
	cfg := &Config{
		APIKey:       firstEnv("GOOGLE_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"),
		DefaultModel: firstEnv("GOOGLE_GEMINI_MODEL"),
		LogLevel:     strings.ToLower(firstEnv("GEMINI_MCP_LOG_LEVEL", "LOG_LEVEL")),
		LogFormat:    strings.ToLower(firstEnv("GEMINI_MCP_LOG_FORMAT", "LOG_FORMAT")),
	}

	var errs []error
	var err error
	if cfg.SessionTTL, err = envDuration("GEMINI_SESSION_TTL", time.Hour); err != nil {
		errs = append(errs, err)
	}
	if cfg.MaxSessions, err = envInt("GEMINI_SESSION_MAX", 1000); err != nil {
		errs = append(errs, err)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.APIKey == "" {
		errs = append(errs, errors.New("missing GOOGLE_GEMINI_API_KEY (or GEMINI_API_KEY / GOOGLE_API_KEY)"))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

// envDuration accepts Go durations ("90m") or plain seconds ("3600").
// Zero or negative disables the corresponding limit.
func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := firstEnv(key)
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return disabledIfNonPositive(time.Duration(secs) * time.Second), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return disabledIfNonPositive(d), nil
}

func envInt(key string, def int) (int, error) {
	v := firstEnv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if n <= 0 {
		return -1, nil
	}
	return n, nil
}

// disabledIfNonPositive maps "off" onto the registry's negative sentinel;
// zero there would mean "use the default".
func disabledIfNonPositive(d time.Duration) time.Duration {
	if d <= 0 {
		return -1
	}
	return d
}
