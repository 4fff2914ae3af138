// Package config gathers the menuboard CLI settings from the environment.
// A .env file in the working directory is loaded first when present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"menuboard/internal/core"
	"menuboard/internal/toast"
)

const (
	EnvAPIURL        = "MENUBOARD_API_URL"
	EnvAPIToken      = "MENUBOARD_API_TOKEN"
	EnvClientUID     = "MENUBOARD_CLIENT_UID"
	EnvAPITimeout    = "MENUBOARD_API_TIMEOUT"
	EnvOnFailure     = "MENUBOARD_ON_FAILURE"
	EnvToastDismiss  = "MENUBOARD_TOAST_DISMISS_MS"
	EnvLogLevel      = "MENUBOARD_LOG_LEVEL"
	EnvMetricsOutput = "MENUBOARD_METRICS"
)

// Config is the resolved CLI configuration.
type Config struct {
	Remote  RemoteConfig
	Sync    SyncConfig
	Log     LogConfig
	Metrics bool
}

// RemoteConfig addresses the menu backend.
type RemoteConfig struct {
	BaseURL   string
	Token     string
	ClientUID string
	Timeout   time.Duration
}

// SyncConfig tunes the optimistic sync coordinator.
type SyncConfig struct {
	FailurePolicy core.FailurePolicy
	DismissDelay  time.Duration
}

// LogConfig selects the slog level.
type LogConfig struct {
	Level slog.Level
}

// Load reads the configuration. Missing env files are ignored; the default
// file is .env.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
	}

	timeout, err := time.ParseDuration(getEnv(EnvAPITimeout, "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", EnvAPITimeout, err)
	}
	dismissMS, err := strconv.Atoi(getEnv(EnvToastDismiss, strconv.FormatInt(toast.DefaultDismissDelay.Milliseconds(), 10)))
	if err != nil || dismissMS < 0 {
		return nil, fmt.Errorf("invalid %s: %q", EnvToastDismiss, os.Getenv(EnvToastDismiss))
	}
	policy, err := ParseFailurePolicy(getEnv(EnvOnFailure, "keep"))
	if err != nil {
		return nil, err
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(getEnv(EnvLogLevel, "info"))); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", EnvLogLevel, err)
	}
	metrics, err := strconv.ParseBool(getEnv(EnvMetricsOutput, "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", EnvMetricsOutput, err)
	}

	return &Config{
		Remote: RemoteConfig{
			BaseURL:   getEnv(EnvAPIURL, ""),
			Token:     getEnv(EnvAPIToken, ""),
			ClientUID: getEnv(EnvClientUID, ""),
			Timeout:   timeout,
		},
		Sync: SyncConfig{
			FailurePolicy: policy,
			DismissDelay:  time.Duration(dismissMS) * time.Millisecond,
		},
		Log:     LogConfig{Level: level},
		Metrics: metrics,
	}, nil
}

// ParseFailurePolicy maps keep|rollback onto a coordinator policy.
func ParseFailurePolicy(value string) (core.FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "keep":
		return core.FailureKeep, nil
	case "rollback":
		return core.FailureRollback, nil
	default:
		return 0, fmt.Errorf("invalid %s: %q", EnvOnFailure, value)
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
