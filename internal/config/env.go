package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LoadFromEnv loads configuration from environment variables
// Environment variables override file and default values
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("NUDGE_MAX_EVENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Buffer.MaxEvents = n
		}
	}
	envSeconds("NUDGE_MAX_AGE", &cfg.Buffer.MaxAge)

	if v := os.Getenv("NUDGE_SENSITIVITY"); v != "" {
		if s, err := strconv.ParseFloat(v, 64); err == nil {
			_ = cfg.SetSensitivity(s)
		}
	}

	envSeconds("NUDGE_FAST_INTERVAL", &cfg.Sensing.FastInterval)
	envSeconds("NUDGE_FAST_COOLDOWN", &cfg.Sensing.FastCooldown)
	envSeconds("NUDGE_SLOW_INTERVAL", &cfg.Sensing.SlowInterval)
	envSeconds("NUDGE_FOCUS_WINDOW", &cfg.Focus.Window)
	envSeconds("NUDGE_MISS_COOLDOWN", &cfg.Focus.MissCooldown)
	envSeconds("NUDGE_HIT_COOLDOWN", &cfg.Focus.HitCooldown)

	if policy := os.Getenv("NUDGE_POLICY"); policy != "" {
		_ = cfg.SetPolicy(policy)
	}

	// Reasoning configuration
	if provider := os.Getenv("NUDGE_REASONING_PROVIDER"); provider != "" {
		cfg.Reasoning.Provider = strings.ToLower(provider)
	}
	if command := os.Getenv("NUDGE_REASONING_COMMAND"); command != "" {
		cfg.Reasoning.Command = command
	}
	if model := os.Getenv("NUDGE_REASONING_MODEL"); model != "" {
		cfg.Reasoning.Model = model
	}
	if baseURL := os.Getenv("NUDGE_REASONING_BASE_URL"); baseURL != "" {
		cfg.Reasoning.BaseURL = baseURL
	}
	envSeconds("NUDGE_REASONING_TIMEOUT", &cfg.Reasoning.Timeout)

	if dirs := os.Getenv("NUDGE_WATCH_DIRS"); dirs != "" {
		cfg.Producers.WatchDirs = filepath.SplitList(dirs)
	}
	if v := os.Getenv("NUDGE_CLIPBOARD"); v != "" {
		if val, err := strconv.ParseBool(v); err == nil {
			cfg.Producers.Clipboard = val
		}
	}

	// Database configuration
	if dbPath := os.Getenv("NUDGE_DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	// Daemon configuration
	if pidFile := os.Getenv("NUDGE_PID_FILE"); pidFile != "" {
		cfg.Daemon.PIDFile = pidFile
	}

	// Web configuration
	if webHost := os.Getenv("NUDGE_WEB_HOST"); webHost != "" {
		cfg.Web.Host = webHost
	}

	if webPort := os.Getenv("NUDGE_WEB_PORT"); webPort != "" {
		if port, err := strconv.Atoi(webPort); err == nil && port > 0 && port <= 65535 {
			cfg.Web.Port = port
		}
	}
}

func envSeconds(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
		*dst = time.Duration(seconds) * time.Second
	}
}

// New creates a new Config with default values and loads from environment
func New() *Config {
	cfg := Default()
	LoadFromEnv(cfg)
	return cfg
}
