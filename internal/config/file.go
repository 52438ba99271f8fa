package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// fileConfig mirrors the TOML layout. Durations are whole seconds.
type fileConfig struct {
	Buffer struct {
		MaxEvents     int `toml:"max_events"`
		MaxAgeSeconds int `toml:"max_age_seconds"`
	} `toml:"buffer"`

	Scorer struct {
		Sensitivity float64 `toml:"sensitivity"`
	} `toml:"scorer"`

	Sensing struct {
		FastIntervalSeconds int `toml:"fast_interval_seconds"`
		FastWindowSeconds   int `toml:"fast_window_seconds"`
		FastCooldownSeconds int `toml:"fast_cooldown_seconds"`
		SlowIntervalSeconds int `toml:"slow_interval_seconds"`
	} `toml:"sensing"`

	Focus struct {
		WindowSeconds         int    `toml:"window_seconds"`
		MissCooldownSeconds   int    `toml:"miss_cooldown_seconds"`
		HitCooldownSeconds    int    `toml:"hit_cooldown_seconds"`
		SnapshotMaxAgeSeconds int    `toml:"snapshot_max_age_seconds"`
		Policy                string `toml:"policy"`
		TimelineCap           int    `toml:"timeline_cap"`
	} `toml:"focus"`

	Reasoning struct {
		Provider       string   `toml:"provider"`
		Command        string   `toml:"command"`
		Args           []string `toml:"args"`
		TimeoutSeconds int      `toml:"timeout_seconds"`
		Model          string   `toml:"model"`
		BaseURL        string   `toml:"base_url"`
		APIKeyEnv      string   `toml:"api_key_env"`
	} `toml:"reasoning"`

	Capability struct {
		SearchTimeoutMillis int `toml:"search_timeout_millis"`
		SearchLimit         int `toml:"search_limit"`
	} `toml:"capability"`

	Producers struct {
		Window                  *bool    `toml:"window"`
		WindowIntervalMillis    int      `toml:"window_interval_millis"`
		Clipboard               *bool    `toml:"clipboard"`
		ClipboardIntervalMillis int      `toml:"clipboard_interval_millis"`
		WatchDirs               []string `toml:"watch_dirs"`
	} `toml:"producers"`

	Database struct {
		Path string `toml:"path"`
	} `toml:"database"`

	Web struct {
		Host string `toml:"host"`
		Port int    `toml:"port"`
	} `toml:"web"`
}

// Load builds the effective configuration: defaults, then the TOML file
// (explicit path, or the first one found under the XDG config locations),
// then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = FindFile()
	}
	if path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return cfg, err
		}
	}

	LoadFromEnv(cfg)
	return cfg, nil
}

// LoadFile overlays the TOML file at path onto cfg. Keys absent from the
// file leave cfg untouched.
func LoadFile(cfg *Config, path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	fc.apply(cfg)
	return nil
}

// FindFile returns the first existing config file, or "".
func FindFile() string {
	for _, p := range filePaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func filePaths() []string {
	var paths []string

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "nudge", "config.toml"))
	}

	home, _ := os.UserHomeDir()
	if home != "" {
		paths = append(paths, filepath.Join(home, ".config", "nudge", "config.toml"))
	}

	return paths
}

func (fc *fileConfig) apply(cfg *Config) {
	setInt(&cfg.Buffer.MaxEvents, fc.Buffer.MaxEvents)
	setSeconds(&cfg.Buffer.MaxAge, fc.Buffer.MaxAgeSeconds)

	if fc.Scorer.Sensitivity != 0 {
		_ = cfg.SetSensitivity(fc.Scorer.Sensitivity)
	}

	setSeconds(&cfg.Sensing.FastInterval, fc.Sensing.FastIntervalSeconds)
	setSeconds(&cfg.Sensing.FastWindow, fc.Sensing.FastWindowSeconds)
	setSeconds(&cfg.Sensing.FastCooldown, fc.Sensing.FastCooldownSeconds)
	setSeconds(&cfg.Sensing.SlowInterval, fc.Sensing.SlowIntervalSeconds)

	setSeconds(&cfg.Focus.Window, fc.Focus.WindowSeconds)
	setSeconds(&cfg.Focus.MissCooldown, fc.Focus.MissCooldownSeconds)
	setSeconds(&cfg.Focus.HitCooldown, fc.Focus.HitCooldownSeconds)
	setSeconds(&cfg.Focus.SnapshotMaxAge, fc.Focus.SnapshotMaxAgeSeconds)
	setInt(&cfg.Focus.TimelineCap, fc.Focus.TimelineCap)
	if fc.Focus.Policy != "" {
		cfg.Focus.Policy = strings.ToLower(fc.Focus.Policy)
	}

	setString(&cfg.Reasoning.Provider, strings.ToLower(fc.Reasoning.Provider))
	setString(&cfg.Reasoning.Command, fc.Reasoning.Command)
	if len(fc.Reasoning.Args) > 0 {
		cfg.Reasoning.Args = fc.Reasoning.Args
	}
	setSeconds(&cfg.Reasoning.Timeout, fc.Reasoning.TimeoutSeconds)
	setString(&cfg.Reasoning.Model, fc.Reasoning.Model)
	setString(&cfg.Reasoning.BaseURL, fc.Reasoning.BaseURL)
	setString(&cfg.Reasoning.APIKeyEnv, fc.Reasoning.APIKeyEnv)

	if fc.Capability.SearchTimeoutMillis > 0 {
		cfg.Capability.SearchTimeout = time.Duration(fc.Capability.SearchTimeoutMillis) * time.Millisecond
	}
	setInt(&cfg.Capability.SearchLimit, fc.Capability.SearchLimit)

	if fc.Producers.Window != nil {
		cfg.Producers.Window = *fc.Producers.Window
	}
	if fc.Producers.WindowIntervalMillis > 0 {
		cfg.Producers.WindowInterval = time.Duration(fc.Producers.WindowIntervalMillis) * time.Millisecond
	}
	if fc.Producers.Clipboard != nil {
		cfg.Producers.Clipboard = *fc.Producers.Clipboard
	}
	if fc.Producers.ClipboardIntervalMillis > 0 {
		cfg.Producers.ClipboardInterval = time.Duration(fc.Producers.ClipboardIntervalMillis) * time.Millisecond
	}
	if len(fc.Producers.WatchDirs) > 0 {
		cfg.Producers.WatchDirs = make([]string, len(fc.Producers.WatchDirs))
		for i, d := range fc.Producers.WatchDirs {
			cfg.Producers.WatchDirs[i] = expandHome(d)
		}
	}

	setString(&cfg.Database.Path, expandHome(fc.Database.Path))
	setString(&cfg.Web.Host, fc.Web.Host)
	setInt(&cfg.Web.Port, fc.Web.Port)
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setSeconds(dst *time.Duration, seconds int) {
	if seconds > 0 {
		*dst = time.Duration(seconds) * time.Second
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
