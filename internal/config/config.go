package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Event buffer bounds
	Buffer BufferConfig

	// Burst scoring
	Scorer ScorerConfig

	// Fast and slow loop scheduling
	Sensing SensingConfig

	// Focus detector tuning
	Focus FocusConfig

	// External reasoning service
	Reasoning ReasoningConfig

	// Capability catalog search
	Capability CapabilityConfig

	// Event producers
	Producers ProducersConfig

	// Database configuration
	Database DatabaseConfig

	// Daemon configuration
	Daemon DaemonConfig

	// Web server configuration
	Web WebConfig
}

// BufferConfig bounds the in-memory event log
type BufferConfig struct {
	MaxEvents int           // Maximum retained events
	MaxAge    time.Duration // Events older than this are dropped
}

// ScorerConfig tunes the burst scorer
type ScorerConfig struct {
	Sensitivity float64 // Clamped to [0.5, 2.0]; higher is more eager
}

// SensingConfig schedules the two detection loops
type SensingConfig struct {
	FastInterval time.Duration // Burst loop period
	FastWindow   time.Duration // Events considered by the burst scorer
	FastCooldown time.Duration // Minimum gap between burst judgments
	SlowInterval time.Duration // Focus loop period
}

// FocusConfig tunes the three-layer focus detector
type FocusConfig struct {
	Window         time.Duration // Events considered by one cycle
	MissCooldown   time.Duration // Wait after a cycle that found nothing
	HitCooldown    time.Duration // Wait after a cycle that emitted a result
	SnapshotMaxAge time.Duration // Tab snapshots older than this are ignored
	Policy         string        // "relaxed", "normal" or "strict"
	TimelineCap    int           // Most recent timeline entries kept
}

// ReasoningConfig selects and configures the reasoning backend
type ReasoningConfig struct {
	Provider  string        // "cli", "http" or "none"
	Command   string        // CLI binary, e.g. "claude"
	Args      []string      // Extra CLI arguments placed before the prompt
	Timeout   time.Duration // Hard limit per call
	Model     string        // HTTP model name
	BaseURL   string        // HTTP base URL (OpenAI-compatible)
	APIKeyEnv string        // Environment variable holding the API key
}

// CapabilityConfig tunes capability search
type CapabilityConfig struct {
	SearchTimeout time.Duration // Hard limit per search
	SearchLimit   int           // Maximum results requested
}

// ProducersConfig enables and tunes the built-in event producers
type ProducersConfig struct {
	Window            bool          // Poll the focused window
	WindowInterval    time.Duration // Window poll period
	Clipboard         bool          // Poll the clipboard
	ClipboardInterval time.Duration // Clipboard poll period
	WatchDirs         []string      // Directories watched for file operations
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Path string // Path to SQLite database file
}

// DaemonConfig holds daemon process configuration
type DaemonConfig struct {
	PIDFile string // Path to PID file for daemon management
	LogFile string // Where a detached daemon writes its log
}

// WebConfig holds web server configuration
type WebConfig struct {
	Host string // Host to bind web server to
	Port int    // Port for web server
}

const (
	PolicyRelaxed = "relaxed"
	PolicyNormal  = "normal"
	PolicyStrict  = "strict"

	ProviderCLI  = "cli"
	ProviderHTTP = "http"
	ProviderNone = "none"
)

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Buffer: BufferConfig{
			MaxEvents: 400,
			MaxAge:    600 * time.Second,
		},
		Scorer: ScorerConfig{
			Sensitivity: 1.0,
		},
		Sensing: SensingConfig{
			FastInterval: 2 * time.Second,
			FastWindow:   2 * time.Minute,
			FastCooldown: 30 * time.Second,
			SlowInterval: 30 * time.Second,
		},
		Focus: FocusConfig{
			Window:         5 * time.Minute,
			MissCooldown:   60 * time.Second,
			HitCooldown:    10 * time.Minute,
			SnapshotMaxAge: 5 * time.Minute,
			Policy:         PolicyNormal,
			TimelineCap:    15,
		},
		Reasoning: ReasoningConfig{
			Provider:  ProviderCLI,
			Command:   "claude",
			Timeout:   30 * time.Second,
			Model:     "gpt-4o-mini",
			BaseURL:   "https://api.openai.com/v1",
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Capability: CapabilityConfig{
			SearchTimeout: 3 * time.Second,
			SearchLimit:   5,
		},
		Producers: ProducersConfig{
			Window:            true,
			WindowInterval:    time.Second,
			Clipboard:         true,
			ClipboardInterval: time.Second,
		},
		Database: DatabaseConfig{
			Path: "", // Empty means use default ~/.config/nudge/nudge.db
		},
		Daemon: DaemonConfig{
			PIDFile: fmt.Sprintf("/tmp/nudge-%d.pid", os.Getuid()),
			LogFile: fmt.Sprintf("/tmp/nudge-%d.log", os.Getuid()),
		},
		Web: WebConfig{
			Host: "localhost",
			Port: 10000 + os.Getuid()%50000, // Default port based on user ID
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Buffer.MaxEvents < 1 {
		return fmt.Errorf("buffer max events must be positive, got %d", c.Buffer.MaxEvents)
	}
	if c.Buffer.MaxAge <= 0 {
		return fmt.Errorf("buffer max age must be positive")
	}

	if c.Sensing.FastInterval <= 0 || c.Sensing.SlowInterval <= 0 {
		return fmt.Errorf("loop intervals must be positive")
	}
	if c.Sensing.FastWindow <= 0 {
		return fmt.Errorf("fast window must be positive")
	}
	if c.Sensing.FastCooldown < 0 || c.Focus.MissCooldown < 0 || c.Focus.HitCooldown < 0 {
		return fmt.Errorf("cooldowns cannot be negative")
	}

	if c.Focus.Window <= 0 {
		return fmt.Errorf("focus window must be positive")
	}
	if c.Focus.Window > c.Buffer.MaxAge {
		return fmt.Errorf("focus window (%v) cannot exceed buffer max age (%v)", c.Focus.Window, c.Buffer.MaxAge)
	}
	if c.Focus.TimelineCap < 1 {
		return fmt.Errorf("timeline cap must be positive, got %d", c.Focus.TimelineCap)
	}
	if _, err := EvidenceMinimum(c.Focus.Policy); err != nil {
		return err
	}

	switch c.Reasoning.Provider {
	case ProviderCLI:
		if c.Reasoning.Command == "" {
			return fmt.Errorf("reasoning command cannot be empty for the cli provider")
		}
	case ProviderHTTP:
		if c.Reasoning.BaseURL == "" {
			return fmt.Errorf("reasoning base URL cannot be empty for the http provider")
		}
	case ProviderNone:
	default:
		return fmt.Errorf("unknown reasoning provider %q", c.Reasoning.Provider)
	}
	if c.Reasoning.Timeout <= 0 {
		return fmt.Errorf("reasoning timeout must be positive")
	}
	if c.Capability.SearchTimeout <= 0 {
		return fmt.Errorf("capability search timeout must be positive")
	}

	// Validate web config
	if c.Web.Port < 1 || c.Web.Port > 65535 {
		return fmt.Errorf("web port must be between 1 and 65535, got %d", c.Web.Port)
	}

	if c.Web.Host == "" {
		return fmt.Errorf("web host cannot be empty")
	}

	// Validate daemon config
	if c.Daemon.PIDFile == "" {
		return fmt.Errorf("PID file path cannot be empty")
	}

	return nil
}

// EvidenceMinimum maps a policy name to how many objective metrics must clear
// their bar before the reasoning service may answer "high".
func EvidenceMinimum(policy string) (int, error) {
	switch strings.ToLower(policy) {
	case PolicyRelaxed:
		return 1, nil
	case PolicyNormal, "":
		return 2, nil
	case PolicyStrict:
		return 3, nil
	default:
		return 0, fmt.Errorf("unknown focus policy %q (want relaxed, normal or strict)", policy)
	}
}

// SetSensitivity sets the scorer sensitivity with validation
func (c *Config) SetSensitivity(sensitivity float64) error {
	if sensitivity < 0.5 || sensitivity > 2.0 {
		return fmt.Errorf("sensitivity must be between 0.5 and 2.0, got %v", sensitivity)
	}
	c.Scorer.Sensitivity = sensitivity
	return nil
}

// SetPolicy sets the focus evidence policy with validation
func (c *Config) SetPolicy(policy string) error {
	if _, err := EvidenceMinimum(policy); err != nil {
		return err
	}
	c.Focus.Policy = strings.ToLower(policy)
	return nil
}

// SetWebPort sets the web server port with validation
func (c *Config) SetWebPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	c.Web.Port = port
	return nil
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf(`Configuration:
  Buffer:
    Max Events: %d
    Max Age: %v
  Scorer:
    Sensitivity: %.2f
  Sensing:
    Fast Interval: %v
    Fast Window: %v
    Fast Cooldown: %v
    Slow Interval: %v
  Focus:
    Window: %v
    Miss Cooldown: %v
    Hit Cooldown: %v
    Snapshot Max Age: %v
    Policy: %s
  Reasoning:
    Provider: %s
    Timeout: %v
  Capability:
    Search Timeout: %v
  Producers:
    Window: %v (%v)
    Clipboard: %v (%v)
    Watch Dirs: %s
  Database:
    Path: %s
  Daemon:
    PID File: %s
  Web:
    Host: %s
    Port: %d`,
		c.Buffer.MaxEvents,
		c.Buffer.MaxAge,
		c.Scorer.Sensitivity,
		c.Sensing.FastInterval,
		c.Sensing.FastWindow,
		c.Sensing.FastCooldown,
		c.Sensing.SlowInterval,
		c.Focus.Window,
		c.Focus.MissCooldown,
		c.Focus.HitCooldown,
		c.Focus.SnapshotMaxAge,
		c.Focus.Policy,
		c.Reasoning.Provider,
		c.Reasoning.Timeout,
		c.Capability.SearchTimeout,
		c.Producers.Window,
		c.Producers.WindowInterval,
		c.Producers.Clipboard,
		c.Producers.ClipboardInterval,
		strings.Join(c.Producers.WatchDirs, ", "),
		c.Database.Path,
		c.Daemon.PIDFile,
		c.Web.Host,
		c.Web.Port,
	)
}
