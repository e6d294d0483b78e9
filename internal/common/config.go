package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Oracle  OracleConfig  `toml:"oracle"`
	Engine  EngineConfig  `toml:"engine"`
	Logging LoggingConfig `toml:"logging"`
	RunLog  RunLogConfig  `toml:"runlog"`
}

// OracleConfig contains the advisory LLM configuration. The oracle is
// consulted for README parsing and failure diagnosis; its output is never
// trusted without validation.
type OracleConfig struct {
	Provider    string  `toml:"provider"`    // "claude" or "gemini"
	APIKey      string  `toml:"api_key"`     // API key (required)
	APIBase     string  `toml:"api_base"`    // Override API base URL (optional)
	Model       string  `toml:"model"`       // Model name (provider default when empty)
	Timeout     string  `toml:"timeout"`     // Oracle round-trip timeout as duration string (default: "2m")
	RateLimit   string  `toml:"rate_limit"`  // Minimum interval between oracle calls (default: "1s")
	MaxTokens   int     `toml:"max_tokens"`  // Maximum tokens in response (default: 4096)
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.3)
}

// EngineConfig contains the retry-loop configuration
type EngineConfig struct {
	MaxRetry              int `toml:"max_retry"`               // Maximum failed-and-diagnosed attempts (default: 5)
	TimeoutSeconds        int `toml:"timeout_seconds"`         // Build/fix command timeout (default: 300)
	PackageTimeoutSeconds int `toml:"package_timeout_seconds"` // System package-manager command timeout (default: 120)
	OutputLimitBytes      int `toml:"output_limit_bytes"`      // Captured stdout/stderr bound per attempt (default: 65536)
}

// LoggingConfig controls the arbor console/file logger
type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// RunLogConfig controls the append-only per-run build log artifact
type RunLogConfig struct {
	Path string `toml:"path"` // Run log file path (default: "compilot-run.log")
}

// NewDefaultConfig creates a configuration with default values.
// Only user-facing settings are exposed in compilot.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Oracle: OracleConfig{
			Provider:    "claude",
			APIKey:      "",
			APIBase:     "",
			Model:       "", // Provider default resolved at client construction
			Timeout:     "2m",
			RateLimit:   "1s",
			MaxTokens:   4096,
			Temperature: 0.3, // Low temperature for deterministic fix plans
		},
		Engine: EngineConfig{
			MaxRetry:              5,
			TimeoutSeconds:        300,
			PackageTimeoutSeconds: 120, // Fail fast on package database lock contention
			OutputLimitBytes:      64 * 1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		RunLog: RunLogConfig{
			Path: "compilot-run.log",
		},
	}
}

// LoadFromFile loads configuration with priority: defaults -> file -> env.
// Explicit config-file values win over environment variables; the environment
// only fills values the file left unset.
func LoadFromFile(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvFallbacks(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvFallbacks fills oracle settings from the environment when the
// config file did not set them. COMPILOT_* variables are checked first,
// then the provider-native key variables.
func applyEnvFallbacks(config *Config) {
	if config.Oracle.APIKey == "" {
		if key := os.Getenv("COMPILOT_API_KEY"); key != "" {
			config.Oracle.APIKey = key
		} else if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			config.Oracle.APIKey = key
		} else if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			config.Oracle.APIKey = key
		}
	}
	if config.Oracle.APIBase == "" {
		if base := os.Getenv("COMPILOT_API_BASE"); base != "" {
			config.Oracle.APIBase = base
		}
	}
	if config.Oracle.Model == "" {
		if model := os.Getenv("COMPILOT_MODEL"); model != "" {
			config.Oracle.Model = model
		}
	}
	if level := os.Getenv("COMPILOT_LOG_LEVEL"); level != "" {
		config.Logging.Level = strings.ToLower(level)
	}
	if maxRetry := os.Getenv("COMPILOT_MAX_RETRY"); maxRetry != "" {
		if n, err := strconv.Atoi(maxRetry); err == nil && n > 0 {
			config.Engine.MaxRetry = n
		}
	}
}

// Validate checks invariants that would otherwise surface mid-run
func (c *Config) Validate() error {
	if c.Oracle.Provider != "claude" && c.Oracle.Provider != "gemini" {
		return fmt.Errorf("invalid oracle provider %q: must be \"claude\" or \"gemini\"", c.Oracle.Provider)
	}
	if c.Engine.MaxRetry <= 0 {
		return fmt.Errorf("engine.max_retry must be > 0, got %d", c.Engine.MaxRetry)
	}
	if c.Engine.TimeoutSeconds <= 0 {
		return fmt.Errorf("engine.timeout_seconds must be > 0, got %d", c.Engine.TimeoutSeconds)
	}
	if c.Engine.PackageTimeoutSeconds <= 0 {
		return fmt.Errorf("engine.package_timeout_seconds must be > 0, got %d", c.Engine.PackageTimeoutSeconds)
	}
	if _, err := time.ParseDuration(c.Oracle.Timeout); err != nil {
		return fmt.Errorf("invalid oracle.timeout %q: %w", c.Oracle.Timeout, err)
	}
	if _, err := time.ParseDuration(c.Oracle.RateLimit); err != nil {
		return fmt.Errorf("invalid oracle.rate_limit %q: %w", c.Oracle.RateLimit, err)
	}
	return nil
}

// BuildTimeout returns the command timeout for ordinary build/fix commands
func (c *Config) BuildTimeout() time.Duration {
	return time.Duration(c.Engine.TimeoutSeconds) * time.Second
}

// PackageTimeout returns the shorter bound applied to system package-manager
// invocations so lock contention fails fast instead of hanging the run
func (c *Config) PackageTimeout() time.Duration {
	return time.Duration(c.Engine.PackageTimeoutSeconds) * time.Second
}

// OracleTimeout returns the parsed oracle round-trip timeout
func (c *Config) OracleTimeout() time.Duration {
	d, err := time.ParseDuration(c.Oracle.Timeout)
	if err != nil {
		return 2 * time.Minute
	}
	return d
}

// OracleRateLimit returns the parsed minimum interval between oracle calls
func (c *Config) OracleRateLimit() time.Duration {
	d, err := time.ParseDuration(c.Oracle.RateLimit)
	if err != nil {
		return time.Second
	}
	return d
}
