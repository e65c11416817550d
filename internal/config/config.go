// Package config loads tutorloop settings from .env, an optional YAML file
// and TUTORLOOP_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "TUTORLOOP_"

// DefaultFile is read when present and no explicit path is given.
const DefaultFile = "tutorloop.yaml"

// maxConfigFileSize bounds the YAML file.
const maxConfigFileSize = 1024 * 1024

// Config is the full application configuration.
type Config struct {
	DB        string          `koanf:"db"`
	Knowunity KnowunityConfig `koanf:"knowunity"`
	Run       RunConfig       `koanf:"run"`
	Trace     TraceConfig     `koanf:"trace"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Log       LogConfig       `koanf:"log"`
	Oracle    OracleConfig    `koanf:"oracle"`
}

// KnowunityConfig configures the conversation API client.
type KnowunityConfig struct {
	BaseURL   string        `koanf:"base_url"`
	APIKey    string        `koanf:"api_key"`
	Timeout   time.Duration `koanf:"timeout"`
	RateLimit float64       `koanf:"rate_limit"`
}

// RunConfig configures a batch run.
type RunConfig struct {
	SetType          string `koanf:"set_type"`
	Turns            int    `koanf:"turns"`
	MaxConversations int    `koanf:"max_conversations"`
	Parallel         int    `koanf:"parallel"`
	PredictionsPath  string `koanf:"predictions_path"`
}

// TraceConfig configures the NDJSON trace mirror.
type TraceConfig struct {
	Path string `koanf:"path"`
}

// MetricsConfig configures the Prometheus listener used during runs.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// OracleConfig configures the LLM oracle.
type OracleConfig struct {
	Verify bool `koanf:"verify"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Knowunity: KnowunityConfig{
			BaseURL:   "https://knowunity-agent-olympics-2026-api.vercel.app",
			Timeout:   60 * time.Second,
			RateLimit: 5,
		},
		Run: RunConfig{
			SetType:         "mini_dev",
			Turns:           8,
			Parallel:        1,
			PredictionsPath: "data/predictions.json",
		},
		Trace: TraceConfig{
			Path: "data/agent_traces.ndjson",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration. Precedence, highest first: TUTORLOOP_*
// environment variables (including those set by .env), the YAML file,
// defaults. An empty path reads DefaultFile when it exists.
func Load(path string) (*Config, error) {
	// .env is optional; existing environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	k := koanf.New(".")

	content, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}
	if content != nil {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// The API key is commonly provided without the prefix.
	if cfg.Knowunity.APIKey == "" {
		cfg.Knowunity.APIKey = os.Getenv("KNOWUNITY_X_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// envKey maps TUTORLOOP_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

func readConfigFile(path string) ([]byte, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	info, err := os.Stat(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return content, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Run.Turns < 1 {
		errs = append(errs, fmt.Errorf("run.turns must be at least 1, got %d", c.Run.Turns))
	}
	if c.Run.Parallel < 1 {
		errs = append(errs, fmt.Errorf("run.parallel must be at least 1, got %d", c.Run.Parallel))
	}
	if c.Run.MaxConversations < 0 {
		errs = append(errs, fmt.Errorf("run.max_conversations must not be negative, got %d", c.Run.MaxConversations))
	}
	if c.Run.SetType == "" {
		errs = append(errs, errors.New("run.set_type is required"))
	}
	if c.Knowunity.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("knowunity.rate_limit must not be negative, got %v", c.Knowunity.RateLimit))
	}
	if c.Knowunity.Timeout < 0 {
		errs = append(errs, fmt.Errorf("knowunity.timeout must not be negative, got %v", c.Knowunity.Timeout))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// RequireAPIKey reports an error when no conversation API key is set.
func (c *Config) RequireAPIKey() error {
	if c.Knowunity.APIKey == "" {
		return fmt.Errorf("%sKNOWUNITY_API_KEY (or KNOWUNITY_X_API_KEY) is required", EnvPrefix)
	}
	return nil
}
