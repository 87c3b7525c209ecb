// Package config loads the agent daemon configuration from YAML with
// environment variable overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultListenAddr       = "0.0.0.0:8080"
	DefaultProvider         = "anthropic"
	DefaultMaxSteps         = 10
	DefaultPoolWorkers      = 4
	DefaultQueueDepth       = 64
	DefaultPlanningTimeout  = 60 * time.Second
	DefaultSynthesisTimeout = 60 * time.Second
	DefaultToolTimeout      = 30 * time.Second
	DefaultSessionTimeout   = 5 * time.Minute
	DefaultHeartbeat        = 15 * time.Second
	DefaultRetention        = 10 * time.Minute
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
)

// Config is the full daemon configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Provider ProviderConfig `yaml:"provider"`
	Planner  PlannerConfig  `yaml:"planner"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Session  SessionConfig  `yaml:"session"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig covers the HTTP listener and stream keepalives.
type ServerConfig struct {
	ListenAddr        string        `yaml:"listen_addr"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// ProviderConfig selects and authenticates the completion model.
type ProviderConfig struct {
	// Type is "anthropic" or "openai".
	Type   string `yaml:"type"`
	Model  string `yaml:"model"`
	APIKey string `yaml:"api_key"`
}

// PlannerConfig bounds plan shape and the planning call.
type PlannerConfig struct {
	MaxSteps        int           `yaml:"max_steps"`
	PlanningTimeout time.Duration `yaml:"planning_timeout"`
}

// DispatchConfig sizes the shared worker pool.
type DispatchConfig struct {
	Workers     int           `yaml:"workers"`
	QueueDepth  int           `yaml:"queue_depth"`
	ToolTimeout time.Duration `yaml:"tool_timeout"`
}

// SessionConfig bounds session lifetime and retention.
type SessionConfig struct {
	SessionTimeout   time.Duration `yaml:"session_timeout"`
	SynthesisTimeout time.Duration `yaml:"synthesis_timeout"`
	Retention        time.Duration `yaml:"retention"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:        DefaultListenAddr,
			HeartbeatInterval: DefaultHeartbeat,
		},
		Provider: ProviderConfig{
			Type: DefaultProvider,
		},
		Planner: PlannerConfig{
			MaxSteps:        DefaultMaxSteps,
			PlanningTimeout: DefaultPlanningTimeout,
		},
		Dispatch: DispatchConfig{
			Workers:     DefaultPoolWorkers,
			QueueDepth:  DefaultQueueDepth,
			ToolTimeout: DefaultToolTimeout,
		},
		Session: SessionConfig{
			SessionTimeout:   DefaultSessionTimeout,
			SynthesisTimeout: DefaultSynthesisTimeout,
			Retention:        DefaultRetention,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing file is not
// an error; environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if key := os.Getenv("AGENTCORE_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
		if cfg.Provider.Type == "" {
			cfg.Provider.Type = "openai"
		}
	}
	if addr := os.Getenv("AGENTCORE_LISTEN_ADDR"); addr != "" {
		cfg.Server.ListenAddr = addr
	}
	if level := os.Getenv("AGENTCORE_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr must not be empty")
	}
	if c.Server.HeartbeatInterval <= 0 {
		return fmt.Errorf("server.heartbeat_interval must be positive")
	}
	switch c.Provider.Type {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("provider.type must be anthropic or openai, got %q", c.Provider.Type)
	}
	if c.Planner.MaxSteps < 1 {
		return fmt.Errorf("planner.max_steps must be at least 1")
	}
	if c.Planner.PlanningTimeout <= 0 {
		return fmt.Errorf("planner.planning_timeout must be positive")
	}
	if c.Dispatch.Workers < 1 {
		return fmt.Errorf("dispatch.workers must be at least 1")
	}
	if c.Dispatch.QueueDepth < 0 {
		return fmt.Errorf("dispatch.queue_depth must not be negative")
	}
	if c.Dispatch.ToolTimeout <= 0 {
		return fmt.Errorf("dispatch.tool_timeout must be positive")
	}
	if c.Session.SessionTimeout <= 0 {
		return fmt.Errorf("session.session_timeout must be positive")
	}
	if c.Session.SynthesisTimeout <= 0 {
		return fmt.Errorf("session.synthesis_timeout must be positive")
	}
	if c.Session.Retention <= 0 {
		return fmt.Errorf("session.retention must be positive")
	}
	return nil
}
