package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jason-c-dev/opencode-flow/internal/domain"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Retry     RetryConfig      `yaml:"retry"`
	Breaker   BreakerConfig    `yaml:"breaker"`
	Registry  RegistryConfig   `yaml:"registry"`
	Memory    MemoryConfig     `yaml:"memory"`
	Engine    EngineConfig     `yaml:"engine"`
	Logger    LoggerConfig     `yaml:"logger"`
	Tracer    TracerConfig     `yaml:"tracer"`
	Agents    []domain.AgentConfig `yaml:"agents,omitempty"`
	Schedules []ScheduleConfig `yaml:"schedules,omitempty"`
}

// ServerConfig points at the OpenCode server and bounds the HTTP client.
type ServerConfig struct {
	BaseURL        string        `yaml:"base_url"`
	ConnTimeout    time.Duration `yaml:"conn_timeout"`
	RespTimeout    time.Duration `yaml:"resp_timeout"`
	RequestsPerSec float64       `yaml:"requests_per_sec"` // 0 = unlimited
	Burst          int           `yaml:"burst"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"` // event stream backoff
}

// RetryConfig bounds the gateway's retry policy, the only retry point in
// the system.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
}

// BreakerConfig configures the circuit breaker around prompt sends.
type BreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// RegistryConfig tunes agent health supervision.
type RegistryConfig struct {
	ProbeInterval    time.Duration `yaml:"probe_interval"`
	FailureTolerance time.Duration `yaml:"failure_tolerance"`
}

// MemoryConfig selects and locates the coordination store backend.
type MemoryConfig struct {
	Backend string `yaml:"backend"` // "file" or "sqlite"
	Dir     string `yaml:"dir"`     // file backend
	Path    string `yaml:"path"`    // sqlite backend
}

// EngineConfig tunes the execution engine.
type EngineConfig struct {
	DefaultTimeout time.Duration `yaml:"default_timeout"` // 0 = unbounded
	ContextBudget  int           `yaml:"context_budget"`  // tokens for rendered prior results
	TokenModel     string        `yaml:"token_model"`     // tiktoken model for counting
}

// LoggerConfig controls slog output.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// TracerConfig controls OpenTelemetry tracing.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout" or "noop"
}

// ScheduleConfig is one recurring task execution.
type ScheduleConfig struct {
	Name     string               `yaml:"name"`
	Schedule string               `yaml:"schedule"` // cron expression or duration
	Task     domain.TaskExecution `yaml:"task"`
}

// Default returns a config with all defaults applied.
func Default() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML config file, applies defaults, and validates.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://127.0.0.1:4096"
	}
	if c.Server.ConnTimeout == 0 {
		c.Server.ConnTimeout = 30 * time.Second
	}
	if c.Server.RespTimeout == 0 {
		c.Server.RespTimeout = 5 * time.Minute
	}
	if c.Server.Burst == 0 {
		c.Server.Burst = 10
	}
	if c.Server.ReconnectDelay == 0 {
		c.Server.ReconnectDelay = 3 * time.Second
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = 250 * time.Millisecond
	}
	if c.Breaker.MaxFailures == 0 {
		c.Breaker.MaxFailures = 5
	}
	if c.Breaker.Timeout == 0 {
		c.Breaker.Timeout = 30 * time.Second
	}
	if c.Breaker.Interval == 0 {
		c.Breaker.Interval = 60 * time.Second
	}
	if c.Registry.ProbeInterval == 0 {
		c.Registry.ProbeInterval = 10 * time.Second
	}
	if c.Registry.FailureTolerance == 0 {
		c.Registry.FailureTolerance = 30 * time.Second
	}
	if c.Memory.Backend == "" {
		c.Memory.Backend = "file"
	}
	if c.Memory.Dir == "" {
		c.Memory.Dir = "./data/memory"
	}
	if c.Memory.Path == "" {
		c.Memory.Path = "./data/memory.db"
	}
	if c.Engine.ContextBudget == 0 {
		c.Engine.ContextBudget = 4000
	}
	if c.Engine.TokenModel == "" {
		c.Engine.TokenModel = "gpt-4"
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "text"
	}
	if c.Tracer.Exporter == "" {
		c.Tracer.Exporter = "noop"
	}
}
