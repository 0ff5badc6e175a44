package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// AgentStatus reflects what an agent is currently doing.
type AgentStatus string

const (
	StatusIdle  AgentStatus = "idle"
	StatusBusy  AgentStatus = "busy"
	StatusError AgentStatus = "error"
)

// AgentConfig describes a named agent instance. Immutable after spawn.
type AgentConfig struct {
	Name         string   `json:"name"           yaml:"name"`
	Type         string   `json:"type"           yaml:"type"`
	Model        string   `json:"model"          yaml:"model"`
	Provider     string   `json:"provider,omitempty"      yaml:"provider,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	Tools        []string `json:"tools,omitempty"         yaml:"tools,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"   yaml:"temperature,omitempty"`
	QualityFloor *float64 `json:"quality_floor,omitempty" yaml:"quality_floor,omitempty"`
}

// Validate checks the config for caller errors before any remote work starts.
func (c AgentConfig) Validate() error {
	if c.Name == "" {
		return NewDomainError("AgentConfig.Validate", ErrInvalidConfig, "name is required")
	}
	if strings.IndexFunc(c.Name, unicode.IsSpace) >= 0 {
		return NewDomainError("AgentConfig.Validate", ErrInvalidConfig,
			fmt.Sprintf("name %q contains whitespace", c.Name))
	}
	if c.Type == "" {
		return NewDomainError("AgentConfig.Validate", ErrInvalidConfig, "type is required")
	}
	if c.Model == "" {
		return NewDomainError("AgentConfig.Validate", ErrInvalidConfig, "model is required")
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 1) {
		return NewDomainError("AgentConfig.Validate", ErrInvalidConfig,
			fmt.Sprintf("temperature %v out of range [0,1]", *c.Temperature))
	}
	return nil
}

// TokenUsage counts prompt and completion tokens.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Add accumulates another usage sample.
func (u *TokenUsage) Add(other TokenUsage) {
	u.Input += other.Input
	u.Output += other.Output
}

// AgentMetrics accumulates per-agent usage. Never reset while the handle lives.
type AgentMetrics struct {
	TasksCompleted int           `json:"tasks_completed"`
	TotalCost      float64       `json:"total_cost"`
	TotalTokens    TokenUsage    `json:"total_tokens"`
	AverageLatency time.Duration `json:"average_latency"`
}

// Agent is one locally-tracked agent handle bound to a remote session.
type Agent struct {
	Name         string       `json:"name"`
	SessionID    string       `json:"session_id"`
	Config       AgentConfig  `json:"config"`
	Status       AgentStatus  `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
	LastActivity time.Time    `json:"last_activity"`
	Metrics      AgentMetrics `json:"metrics"`
}

// MetricsDelta is one additive metrics sample. A non-nil Latency marks a
// completed task and feeds the running average.
type MetricsDelta struct {
	Cost    float64
	Tokens  TokenUsage
	Latency *time.Duration
}
