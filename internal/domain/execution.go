package domain

import "time"

// ExecutionMode selects the orchestration algorithm.
type ExecutionMode string

const (
	ModeParallel     ExecutionMode = "parallel"
	ModeSequential   ExecutionMode = "sequential"
	ModeHierarchical ExecutionMode = "hierarchical"
)

// Valid reports whether the mode is one of the three known algorithms.
func (m ExecutionMode) Valid() bool {
	switch m {
	case ModeParallel, ModeSequential, ModeHierarchical:
		return true
	}
	return false
}

// TaskExecution is one orchestration request. Not persisted.
type TaskExecution struct {
	Task    string        `json:"task"    yaml:"task"`
	Agents  []string      `json:"agents"  yaml:"agents"`
	Mode    ExecutionMode `json:"mode"    yaml:"mode"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// ResultStatus discriminates a fulfilled result from a rejected one.
type ResultStatus string

const (
	ResultFulfilled ResultStatus = "fulfilled"
	ResultRejected  ResultStatus = "rejected"
)

// ExecutionResult is the outcome of one agent's participation in one task.
// Exactly one of Output/Error is set, discriminated by Status.
type ExecutionResult struct {
	Agent    string        `json:"agent"`
	Status   ResultStatus  `json:"status"`
	Output   *Completion   `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
	Cost     float64       `json:"cost"`
	Tokens   TokenUsage    `json:"tokens"`
}

// Fulfilled builds a successful result from a completion.
func Fulfilled(agent string, out *Completion, duration time.Duration) ExecutionResult {
	return ExecutionResult{
		Agent:    agent,
		Status:   ResultFulfilled,
		Output:   out,
		Duration: duration,
		Cost:     out.Cost,
		Tokens:   out.Tokens,
	}
}

// Rejected builds a failed result carrying the captured error and zero
// cost/tokens.
func Rejected(agent string, err error, duration time.Duration) ExecutionResult {
	return ExecutionResult{
		Agent:    agent,
		Status:   ResultRejected,
		Error:    err.Error(),
		Duration: duration,
	}
}
