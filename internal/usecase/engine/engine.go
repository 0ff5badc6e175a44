// Package engine orchestrates task execution across registered agents in
// parallel, sequential, or hierarchical mode.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jason-c-dev/opencode-flow/internal/domain"
	"github.com/jason-c-dev/opencode-flow/internal/infra/tracer"
	"github.com/jason-c-dev/opencode-flow/internal/usecase/registry"
)

// TokenCapper bounds rendered context by token count. A nil capper disables
// capping.
type TokenCapper interface {
	Truncate(s string, maxTokens int) string
}

// Config tunes the engine.
type Config struct {
	DefaultTimeout time.Duration // 0 = unbounded
	ContextBudget  int           // max tokens of rendered prior results
}

// Engine dispatches task executions. It owns no persistent state; everything
// flows through the registry, the gateway, and the coordination store.
type Engine struct {
	registry *registry.Registry
	gateway  domain.Gateway
	store    domain.MemoryStore
	bus      domain.EventBus
	capper   TokenCapper
	config   Config
	logger   *slog.Logger
}

// New creates an execution engine. bus and capper may be nil.
func New(
	reg *registry.Registry,
	gateway domain.Gateway,
	store domain.MemoryStore,
	bus domain.EventBus,
	capper TokenCapper,
	cfg Config,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		registry: reg,
		gateway:  gateway,
		store:    store,
		bus:      bus,
		capper:   capper,
		config:   cfg,
		logger:   logger,
	}
}

// Execute runs one task across the named agents according to the mode.
// All preconditions are checked before any remote call: every agent must be
// registered, the list must be non-empty, and hierarchical mode needs at
// least two agents.
func (e *Engine) Execute(ctx context.Context, task domain.TaskExecution) ([]domain.ExecutionResult, error) {
	if len(task.Agents) == 0 {
		return nil, domain.NewDomainError("Engine.Execute", domain.ErrInvalidExecution, "empty agent list")
	}
	if !task.Mode.Valid() {
		return nil, domain.NewDomainError("Engine.Execute", domain.ErrInvalidExecution,
			"unknown mode "+string(task.Mode))
	}
	for _, name := range task.Agents {
		if !e.registry.Has(name) {
			return nil, domain.NewDomainError("Engine.Execute", domain.ErrAgentNotFound, name)
		}
	}
	if task.Mode == domain.ModeHierarchical && len(task.Agents) < 2 {
		return nil, domain.NewDomainError("Engine.Execute", domain.ErrInvalidExecution,
			"hierarchical mode needs a coordinator and at least one worker")
	}

	timeout := task.Timeout
	if timeout == 0 {
		timeout = e.config.DefaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	runID := ulid.Make().String()

	ctx, span := tracer.StartSpan(ctx, "engine.execute")
	span.SetAttributes(
		tracer.StringAttr("run_id", runID),
		tracer.StringAttr("mode", string(task.Mode)),
		tracer.IntAttr("agents", len(task.Agents)),
	)
	defer span.End()

	e.publishEvent(ctx, domain.EventTaskStarted, map[string]string{
		"run_id": runID, "mode": string(task.Mode),
	})
	e.logger.Info("task started", "run_id", runID, "mode", string(task.Mode), "agents", len(task.Agents))

	var results []domain.ExecutionResult
	var err error
	switch task.Mode {
	case domain.ModeParallel:
		results = e.runParallel(ctx, task.Agents, task.Task)
	case domain.ModeSequential:
		results, err = e.runSequential(ctx, task.Agents, task.Task)
	case domain.ModeHierarchical:
		results, err = e.runHierarchical(ctx, task.Agents, task.Task)
	}

	if err != nil {
		tracer.RecordError(span, err)
		e.publishEvent(ctx, domain.EventTaskFailed, map[string]string{
			"run_id": runID, "mode": string(task.Mode), "error": err.Error(),
		})
		e.logger.Error("task failed", "run_id", runID, "mode", string(task.Mode), "error", err)
		return nil, err
	}

	e.publishEvent(ctx, domain.EventTaskCompleted, map[string]string{
		"run_id": runID, "mode": string(task.Mode),
	})
	e.logger.Info("task completed", "run_id", runID, "mode", string(task.Mode), "results", len(results))
	return results, nil
}

// runAgent sends one prompt to one agent and does the status and metrics
// bookkeeping around the call. A failed call leaves the agent in Error
// status; it is never marked Idle again by this run.
func (e *Engine) runAgent(ctx context.Context, name, text string) domain.ExecutionResult {
	agent, err := e.registry.Get(name)
	if err != nil {
		return domain.Rejected(name, err, 0)
	}

	e.registry.UpdateStatus(name, domain.StatusBusy)
	start := time.Now()

	out, err := e.gateway.SendPrompt(ctx, domain.PromptRequest{
		SessionID:  agent.SessionID,
		Text:       text,
		ProviderID: agent.Config.Provider,
		ModelID:    agent.Config.Model,
		Tools:      agent.Config.Tools,
	})
	elapsed := time.Since(start)

	if err != nil {
		e.registry.UpdateStatus(name, domain.StatusError)
		e.logger.Warn("agent call failed", "agent", name, "error", err)
		return domain.Rejected(name, err, elapsed)
	}

	e.registry.UpdateMetrics(name, domain.MetricsDelta{
		Cost:    out.Cost,
		Tokens:  out.Tokens,
		Latency: &elapsed,
	})
	e.registry.UpdateStatus(name, domain.StatusIdle)
	return domain.Fulfilled(name, out, elapsed)
}

func (e *Engine) publishEvent(ctx context.Context, eventType domain.EventType, payload map[string]string) {
	if e.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	e.bus.Publish(ctx, domain.Event{Type: eventType, Timestamp: time.Now(), Payload: data})
}
