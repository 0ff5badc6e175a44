// Package registry tracks live agents and supervises their remote sessions.
package registry

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jason-c-dev/opencode-flow/internal/domain"
)

// Config holds configuration for the agent registry.
type Config struct {
	ProbeInterval    time.Duration
	FailureTolerance time.Duration
}

// entry pairs an agent handle with its health-probe lifetime.
type entry struct {
	agent     *domain.Agent
	probeStop context.CancelFunc
	stopOnce  sync.Once
}

// Registry owns the set of live agents. Every agent maps to one remote
// session; the registry is the only component that creates or deletes
// sessions on an agent's behalf.
type Registry struct {
	mu      sync.RWMutex
	agents  map[string]*entry
	gateway domain.Gateway
	bus     domain.EventBus
	config  Config
	logger  *slog.Logger
}

// New creates an agent registry. bus may be nil.
func New(gateway domain.Gateway, bus domain.EventBus, cfg Config, logger *slog.Logger) *Registry {
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 10 * time.Second
	}
	if cfg.FailureTolerance <= 0 {
		cfg.FailureTolerance = 30 * time.Second
	}
	return &Registry{
		agents:  make(map[string]*entry),
		gateway: gateway,
		bus:     bus,
		config:  cfg,
		logger:  logger,
	}
}

// Spawn validates the config, creates a remote session, and registers the
// agent. The system prompt, when present, is sent to the fresh session
// before the agent becomes visible.
func (r *Registry) Spawn(ctx context.Context, cfg domain.AgentConfig) (*domain.Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	_, exists := r.agents[cfg.Name]
	r.mu.RUnlock()
	if exists {
		return nil, domain.NewDomainError("Registry.Spawn", domain.ErrAgentExists, cfg.Name)
	}

	// Session creation is slow remote work; keep it outside the lock.
	sessionID, err := r.gateway.CreateSession(ctx, cfg.Name)
	if err != nil {
		return nil, domain.NewDomainError("Registry.Spawn", domain.ErrSpawnFailed, err.Error())
	}

	if cfg.SystemPrompt != "" {
		_, err = r.gateway.SendPrompt(ctx, domain.PromptRequest{
			SessionID:  sessionID,
			Text:       cfg.SystemPrompt,
			ProviderID: cfg.Provider,
			ModelID:    cfg.Model,
		})
		if err != nil {
			r.deleteSession(ctx, cfg.Name, sessionID)
			return nil, domain.NewDomainError("Registry.Spawn", domain.ErrSpawnFailed, err.Error())
		}
	}

	now := time.Now()
	agent := &domain.Agent{
		Name:         cfg.Name,
		SessionID:    sessionID,
		Config:       cfg,
		Status:       domain.StatusIdle,
		CreatedAt:    now,
		LastActivity: now,
	}

	probeCtx, probeStop := context.WithCancel(context.Background())
	e := &entry{agent: agent, probeStop: probeStop}

	r.mu.Lock()
	if _, exists := r.agents[cfg.Name]; exists {
		// Lost the race to a concurrent Spawn of the same name.
		r.mu.Unlock()
		probeStop()
		r.deleteSession(ctx, cfg.Name, sessionID)
		return nil, domain.NewDomainError("Registry.Spawn", domain.ErrAgentExists, cfg.Name)
	}
	r.agents[cfg.Name] = e
	r.mu.Unlock()

	go r.probeLoop(probeCtx, cfg.Name)

	r.publishEvent(ctx, domain.EventAgentSpawned, map[string]string{
		"agent": cfg.Name, "session_id": sessionID, "model": cfg.Model,
	})
	r.logger.Info("agent spawned", "agent", cfg.Name, "session_id", sessionID, "model", cfg.Model)

	snapshot := *agent
	return &snapshot, nil
}

// Terminate removes an agent, stops its health probe, and deletes its remote
// session. Session deletion failures are logged, never propagated: the local
// handle is gone either way.
func (r *Registry) Terminate(ctx context.Context, name string) error {
	r.mu.Lock()
	e, ok := r.agents[name]
	if !ok {
		r.mu.Unlock()
		return domain.NewDomainError("Registry.Terminate", domain.ErrAgentNotFound, name)
	}
	delete(r.agents, name)
	sessionID := e.agent.SessionID
	r.mu.Unlock()

	e.stopOnce.Do(e.probeStop)

	// The health reap path calls Terminate with the probe loop's own
	// context, which the cancel above just killed. Detach so the session
	// delete still reaches the server.
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	r.deleteSession(delCtx, name, sessionID)

	r.publishEvent(ctx, domain.EventAgentTerminated, map[string]string{
		"agent": name, "session_id": sessionID,
	})
	r.logger.Info("agent terminated", "agent", name, "session_id", sessionID)
	return nil
}

// TerminateAll terminates every registered agent. Individual failures do not
// stop the sweep; the first error is returned.
func (r *Registry) TerminateAll(ctx context.Context) error {
	r.mu.RLock()
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	r.mu.RUnlock()

	var firstErr error
	for _, name := range names {
		if err := r.Terminate(ctx, name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Get returns a copy of the named agent.
func (r *Registry) Get(name string) (*domain.Agent, error) {
	r.mu.RLock()
	e, ok := r.agents[name]
	var snapshot domain.Agent
	if ok {
		snapshot = *e.agent
	}
	r.mu.RUnlock()

	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrAgentNotFound, name)
	}
	return &snapshot, nil
}

// List returns copies of all agents sorted by name.
func (r *Registry) List() []domain.Agent {
	r.mu.RLock()
	agents := make([]domain.Agent, 0, len(r.agents))
	for _, e := range r.agents {
		agents = append(agents, *e.agent)
	}
	r.mu.RUnlock()

	sort.Slice(agents, func(i, j int) bool {
		return agents[i].Name < agents[j].Name
	})
	return agents
}

// Has reports whether an agent with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	_, ok := r.agents[name]
	r.mu.RUnlock()
	return ok
}

// UpdateStatus sets an agent's status and refreshes its activity timestamp.
// Unknown names are ignored: the agent may have been terminated while a task
// it ran was still reporting.
func (r *Registry) UpdateStatus(name string, status domain.AgentStatus) {
	r.mu.Lock()
	if e, ok := r.agents[name]; ok {
		e.agent.Status = status
		e.agent.LastActivity = time.Now()
	}
	r.mu.Unlock()
}

// UpdateMetrics folds one usage sample into an agent's metrics. A sample
// with a latency marks a completed task and feeds the running average.
// Unknown names are ignored.
func (r *Registry) UpdateMetrics(name string, delta domain.MetricsDelta) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.agents[name]
	if !ok {
		return
	}
	m := &e.agent.Metrics
	m.TotalCost += delta.Cost
	m.TotalTokens.Add(delta.Tokens)
	if delta.Latency != nil {
		n := int64(m.TasksCompleted)
		m.AverageLatency = time.Duration((int64(m.AverageLatency)*n + int64(*delta.Latency)) / (n + 1))
		m.TasksCompleted++
	}
	e.agent.LastActivity = time.Now()
}

// WaitForIdle blocks until the named agent reports idle, polling its status.
// Returns ErrWaitTimeout when the deadline passes and ErrAgentNotFound if
// the agent disappears while waiting.
func (r *Registry) WaitForIdle(ctx context.Context, name string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		agent, err := r.Get(name)
		if err != nil {
			return domain.NewDomainError("Registry.WaitForIdle", domain.ErrAgentNotFound, name)
		}
		if agent.Status == domain.StatusIdle {
			return nil
		}
		if time.Now().After(deadline) {
			return domain.NewDomainError("Registry.WaitForIdle", domain.ErrWaitTimeout, name)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

func (r *Registry) deleteSession(ctx context.Context, name, sessionID string) {
	if err := r.gateway.DeleteSession(ctx, sessionID); err != nil {
		r.logger.Warn("session delete failed", "agent", name, "session_id", sessionID, "error", err)
	}
}

func (r *Registry) publishEvent(ctx context.Context, eventType domain.EventType, payload map[string]string) {
	if r.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	r.bus.Publish(ctx, domain.Event{Type: eventType, Timestamp: time.Now(), Payload: data})
}
