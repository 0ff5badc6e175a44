package registry

import (
	"context"
	"time"

	"github.com/jason-c-dev/opencode-flow/internal/domain"
)

// probeLoop runs for the lifetime of one agent and checks that its remote
// session still exists. A missing or unreachable session only condemns the
// agent after it has also been quiet for longer than the failure tolerance;
// a busy agent mid-prompt is left alone.
func (r *Registry) probeLoop(ctx context.Context, name string) {
	ticker := time.NewTicker(r.config.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r.probeOnce(ctx, name) {
				return
			}
		}
	}
}

// probeOnce returns true when the agent was condemned and the loop should
// stop.
func (r *Registry) probeOnce(ctx context.Context, name string) bool {
	r.mu.RLock()
	e, ok := r.agents[name]
	var sessionID string
	var lastActivity time.Time
	if ok {
		sessionID = e.agent.SessionID
		lastActivity = e.agent.LastActivity
	}
	r.mu.RUnlock()

	if !ok {
		return true
	}

	alive, err := r.gateway.ProbeSession(ctx, sessionID)
	if err != nil {
		r.logger.Warn("health probe failed", "agent", name, "error", err)
	}
	if alive && err == nil {
		// A healthy probe is activity: it keeps the tolerance window open
		// so a later transient hiccup does not reap a long-idle agent.
		r.mu.Lock()
		if e, ok := r.agents[name]; ok {
			e.agent.LastActivity = time.Now()
		}
		r.mu.Unlock()
		return false
	}

	if time.Since(lastActivity) <= r.config.FailureTolerance {
		return false
	}

	r.publishEvent(ctx, domain.EventAgentUnhealthy, map[string]string{
		"agent": name, "session_id": sessionID,
	})
	r.logger.Warn("agent unhealthy, terminating", "agent", name, "session_id", sessionID)

	if err := r.Terminate(ctx, name); err != nil {
		r.logger.Warn("unhealthy agent terminate failed", "agent", name, "error", err)
	}
	return true
}
