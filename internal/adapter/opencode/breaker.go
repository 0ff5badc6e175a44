package opencode

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sony/gobreaker/v2"

	"github.com/jason-c-dev/opencode-flow/internal/domain"
	"github.com/jason-c-dev/opencode-flow/internal/infra/config"
)

// BreakerGateway wraps a Gateway with circuit-breaker protection on prompt
// sends. When the remote fails repeatedly, the circuit opens and subsequent
// sends fail fast without reaching the server, preventing retry storms.
// Session management and probes bypass the breaker: probes must keep
// reaching the server to detect recovery.
type BreakerGateway struct {
	inner   domain.Gateway
	breaker *gobreaker.CircuitBreaker[*domain.Completion]
	logger  *slog.Logger
}

// NewBreakerGateway wraps inner with a circuit breaker configured by cfg.
func NewBreakerGateway(inner domain.Gateway, cfg config.BreakerConfig, logger *slog.Logger) *BreakerGateway {
	cb := gobreaker.NewCircuitBreaker[*domain.Completion](gobreaker.Settings{
		Name:        "opencode",
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return &BreakerGateway{inner: inner, breaker: cb, logger: logger}
}

// CreateSession implements domain.Gateway.
func (g *BreakerGateway) CreateSession(ctx context.Context, title string) (string, error) {
	return g.inner.CreateSession(ctx, title)
}

// DeleteSession implements domain.Gateway.
func (g *BreakerGateway) DeleteSession(ctx context.Context, id string) error {
	return g.inner.DeleteSession(ctx, id)
}

// SendPrompt implements domain.Gateway. Calls route through the breaker.
func (g *BreakerGateway) SendPrompt(ctx context.Context, req domain.PromptRequest) (*domain.Completion, error) {
	completion, err := g.breaker.Execute(func() (*domain.Completion, error) {
		return g.inner.SendPrompt(ctx, req)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("%w: circuit open: %v", domain.ErrRemoteUnavailable, err)
		}
		return nil, err
	}
	return completion, nil
}

// ProbeSession implements domain.Gateway.
func (g *BreakerGateway) ProbeSession(ctx context.Context, id string) (bool, error) {
	return g.inner.ProbeSession(ctx, id)
}

// State returns the current circuit breaker state for monitoring.
func (g *BreakerGateway) State() gobreaker.State {
	return g.breaker.State()
}

// Compile-time interface check.
var _ domain.Gateway = (*BreakerGateway)(nil)
