package opencode

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"

	"github.com/jason-c-dev/opencode-flow/internal/domain"
)

// doRetry runs fn up to retry.MaxAttempts times with exponential backoff
// starting at retry.BaseDelay. Only transient error classes are retried;
// everything else propagates on first failure.
func doRetry[T any](ctx context.Context, c *Client, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	delay := c.retry.BaseDelay
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isTransient(err) || attempt == c.retry.MaxAttempts {
			break
		}

		c.logger.Warn("transient gateway failure, retrying",
			"op", op,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return zero, domain.WrapOp(op, lastErr)
}

// isTransient reports whether err belongs to the fixed allow-list of
// retryable error classes: connection refused, timeouts, and name
// resolution failures. Context cancellation is never retried.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, domain.ErrRemoteUnavailable)
}
