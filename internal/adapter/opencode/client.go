package opencode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jason-c-dev/opencode-flow/internal/domain"
	"github.com/jason-c-dev/opencode-flow/internal/infra/config"
)

// Client talks to an OpenCode server over its HTTP API. Every call is
// rate-limited and wrapped in the bounded retry policy; this is the only
// retry point in the system.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   config.RetryConfig
	logger  *slog.Logger
}

// NewClient creates a gateway client for the server at cfg.BaseURL.
func NewClient(cfg config.ServerConfig, retry config.RetryConfig, logger *slog.Logger) *Client {
	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Transport: newPooledTransport(cfg.ConnTimeout, cfg.RespTimeout),
			Timeout:   cfg.ConnTimeout + cfg.RespTimeout,
		},
		limiter: rate.NewLimiter(limit, cfg.Burst),
		retry:   retry,
		logger:  logger,
	}
}

// newPooledTransport builds an http.Transport sized for a single long-lived
// upstream with high prompt concurrency.
func newPooledTransport(connTimeout, respTimeout time.Duration) *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   connTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: respTimeout,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       20,
		IdleConnTimeout:       120 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}

// --- wire types ---

type sessionResponse struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type messageRequest struct {
	Parts      []messagePart   `json:"parts"`
	ProviderID string          `json:"providerID,omitempty"`
	ModelID    string          `json:"modelID,omitempty"`
	Tools      map[string]bool `json:"tools,omitempty"`
}

type messagePart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type messageResponse struct {
	Info struct {
		Cost   float64 `json:"cost"`
		Tokens struct {
			Input  int `json:"input"`
			Output int `json:"output"`
		} `json:"tokens"`
	} `json:"info"`
	Parts []messagePart `json:"parts"`
}

// --- domain.Gateway ---

// CreateSession creates a remote session and returns its identifier.
func (c *Client) CreateSession(ctx context.Context, title string) (string, error) {
	return doRetry(ctx, c, "CreateSession", func(ctx context.Context) (string, error) {
		body := map[string]string{}
		if title != "" {
			body["title"] = title
		}
		var resp sessionResponse
		if err := c.call(ctx, http.MethodPost, "/session", body, &resp); err != nil {
			return "", err
		}
		if resp.ID == "" {
			return "", domain.NewDomainError("Client.CreateSession", domain.ErrRemoteRejected, "empty session id")
		}
		return resp.ID, nil
	})
}

// DeleteSession removes a remote session. Absence of the session is success.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	_, err := doRetry(ctx, c, "DeleteSession", func(ctx context.Context) (struct{}, error) {
		err := c.call(ctx, http.MethodDelete, "/session/"+url.PathEscape(id), nil, nil)
		if isStatus(err, http.StatusNotFound) {
			return struct{}{}, nil
		}
		return struct{}{}, err
	})
	return err
}

// SendPrompt sends text to a session and blocks until the completion arrives.
func (c *Client) SendPrompt(ctx context.Context, req domain.PromptRequest) (*domain.Completion, error) {
	return doRetry(ctx, c, "SendPrompt", func(ctx context.Context) (*domain.Completion, error) {
		msg := messageRequest{
			Parts:      []messagePart{{Type: "text", Text: req.Text}},
			ProviderID: req.ProviderID,
			ModelID:    req.ModelID,
		}
		if req.Tools != nil {
			msg.Tools = make(map[string]bool, len(req.Tools))
			for _, tool := range req.Tools {
				msg.Tools[tool] = true
			}
		}

		var resp messageResponse
		path := "/session/" + url.PathEscape(req.SessionID) + "/message"
		if err := c.call(ctx, http.MethodPost, path, msg, &resp); err != nil {
			return nil, err
		}

		var text strings.Builder
		for _, part := range resp.Parts {
			if part.Type == "text" {
				text.WriteString(part.Text)
			}
		}
		return &domain.Completion{
			Text: text.String(),
			Cost: resp.Info.Cost,
			Tokens: domain.TokenUsage{
				Input:  resp.Info.Tokens.Input,
				Output: resp.Info.Tokens.Output,
			},
		}, nil
	})
}

// ProbeSession reports whether the remote session still exists.
func (c *Client) ProbeSession(ctx context.Context, id string) (bool, error) {
	return doRetry(ctx, c, "ProbeSession", func(ctx context.Context) (bool, error) {
		err := c.call(ctx, http.MethodGet, "/session/"+url.PathEscape(id), nil, nil)
		if err == nil {
			return true, nil
		}
		if isStatus(err, http.StatusNotFound) {
			return false, nil
		}
		return false, err
	})
}

// --- plumbing ---

// statusError carries the HTTP status for remote rejections so callers can
// distinguish absence from real failures.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.status, e.body)
}

func (e *statusError) Unwrap() error { return domain.ErrRemoteRejected }

func isStatus(err error, status int) bool {
	var se *statusError
	return errors.As(err, &se) && se.status == status
}

// call issues one HTTP request. Transport failures are classified as
// ErrRemoteUnavailable, HTTP >= 400 as statusError (ErrRemoteRejected).
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", domain.ErrRemoteUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Compile-time interface check.
var _ domain.Gateway = (*Client)(nil)
