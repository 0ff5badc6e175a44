package opencode

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-c-dev/opencode-flow/internal/domain"
	"github.com/jason-c-dev/opencode-flow/internal/infra/config"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(
		config.ServerConfig{BaseURL: srv.URL, ConnTimeout: 2 * time.Second, RespTimeout: 2 * time.Second, Burst: 10},
		config.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond},
		slog.Default(),
	)
}

func TestCreateSession(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/session", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "flow-researcher", body["title"])
		json.NewEncoder(w).Encode(map[string]string{"id": "ses_123"})
	}))

	id, err := c.CreateSession(context.Background(), "flow-researcher")
	require.NoError(t, err)
	assert.Equal(t, "ses_123", id)
}

func TestCreateSessionRejected(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))

	_, err := c.CreateSession(context.Background(), "t")
	assert.ErrorIs(t, err, domain.ErrRemoteRejected)
}

func TestSendPrompt(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/session/ses_1/message", r.URL.Path)
		var msg messageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		require.Len(t, msg.Parts, 1)
		assert.Equal(t, "summarize", msg.Parts[0].Text)
		assert.Equal(t, map[string]bool{"read": true}, msg.Tools)

		json.NewEncoder(w).Encode(map[string]any{
			"info": map[string]any{
				"cost":   0.01,
				"tokens": map[string]int{"input": 100, "output": 50},
			},
			"parts": []map[string]string{
				{"type": "step-start"},
				{"type": "text", "text": "the "},
				{"type": "text", "text": "summary"},
			},
		})
	}))

	out, err := c.SendPrompt(context.Background(), domain.PromptRequest{
		SessionID: "ses_1",
		Text:      "summarize",
		Tools:     []string{"read"},
	})
	require.NoError(t, err)
	assert.Equal(t, "the summary", out.Text)
	assert.Equal(t, 0.01, out.Cost)
	assert.Equal(t, domain.TokenUsage{Input: 100, Output: 50}, out.Tokens)
}

func TestDeleteSessionIdempotent(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	assert.NoError(t, c.DeleteSession(context.Background(), "gone"))
}

func TestProbeSession(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/session/alive" {
			json.NewEncoder(w).Encode(map[string]string{"id": "alive"})
			return
		}
		http.NotFound(w, r)
	}))

	ok, err := c.ProbeSession(context.Background(), "alive")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.ProbeSession(context.Background(), "dead")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRetryOnServerDown(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]string{"id": "ok"})
	}))
	url := srv.URL
	srv.Close() // every dial now fails with connection refused

	c := NewClient(
		config.ServerConfig{BaseURL: url, ConnTimeout: time.Second, RespTimeout: time.Second, Burst: 10},
		config.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond},
		slog.Default(),
	)
	_, err := c.CreateSession(context.Background(), "t")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)
	assert.Equal(t, int32(0), calls.Load())
}

func TestNoRetryOnRejection(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusUnprocessableEntity)
	}))

	_, err := c.CreateSession(context.Background(), "t")
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrRemoteUnavailable))
	assert.Equal(t, int32(1), calls.Load(), "rejections must not be retried")
}
