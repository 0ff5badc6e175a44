package opencode

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jason-c-dev/opencode-flow/internal/infra/config"
)

func testStream(t *testing.T, handler http.Handler) (*EventStream, context.CancelFunc) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(
		config.ServerConfig{BaseURL: srv.URL, ConnTimeout: time.Second, RespTimeout: time.Second, Burst: 10},
		config.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond},
		slog.Default(),
	)
	stream := NewEventStream(c, 5*time.Millisecond, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go stream.Run(ctx)
	return stream, cancel
}

func TestEventStreamDelivers(t *testing.T) {
	stream, _ := testStream(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": heartbeat\n")
		fmt.Fprint(w, "data: {\"type\":\"session.updated\",\"properties\":{}}\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))

	ch, cancel := stream.Subscribe()
	defer cancel()

	select {
	case ev := <-ch:
		if ev.Type != "session.updated" {
			t.Errorf("event type = %q, want session.updated", ev.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
}

func TestEventStreamDeliversWithoutSpaceAfterColon(t *testing.T) {
	stream, _ := testStream(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data:{\"type\":\"compact\"}\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))

	ch, cancel := stream.Subscribe()
	defer cancel()

	select {
	case ev := <-ch:
		if ev.Type != "compact" {
			t.Errorf("event type = %q, want compact", ev.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered for data line without space")
	}
}

func TestEventStreamOutlivesRequestClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		// Emit only after the request client's overall timeout would have
		// severed the body.
		time.Sleep(150 * time.Millisecond)
		fmt.Fprint(w, "data: {\"type\":\"late\"}\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	c := NewClient(
		config.ServerConfig{BaseURL: srv.URL, ConnTimeout: 20 * time.Millisecond, RespTimeout: 30 * time.Millisecond, Burst: 10},
		config.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond},
		slog.Default(),
	)
	stream := NewEventStream(c, 5*time.Millisecond, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go stream.Run(ctx)

	ch, unsubscribe := stream.Subscribe()
	defer unsubscribe()

	select {
	case ev := <-ch:
		if ev.Type != "late" {
			t.Errorf("event type = %q, want late", ev.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream severed before the slow event arrived")
	}
}

func TestEventStreamReconnects(t *testing.T) {
	var conns atomic.Int32
	stream, _ := testStream(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := conns.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: {\"type\":\"conn.%d\"}\n", n)
		w.(http.Flusher).Flush()
		// Drop the connection; the stream must reconnect on its own.
	}))

	ch, cancel := stream.Subscribe()
	defer cancel()

	seen := map[string]bool{}
	deadline := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case ev := <-ch:
			seen[ev.Type] = true
		case <-deadline:
			t.Fatalf("saw %d connections, want >= 2 (no reconnect?)", len(seen))
		}
	}
}

func TestEventStreamUnsubscribe(t *testing.T) {
	stream, _ := testStream(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 0; ; i++ {
			if _, err := fmt.Fprintf(w, "data: {\"type\":\"tick\"}\n"); err != nil {
				return
			}
			w.(http.Flusher).Flush()
			time.Sleep(time.Millisecond)
		}
	}))

	ch, cancel := stream.Subscribe()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no event before unsubscribe")
	}
	cancel()

	// Channel must be closed after drain; second cancel must not panic.
	cancel()
	for {
		if _, open := <-ch; !open {
			return
		}
	}
}
