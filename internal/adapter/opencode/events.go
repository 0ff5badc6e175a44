package opencode

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jason-c-dev/opencode-flow/internal/domain"
)

// EventStream consumes the server's live SSE feed and fans events out to
// local subscribers. The underlying connection is owned by the stream: on
// failure it reconnects after a fixed delay instead of surfacing the error,
// so subscribers never observe a terminated feed while registered. Slow
// subscribers drop events rather than block the reader.
type EventStream struct {
	client         *http.Client
	url            string
	reconnectDelay time.Duration
	logger         *slog.Logger

	mu     sync.Mutex
	subs   map[uint64]chan domain.RemoteEvent
	nextID uint64
}

const subscriberBuffer = 32

// NewEventStream creates an event stream for the client's server.
// Run must be called to start consuming.
func NewEventStream(c *Client, reconnectDelay time.Duration, logger *slog.Logger) *EventStream {
	// The feed is one never-ending response body. An overall client
	// Timeout would sever it mid-stream, so the stream shares only the
	// transport (dial and TLS timeouts) with the request client.
	return &EventStream{
		client:         &http.Client{Transport: c.http.Transport},
		url:            c.baseURL + "/event",
		reconnectDelay: reconnectDelay,
		logger:         logger,
		subs:           make(map[uint64]chan domain.RemoteEvent),
	}
}

// Subscribe registers a consumer. The returned cancel function must be
// called to release the subscription; it closes the channel.
func (s *EventStream) Subscribe() (<-chan domain.RemoteEvent, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	ch := make(chan domain.RemoteEvent, subscriberBuffer)
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if ch, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
}

// Run consumes the feed until ctx is cancelled, reconnecting with a fixed
// delay on any stream failure. Intended to be launched in its own goroutine.
func (s *EventStream) Run(ctx context.Context) {
	for {
		if err := s.consume(ctx); err != nil {
			s.logger.Warn("event stream disconnected, reconnecting",
				"delay", s.reconnectDelay,
				"error", err,
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *EventStream) consume(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()

		// Skip empty lines and comments; only data payloads matter.
		if len(line) == 0 || line[0] == ':' {
			continue
		}
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		// The field grammar allows at most one space after the colon.
		data := bytes.TrimPrefix(line, []byte("data:"))
		if len(data) > 0 && data[0] == ' ' {
			data = data[1:]
		}

		event := domain.RemoteEvent{Data: append([]byte(nil), data...)}
		var envelope struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(data, &envelope) == nil {
			event.Type = envelope.Type
		}
		s.broadcast(event)
	}
	return scanner.Err()
}

func (s *EventStream) broadcast(event domain.RemoteEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- event:
		default:
			// Subscriber is not keeping up; drop rather than stall the feed.
		}
	}
}
