package domain

import "context"

// Completion is the minimal contract the core depends on from a remote
// prompt send: the text produced plus its accounting.
type Completion struct {
	Text   string     `json:"text"`
	Cost   float64    `json:"cost"`
	Tokens TokenUsage `json:"tokens"`
}

// PromptRequest carries one prompt send to a remote session.
type PromptRequest struct {
	SessionID  string
	Text       string
	ProviderID string
	ModelID    string
	Tools      []string // tool whitelist; nil = server default
}

// Gateway is the boundary to the remote agent-hosting service. All
// implementations wrap calls with bounded retry; higher layers do not
// re-retry.
type Gateway interface {
	// CreateSession creates a remote session and returns its identifier.
	CreateSession(ctx context.Context, title string) (string, error)
	// DeleteSession removes a remote session. Idempotent: absence of the
	// session is not an error.
	DeleteSession(ctx context.Context, id string) error
	// SendPrompt sends text to a session and blocks until the completion
	// arrives. The dominant long-running operation in the system.
	SendPrompt(ctx context.Context, req PromptRequest) (*Completion, error)
	// ProbeSession reports whether the remote session still exists.
	ProbeSession(ctx context.Context, id string) (bool, error)
}

// RemoteEvent is one opaque event from the remote service's live feed.
type RemoteEvent struct {
	Type string `json:"type"`
	Data []byte `json:"data"`
}
