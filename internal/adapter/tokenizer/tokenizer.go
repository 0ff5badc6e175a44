package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Counter counts and truncates text by token count. Used to keep rendered
// prior-result context within the engine's token budget.
type Counter struct {
	enc *tiktoken.Tiktoken
}

// New creates a counter for the given model, falling back to the cl100k_base
// encoding when the model is unknown.
func New(model string) (*Counter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("tokenizer: %w", err)
		}
	}
	return &Counter{enc: enc}, nil
}

// Count returns the number of tokens in s.
func (c *Counter) Count(s string) int {
	return len(c.enc.Encode(s, nil, nil))
}

// Truncate returns s cut down to at most maxTokens tokens. maxTokens <= 0
// leaves s untouched.
func (c *Counter) Truncate(s string, maxTokens int) string {
	if maxTokens <= 0 {
		return s
	}
	tokens := c.enc.Encode(s, nil, nil)
	if len(tokens) <= maxTokens {
		return s
	}
	return c.enc.Decode(tokens[:maxTokens])
}
