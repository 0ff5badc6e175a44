package tokenizer

import (
	"strings"
	"testing"
)

func TestCount(t *testing.T) {
	c, err := New("gpt-4")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Count(""); got != 0 {
		t.Errorf("Count(\"\") = %d, want 0", got)
	}
	short := c.Count("hello")
	long := c.Count(strings.Repeat("hello world ", 100))
	if short <= 0 || long <= short {
		t.Errorf("Count: short=%d long=%d, want 0 < short < long", short, long)
	}
}

func TestTruncate(t *testing.T) {
	c, err := New("unknown-model-uses-fallback")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	text := strings.Repeat("the quick brown fox ", 50)

	if got := c.Truncate(text, 0); got != text {
		t.Error("Truncate with budget 0 must be a no-op")
	}
	if got := c.Truncate("short", 100); got != "short" {
		t.Errorf("Truncate under budget = %q, want unchanged", got)
	}

	cut := c.Truncate(text, 10)
	if c.Count(cut) > 10 {
		t.Errorf("truncated text has %d tokens, want <= 10", c.Count(cut))
	}
	if !strings.HasPrefix(text, cut) {
		t.Error("truncation must be a prefix of the original")
	}
}
