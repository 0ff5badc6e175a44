package memory

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-c-dev/opencode-flow/internal/domain"
)

// Both backends must satisfy the same contract, so every test runs against
// both.
func stores(t *testing.T) map[string]domain.MemoryStore {
	t.Helper()
	fs, err := NewFileStore(t.TempDir(), slog.Default())
	require.NoError(t, err)
	ss, err := NewSQLiteStore(filepath.Join(t.TempDir(), "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		fs.Close()
		ss.Close()
	})
	return map[string]domain.MemoryStore{"file": fs, "sqlite": ss}
}

func TestRoundTrip(t *testing.T) {
	values := map[string]any{
		"string": "hello",
		"number": 42.5,
		"array":  []any{"a", 1.0, true},
		"nested": map[string]any{
			"inner": map[string]any{"deep": []any{1.0, 2.0}},
			"flag":  false,
		},
	}
	for backend, store := range stores(t) {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			for name, v := range values {
				require.NoError(t, store.Set(ctx, name, v, 0))
				got, ok, err := store.Get(ctx, name)
				require.NoError(t, err)
				require.True(t, ok, "key %q absent after Set", name)
				assert.Equal(t, v, got, "key %q", name)
			}
		})
	}
}

func TestExpiry(t *testing.T) {
	for backend, store := range stores(t) {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Set(ctx, "ephemeral", "v", 30*time.Millisecond))
			require.NoError(t, store.Set(ctx, "durable", "v", 0))

			time.Sleep(60 * time.Millisecond)

			_, ok, err := store.Get(ctx, "ephemeral")
			require.NoError(t, err)
			assert.False(t, ok, "expired entry must read as absent")

			got, ok, err := store.Get(ctx, "durable")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "v", got, "entry without ttl must survive")
		})
	}
}

func TestExpiredEntryLazilyDeleted(t *testing.T) {
	for backend, store := range stores(t) {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Set(ctx, "k", "v", 10*time.Millisecond))
			time.Sleep(30 * time.Millisecond)

			// Keys may still report the key until it is read.
			_, _, err := store.Get(ctx, "k")
			require.NoError(t, err)

			keys, err := store.Keys(ctx)
			require.NoError(t, err)
			assert.NotContains(t, keys, "k", "read of expired entry must delete it")
		})
	}
}

func TestOverwriteResetsExpiry(t *testing.T) {
	for backend, store := range stores(t) {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Set(ctx, "k", "old", 20*time.Millisecond))
			require.NoError(t, store.Set(ctx, "k", "new", 0))
			time.Sleep(40 * time.Millisecond)

			got, ok, err := store.Get(ctx, "k")
			require.NoError(t, err)
			require.True(t, ok, "overwrite must reset expiry")
			assert.Equal(t, "new", got)
		})
	}
}

func TestDeleteIdempotent(t *testing.T) {
	for backend, store := range stores(t) {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Set(ctx, "keep", "v", 0))

			require.NoError(t, store.Delete(ctx, "absent"))
			keys, err := store.Keys(ctx)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"keep"}, keys)

			require.NoError(t, store.Delete(ctx, "keep"))
			require.NoError(t, store.Delete(ctx, "keep"))
			keys, err = store.Keys(ctx)
			require.NoError(t, err)
			assert.Empty(t, keys)
		})
	}
}

func TestClear(t *testing.T) {
	for backend, store := range stores(t) {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Set(ctx, "a", 1, 0))
			require.NoError(t, store.Set(ctx, "b", 2, 0))
			require.NoError(t, store.Clear(ctx))

			keys, err := store.Keys(ctx)
			require.NoError(t, err)
			assert.Empty(t, keys)

			// Store is immediately re-usable.
			require.NoError(t, store.Set(ctx, "c", 3, 0))
			got, ok, err := store.Get(ctx, "c")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, 3.0, got)
		})
	}
}

func TestAwkwardKeys(t *testing.T) {
	keys := []string{
		"plain",
		"with/slash",
		"with space",
		"unicode-ключ",
		"dots..and%percent",
	}
	for backend, store := range stores(t) {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			for i, k := range keys {
				require.NoError(t, store.Set(ctx, k, float64(i), 0))
			}
			for i, k := range keys {
				got, ok, err := store.Get(ctx, k)
				require.NoError(t, err)
				require.True(t, ok, "key %q", k)
				assert.Equal(t, float64(i), got, "key %q", k)
			}
			stored, err := store.Keys(ctx)
			require.NoError(t, err)
			assert.ElementsMatch(t, keys, stored)
		})
	}
}

func TestFileStoreReload(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := NewFileStore(dir, slog.Default())
	require.NoError(t, err)
	require.NoError(t, s1.Set(ctx, "persisted", map[string]any{"n": 1.0}, 0))

	s2, err := NewFileStore(dir, slog.Default())
	require.NoError(t, err)
	got, ok, err := s2.Get(ctx, "persisted")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"n": 1.0}, got)
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain-key_1.0", "plain-key_1.0"},
		{"a/b", "a%2Fb"},
		{"a b", "a%20b"},
		{"100%", "100%25"},
	}
	for _, tt := range tests {
		if got := sanitizeKey(tt.in); got != tt.want {
			t.Errorf("sanitizeKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	// Distinct keys must never collide after sanitization.
	if sanitizeKey("a%2Fb") == sanitizeKey("a/b") {
		t.Error("sanitizeKey collision between escaped and raw forms")
	}
}
