package testutil

import (
	"path/filepath"
	"testing"

	"github.com/sahayak-ai/sahayak/internal/cache"
	"github.com/sahayak-ai/sahayak/internal/index"
	"github.com/sahayak-ai/sahayak/internal/log"
)

// TempIndex opens a vector store backed by a database under t.TempDir()
// and closes it when the test finishes.
func TempIndex(t *testing.T) *index.Store {
	t.Helper()

	store, err := index.Open(filepath.Join(t.TempDir(), "index.db"), log.NewNop())
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// TempCache opens a response cache backed by a database under t.TempDir()
// and closes it when the test finishes.
func TempCache(t *testing.T, opts ...cache.Option) *cache.Cache {
	t.Helper()

	c, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"), log.NewNop(), opts...)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Close()
	})
	return c
}
