package cache

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/sahayak-ai/sahayak/internal/log"
)

// fakeClock is a settable time source so TTL expiry is tested without
// real waiting.
type fakeClock struct {
	t time.Time
}

func (f *fakeClock) Now() time.Time { return f.t }

func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func openTestCache(t *testing.T, opts ...Option) (*Cache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"), log.NewNop(), opts...)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = c.Close()
	})
	return c, clock
}

func TestBuildKey(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		fields   []string
		want     string
	}{
		{
			name:     "basic",
			endpoint: "scenario",
			fields:   []string{"10", "physics", "reflection of light"},
			want:     "scenario:10:physics:reflection of light",
		},
		{
			name:     "case and whitespace normalized",
			endpoint: "ep",
			fields:   []string{"10", "  SCIENCE "},
			want:     "ep:10:science",
		},
		{
			name:     "empty fields skipped",
			endpoint: "pyq",
			fields:   []string{"", "9", "  ", "maths"},
			want:     "pyq:9:maths",
		},
		{
			name:     "no fields",
			endpoint: "stats",
			fields:   nil,
			want:     "stats",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildKey(tt.endpoint, tt.fields...); got != tt.want {
				t.Errorf("BuildKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildKeyDeterminism(t *testing.T) {
	a := BuildKey("ep", "10", "Science")
	b := BuildKey("ep", "10", "  SCIENCE ")
	if a != b {
		t.Errorf("equivalent requests produced different keys: %q vs %q", a, b)
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	c, _ := openTestCache(t)
	ctx := context.Background()

	value := map[string]any{"answer": "reflection", "score": float64(42)}
	if err := c.Set(ctx, "k1", value, time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	raw, ok, err := c.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() = miss, want hit")
	}

	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("stored value is not valid JSON: %v", err)
	}
	if got["answer"] != "reflection" || got["score"] != float64(42) {
		t.Errorf("got %v, want %v", got, value)
	}
}

func TestGetMiss(t *testing.T) {
	c, _ := openTestCache(t)

	_, ok, err := c.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() on absent key = hit, want miss")
	}
}

func TestTTLExpiry(t *testing.T) {
	c, clock := openTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", "v", 1*time.Second); err != nil {
		t.Fatal(err)
	}

	// Immediately: hit.
	if _, ok, err := c.Get(ctx, "k"); err != nil || !ok {
		t.Fatalf("Get() before expiry = (%v, %v), want hit", ok, err)
	}

	// Past the TTL: indistinguishable from absent.
	clock.Advance(2 * time.Second)
	if _, ok, err := c.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("Get() after expiry = (%v, %v), want miss", ok, err)
	}
}

func TestSetOverwrites(t *testing.T) {
	c, _ := openTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", "old", time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := c.Set(ctx, "k", "new", time.Hour); err != nil {
		t.Fatal(err)
	}

	raw, ok, err := c.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get() = (%v, %v), want hit", ok, err)
	}
	var got string
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got != "new" {
		t.Errorf("value = %q, want %q", got, "new")
	}
}

func TestOverwriteRefreshesTTL(t *testing.T) {
	c, clock := openTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", 1, 10*time.Second); err != nil {
		t.Fatal(err)
	}
	clock.Advance(8 * time.Second)
	if err := c.Set(ctx, "k", 2, 10*time.Second); err != nil {
		t.Fatal(err)
	}
	clock.Advance(8 * time.Second)

	// 16s after the first write but only 8s after the overwrite: still live.
	if _, ok, err := c.Get(ctx, "k"); err != nil || !ok {
		t.Fatalf("Get() = (%v, %v), want hit after TTL refresh", ok, err)
	}
}

func TestClear(t *testing.T) {
	c, _ := openTestCache(t)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		if err := c.Set(ctx, key, key, time.Hour); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	for _, key := range []string{"a", "b", "c"} {
		if _, ok, _ := c.Get(ctx, key); ok {
			t.Errorf("key %q survived Clear()", key)
		}
	}
}

func TestLRUEviction(t *testing.T) {
	// Bound small enough for three ~40-byte values to exceed it. The
	// least-recently-used entry must go first.
	c, clock := openTestCache(t, WithMaxBytes(100))
	ctx := context.Background()

	payload := func(s string) string { return s + ": some cached response payload" }

	if err := c.Set(ctx, "first", payload("first"), time.Hour); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Second)
	if err := c.Set(ctx, "second", payload("second"), time.Hour); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Second)

	// Touch "first" so "second" becomes the LRU entry.
	if _, ok, _ := c.Get(ctx, "first"); !ok {
		t.Fatal("expected hit on first")
	}
	clock.Advance(time.Second)

	if err := c.Set(ctx, "third", payload("third"), time.Hour); err != nil {
		t.Fatal(err)
	}

	if _, ok, _ := c.Get(ctx, "second"); ok {
		t.Error("LRU entry survived eviction")
	}
	if _, ok, _ := c.Get(ctx, "first"); !ok {
		t.Error("recently used entry was evicted")
	}
	if _, ok, _ := c.Get(ctx, "third"); !ok {
		t.Error("newest entry was evicted")
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "cache.db")
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}

	c, err := Open(dbPath, log.NewNop(), WithClock(clock.Now))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Set(context.Background(), "k", "persisted", time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(dbPath, log.NewNop(), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer func() {
		_ = reopened.Close()
	}()

	raw, ok, err := reopened.Get(context.Background(), "k")
	if err != nil || !ok {
		t.Fatalf("Get() after reopen = (%v, %v), want hit", ok, err)
	}
	var got string
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got != "persisted" {
		t.Errorf("value = %q", got)
	}
}
