package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/sahayak-ai/sahayak/internal/index"
	"github.com/sahayak-ai/sahayak/internal/log"
	"github.com/sahayak-ai/sahayak/internal/retriever"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubRetriever struct {
	result      index.SearchResult
	contextText string
	err         error
	calls       int
}

func (r *stubRetriever) Retrieve(ctx context.Context, query string, opts ...retriever.SearchOption) (index.SearchResult, error) {
	r.calls++
	return r.result, r.err
}

func (r *stubRetriever) ContextString(ctx context.Context, query string, opts ...retriever.SearchOption) (string, error) {
	r.calls++
	return r.contextText, r.err
}

type stubIndex struct {
	stats   index.Stats
	err     error
	cleared bool
}

func (i *stubIndex) Stats(ctx context.Context) (index.Stats, error) {
	return i.stats, i.err
}

func (i *stubIndex) DeleteAll(ctx context.Context) error {
	if i.err != nil {
		return i.err
	}
	i.cleared = true
	return nil
}

type stubCache struct {
	entries map[string]json.RawMessage
	getErr  error
	setErr  error
	cleared bool
}

func newStubCache() *stubCache {
	return &stubCache{entries: make(map[string]json.RawMessage)}
}

func (c *stubCache) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	raw, ok := c.entries[key]
	return raw, ok, nil
}

func (c *stubCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c.setErr != nil {
		return c.setErr
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	return nil
}

func (c *stubCache) Clear(ctx context.Context) error {
	c.entries = make(map[string]json.RawMessage)
	c.cleared = true
	return nil
}

func newTestServer(ret Retriever, idx Index, cache ResponseCache) *Server {
	return NewServer(Config{
		CacheTTL:       time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	}, ret, idx, cache, log.NewNop())
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(&stubRetriever{}, &stubIndex{}, newStubCache())

	rec := doRequest(t, s.Handler(), http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-Request-ID"); got == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestQuery(t *testing.T) {
	ret := &stubRetriever{
		result: index.SearchResult{
			Documents: []string{"light travels in straight lines"},
			Metadatas: []map[string]string{{"grade": "10", "subject": "science"}},
			Distances: []float64{0.12},
		},
	}
	s := newTestServer(ret, &stubIndex{}, newStubCache())

	rec := doRequest(t, s.Handler(), http.MethodPost, "/api/v1/query",
		`{"query": "how does light travel", "top_k": 3, "grade": 10, "subject": "Science"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var got index.SearchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(got.Documents) != 1 || got.Documents[0] != ret.result.Documents[0] {
		t.Errorf("documents = %v", got.Documents)
	}
	if ret.calls != 1 {
		t.Errorf("retriever calls = %d, want 1", ret.calls)
	}
}

func TestQueryValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"query": `},
		{name: "missing query", body: `{"top_k": 3}`},
		{name: "blank query", body: `{"query": "   "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ret := &stubRetriever{}
			s := newTestServer(ret, &stubIndex{}, newStubCache())

			rec := doRequest(t, s.Handler(), http.MethodPost, "/api/v1/query", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if ret.calls != 0 {
				t.Error("retriever called for invalid request")
			}

			var errResp ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
				t.Fatalf("decoding error body: %v", err)
			}
			if errResp.Error != "invalid_request" {
				t.Errorf("error code = %q", errResp.Error)
			}
		})
	}
}

func TestQueryRetrievalFailure(t *testing.T) {
	// Backend failures must surface as 502, never as an empty 200.
	ret := &stubRetriever{err: errors.New("quota retries exhausted")}
	s := newTestServer(ret, &stubIndex{}, newStubCache())

	rec := doRequest(t, s.Handler(), http.MethodPost, "/api/v1/query", `{"query": "anything"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
		t.Fatal(err)
	}
	if errResp.Error != "retrieval_failed" {
		t.Errorf("error code = %q", errResp.Error)
	}
}

func TestQueryMethodNotAllowed(t *testing.T) {
	s := newTestServer(&stubRetriever{}, &stubIndex{}, newStubCache())

	rec := doRequest(t, s.Handler(), http.MethodGet, "/api/v1/query", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestContextCaching(t *testing.T) {
	ret := &stubRetriever{contextText: "[Source 1: Grade 10 Science]\nlight travels in straight lines\n"}
	cache := newStubCache()
	s := newTestServer(ret, &stubIndex{}, cache)
	handler := s.Handler()

	body := `{"query": "how does light travel", "grade": 10, "subject": "Science", "doc_type": "ncert"}`

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/context", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-Cache"); got != "miss" {
		t.Errorf("first request X-Cache = %q, want miss", got)
	}

	var resp contextResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Context != ret.contextText {
		t.Errorf("context = %q", resp.Context)
	}

	rec = doRequest(t, handler, http.MethodPost, "/api/v1/context", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("second request status = %d", rec.Code)
	}
	if got := rec.Header().Get("X-Cache"); got != "hit" {
		t.Errorf("second request X-Cache = %q, want hit", got)
	}
	if ret.calls != 1 {
		t.Errorf("retriever calls = %d, want 1 (second request served from cache)", ret.calls)
	}

	var cached contextResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &cached); err != nil {
		t.Fatal(err)
	}
	if cached != resp {
		t.Errorf("cached response %+v differs from original %+v", cached, resp)
	}
}

func TestContextCacheKeyDefaultTopK(t *testing.T) {
	// Omitting top_k and passing the explicit default must share one cache
	// entry.
	ret := &stubRetriever{contextText: "some context"}
	cache := newStubCache()
	s := newTestServer(ret, &stubIndex{}, cache)
	handler := s.Handler()

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/context", `{"query": "photosynthesis"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodPost, "/api/v1/context", `{"query": "photosynthesis", "top_k": 5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("second request status = %d", rec.Code)
	}
	if got := rec.Header().Get("X-Cache"); got != "hit" {
		t.Errorf("explicit default top_k X-Cache = %q, want hit", got)
	}
	if ret.calls != 1 {
		t.Errorf("retriever calls = %d, want 1", ret.calls)
	}
}

func TestContextCacheFailuresDegrade(t *testing.T) {
	ret := &stubRetriever{contextText: "some context"}
	cache := newStubCache()
	cache.getErr = errors.New("database is locked")
	cache.setErr = errors.New("database is locked")
	s := newTestServer(ret, &stubIndex{}, cache)

	rec := doRequest(t, s.Handler(), http.MethodPost, "/api/v1/context", `{"query": "anything"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 despite cache failure", rec.Code)
	}
	if ret.calls != 1 {
		t.Errorf("retriever calls = %d, want 1", ret.calls)
	}
}

func TestContextRetrievalFailure(t *testing.T) {
	ret := &stubRetriever{err: errors.New("backend down")}
	s := newTestServer(ret, &stubIndex{}, newStubCache())

	rec := doRequest(t, s.Handler(), http.MethodPost, "/api/v1/context", `{"query": "anything"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestStats(t *testing.T) {
	idx := &stubIndex{stats: index.Stats{
		TotalDocuments: 42,
		Grades:         []string{"10", "9"},
		Subjects:       []string{"science"},
		DocTypes:       []string{"ncert"},
	}}
	s := newTestServer(&stubRetriever{}, idx, newStubCache())

	rec := doRequest(t, s.Handler(), http.MethodGet, "/api/v1/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var got index.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.TotalDocuments != 42 {
		t.Errorf("TotalDocuments = %d, want 42", got.TotalDocuments)
	}
}

func TestStatsFailure(t *testing.T) {
	idx := &stubIndex{err: errors.New("database is locked")}
	s := newTestServer(&stubRetriever{}, idx, newStubCache())

	rec := doRequest(t, s.Handler(), http.MethodGet, "/api/v1/stats", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestClear(t *testing.T) {
	idx := &stubIndex{}
	cache := newStubCache()
	cache.entries["context:stale"] = json.RawMessage(`{"context":"stale"}`)
	s := newTestServer(&stubRetriever{}, idx, cache)

	rec := doRequest(t, s.Handler(), http.MethodDelete, "/api/v1/documents", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !idx.cleared {
		t.Error("index was not cleared")
	}
	if !cache.cleared {
		t.Error("cache was not cleared alongside the index")
	}
}

func TestClearIndexFailure(t *testing.T) {
	idx := &stubIndex{err: errors.New("database is locked")}
	s := newTestServer(&stubRetriever{}, idx, newStubCache())

	rec := doRequest(t, s.Handler(), http.MethodDelete, "/api/v1/documents", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	s := NewServer(Config{
		CacheTTL:       time.Hour,
		RateLimitRPS:   0.01,
		RateLimitBurst: 1,
	}, &stubRetriever{}, &stubIndex{}, newStubCache(), log.NewNop())
	handler := s.Handler()

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want 1", got)
	}
}

func TestRecovery(t *testing.T) {
	handler := chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), recoveryMiddleware(log.NewNop()))

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
