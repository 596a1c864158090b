package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/sahayak-ai/sahayak/internal/cache"
	"github.com/sahayak-ai/sahayak/internal/retriever"
)

// searchRequest is the body accepted by both the query and context endpoints.
type searchRequest struct {
	Query   string `json:"query"`
	TopK    int    `json:"top_k,omitempty"`
	Grade   int    `json:"grade,omitempty"`
	Subject string `json:"subject,omitempty"`
	DocType string `json:"doc_type,omitempty"`
}

func (req *searchRequest) options() []retriever.SearchOption {
	var opts []retriever.SearchOption
	if req.TopK > 0 {
		opts = append(opts, retriever.WithTopK(req.TopK))
	}
	if req.Grade > 0 {
		opts = append(opts, retriever.WithGrade(req.Grade))
	}
	if req.Subject != "" {
		opts = append(opts, retriever.WithSubject(req.Subject))
	}
	if req.DocType != "" {
		opts = append(opts, retriever.WithDocType(req.DocType))
	}
	return opts
}

func decodeSearchRequest(w http.ResponseWriter, r *http.Request, s *Server) (searchRequest, bool) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body", s.logger)
		return req, false
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required", s.logger)
		return req, false
	}
	return req, true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, s.logger)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.index.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "stats_failed", "could not read corpus statistics", s.logger)
		return
	}
	writeJSON(w, http.StatusOK, stats, s.logger)
}

// handleQuery returns ranked chunks for a query. A retrieval failure is a
// 502, never an empty 200: callers must be able to distinguish "nothing
// relevant" from "the embedding backend is down".
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSearchRequest(w, r, s)
	if !ok {
		return
	}

	result, err := s.retriever.Retrieve(r.Context(), req.Query, req.options()...)
	if err != nil {
		s.logger.Error("retrieval failed", "error", err)
		writeError(w, http.StatusBadGateway, "retrieval_failed", "could not retrieve results", s.logger)
		return
	}
	writeJSON(w, http.StatusOK, result, s.logger)
}

type contextResponse struct {
	Context string `json:"context"`
}

// handleContext returns the formatted context block for a query, serving
// repeats from the response cache. Cache failures degrade to a normal
// retrieval; they never fail the request.
func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSearchRequest(w, r, s)
	if !ok {
		return
	}

	var grade string
	if req.Grade > 0 {
		grade = strconv.Itoa(req.Grade)
	}
	// Resolve the effective top-k so an omitted field and the explicit
	// default share one cache entry.
	topK := req.TopK
	if topK <= 0 {
		topK = retriever.DefaultTopK
	}
	key := cache.BuildKey("context", grade, req.Subject, req.DocType, strconv.Itoa(topK), req.Query)

	if raw, hit, err := s.cache.Get(r.Context(), key); err != nil {
		s.logger.Warn("cache read failed", "error", err)
	} else if hit {
		w.Header().Set("X-Cache", "hit")
		writeJSON(w, http.StatusOK, raw, s.logger)
		return
	}

	text, err := s.retriever.ContextString(r.Context(), req.Query, req.options()...)
	if err != nil {
		s.logger.Error("context retrieval failed", "error", err)
		writeError(w, http.StatusBadGateway, "retrieval_failed", "could not build context", s.logger)
		return
	}

	resp := contextResponse{Context: text}
	if err := s.cache.Set(r.Context(), key, resp, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("cache write failed", "error", err)
	}

	w.Header().Set("X-Cache", "miss")
	writeJSON(w, http.StatusOK, resp, s.logger)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.index.DeleteAll(r.Context()); err != nil {
		s.logger.Error("index clear failed", "error", err)
		writeError(w, http.StatusInternalServerError, "clear_failed", "could not clear index", s.logger)
		return
	}
	// Cached responses refer to deleted documents; drop them too.
	if err := s.cache.Clear(r.Context()); err != nil {
		s.logger.Error("cache clear failed", "error", err)
		writeError(w, http.StatusInternalServerError, "clear_failed", "index cleared but cache clear failed", s.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"}, s.logger)
}
