// Package api provides the HTTP REST API for the retrieval service.
//
// Endpoints:
//
//	GET    /api/v1/health     liveness probe
//	GET    /api/v1/stats      corpus statistics
//	POST   /api/v1/query      ranked chunk retrieval
//	POST   /api/v1/context    formatted context block (cached)
//	DELETE /api/v1/documents  clear the index and response cache
//
// File structure:
//   - server.go: HTTP server setup, routes, and lifecycle
//   - handlers.go: endpoint implementations
//   - middleware.go: recovery, request ID, and logging middleware
//   - ratelimit.go: per-IP token bucket rate limiting
//   - response.go: JSON response helpers
package api
