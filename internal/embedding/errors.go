package embedding

import (
	"errors"
	"fmt"
	"strings"
)

// QuotaError marks a quota rejection from the embedding service. The fake
// embedders in tests return it directly; production errors from the Google
// API surface as plain errors and are recognized by their markers instead.
type QuotaError struct {
	Err error
}

func (e *QuotaError) Error() string {
	if e.Err == nil {
		return "embedding quota exceeded"
	}
	return fmt.Sprintf("embedding quota exceeded: %v", e.Err)
}

func (e *QuotaError) Unwrap() error { return e.Err }

// quotaMarkers are the substrings the upstream service puts in quota
// rejections. Matching on them is what the rate policy keys off.
var quotaMarkers = []string{
	"429",
	"quota",
	"resource_exhausted",
	"rate limit",
}

// IsQuota reports whether err is a quota rejection, as opposed to any other
// upstream failure. Only quota rejections are retried.
func IsQuota(err error) bool {
	if err == nil {
		return false
	}
	var qe *QuotaError
	if errors.As(err, &qe) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range quotaMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Error reports an Embed run that failed after retries were exhausted or a
// non-retryable error occurred. Completed is the number of vectors computed
// before the failing text — partial progress is disclosed, never silently
// dropped, so callers may persist what succeeded.
type Error struct {
	Completed int
	Total     int
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("embedding failed after %d/%d texts: %v", e.Completed, e.Total, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
