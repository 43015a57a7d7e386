package models

import "errors"

// Failure taxonomy for whole-request errors. Per-item classification failures
// are carried inline on Article/SentimentResult instead and never abort a
// report.
var (
	// ErrInvalidQuery is a validation failure on the caller's input.
	// Fatal and surfaced immediately.
	ErrInvalidQuery = errors.New("missing or invalid query")

	// ErrRateLimited means a local gate or an upstream quota denied the
	// call. Surfaced distinctly so callers can back off instead of
	// retrying blindly.
	ErrRateLimited = errors.New("rate limited")

	// ErrUpstreamUnavailable is a 5xx/timeout that survived all retries.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrUpstreamAuth is a 401/403 from an upstream. Never retried.
	ErrUpstreamAuth = errors.New("upstream authorization failed")
)
