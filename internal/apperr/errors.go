// Package apperr defines sentinel errors shared across components.
package apperr

import "errors"

var (
	// ErrNotFound marks a permanently absent upstream resource
	// (e.g. a repository without a manifest file). Never retried.
	ErrNotFound = errors.New("not found")
	// ErrRateLimited marks an upstream rate-limit response; the work
	// item should be re-enqueued with a reset-derived delay.
	ErrRateLimited = errors.New("rate limited by upstream")
	// ErrUpstreamDown marks a transient upstream failure that already
	// exhausted its bounded in-process retries.
	ErrUpstreamDown = errors.New("upstream unavailable")
)
