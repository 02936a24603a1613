// ABOUTME: Classified error type for outbound platform calls.
// ABOUTME: Carries the failure class, HTTP status, and any retry-after hint.

package remote

import (
	"errors"
	"fmt"
	"time"
)

// Class buckets a call failure for policy decisions downstream.
type Class string

const (
	// ClassRateLimited: 429 persisted past the bounded in-call retries.
	ClassRateLimited Class = "rate_limited"
	// ClassServer: 5xx persisted past retries.
	ClassServer Class = "server"
	// ClassNetwork: connection or timeout errors persisted past retries.
	ClassNetwork Class = "network"
	// ClassAuth: 401/403. Never retried.
	ClassAuth Class = "auth"
	// ClassRequest: other 4xx. Never retried.
	ClassRequest Class = "request"
	// ClassContract: 2xx with a body the caller's decoder rejected.
	ClassContract Class = "contract"
	// ClassBreakerOpen: the scope's circuit breaker rejected the call before
	// any network activity.
	ClassBreakerOpen Class = "breaker_open"
)

// Error is the failure type returned by the client.
type Error struct {
	Class      Class
	Status     int
	Scope      string
	RetryAfter time.Duration // rate-limit hint, zero when none
	Body       string
	err        error
}

func (e *Error) Error() string {
	switch {
	case e.err != nil:
		return fmt.Sprintf("remote: %s %s: %v", e.Scope, e.Class, e.err)
	case e.Status != 0:
		return fmt.Sprintf("remote: %s %s: status %d: %s", e.Scope, e.Class, e.Status, e.Body)
	default:
		return fmt.Sprintf("remote: %s %s", e.Scope, e.Class)
	}
}

func (e *Error) Unwrap() error { return e.err }

// Permanent reports whether retrying this exact call can ever succeed without
// outside intervention. Rate limits are permanent for the call that exhausted
// its in-call retries, but carry a hint for schedulers that persist retry
// state.
func (e *Error) Permanent() bool {
	switch e.Class {
	case ClassAuth, ClassRequest, ClassContract:
		return true
	}
	return false
}

// RetryAfterHint extracts a rate-limit wait hint from any error in the chain.
func RetryAfterHint(err error) (time.Duration, bool) {
	var re *Error
	if errors.As(err, &re) && re.RetryAfter > 0 {
		return re.RetryAfter, true
	}
	return 0, false
}

// IsPermanent reports whether err is a classified permanent failure.
func IsPermanent(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Permanent()
}
