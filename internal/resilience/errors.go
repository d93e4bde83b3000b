// Package resilience provides the error taxonomy and retry primitives
// shared by the fetchers and the orchestrator. The taxonomy decides three
// things downstream: whether an attempt is retried locally, whether the
// domain policy is penalized, and which outcome class lands in the
// scrape-attempt log.
package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/immoweave/harvester/internal/model"
)

// TransientError marks an error safe to retry within the attempt
// (timeouts, 5xx, connection resets).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err as transient with an optional HTTP status.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// RateLimitError marks a 429/403/challenge-page outcome. It escalates the
// domain's backoff and is never retried within the cycle.
type RateLimitError struct {
	Err        error
	StatusCode int
}

func (e *RateLimitError) Error() string { return e.Err.Error() }
func (e *RateLimitError) Unwrap() error { return e.Err }

// NewRateLimitError wraps err as a rate-limit signal.
func NewRateLimitError(err error, statusCode int) *RateLimitError {
	return &RateLimitError{Err: err, StatusCode: statusCode}
}

// PolicyDeniedError marks a request refused by the domain policy or
// robots rules. Logged, not retried this cycle, not penalizing.
type PolicyDeniedError struct {
	Err error
}

func (e *PolicyDeniedError) Error() string { return e.Err.Error() }
func (e *PolicyDeniedError) Unwrap() error { return e.Err }

// NewPolicyDeniedError wraps err as policy-denied.
func NewPolicyDeniedError(err error) *PolicyDeniedError {
	return &PolicyDeniedError{Err: err}
}

// ErrFormatUndetected is returned when no format profile clears the
// confidence threshold. A site-structure issue, not abuse detection:
// it never penalizes the domain policy.
var ErrFormatUndetected = errors.New("format undetected")

// PersistenceError marks a storage write failure, fatal for the agency's
// cycle and never silently dropped.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }

// NewPersistenceError wraps err as a persistence failure.
func NewPersistenceError(err error) *PersistenceError {
	return &PersistenceError{Err: err}
}

// Classify maps an attempt error to its outcome class.
func Classify(err error) model.OutcomeClass {
	switch {
	case err == nil:
		return model.OutcomeSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return model.OutcomeCancelled
	}

	var rle *RateLimitError
	if errors.As(err, &rle) {
		return model.OutcomeRateLimited
	}
	var pde *PolicyDeniedError
	if errors.As(err, &pde) {
		return model.OutcomePolicyDenied
	}
	if errors.Is(err, ErrFormatUndetected) {
		return model.OutcomeFormatUndetected
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return model.OutcomePersistenceFail
	}
	if IsTransient(err) {
		return model.OutcomeTransientNetwork
	}
	return model.OutcomeTransientNetwork
}

// IsTransient reports whether the error chain contains a TransientError
// or matches common transient network failure patterns.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// Wrapped client errors lose their type; fall back to message checks.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus reports whether an HTTP status is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRateLimitHTTPStatus reports whether an HTTP status signals active
// defense against scraping. 429 and 403 escalate domain backoff.
func IsRateLimitHTTPStatus(statusCode int) bool {
	return statusCode == 429 || statusCode == 403
}
