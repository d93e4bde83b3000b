package model

import "time"

// OutcomeClass classifies the result of one scrape attempt. The taxonomy
// separates penalizing outcomes (rate-limited) from neutral ones
// (format-undetected, cancelled) so domain policy only escalates on
// genuine abuse signals.
type OutcomeClass string

const (
	OutcomeSuccess          OutcomeClass = "success"
	OutcomeCancelled        OutcomeClass = "cancelled"
	OutcomeTransientNetwork OutcomeClass = "transient_network"
	OutcomePolicyDenied     OutcomeClass = "policy_denied"
	OutcomeRateLimited      OutcomeClass = "rate_limited"
	OutcomeFormatUndetected OutcomeClass = "format_undetected"
	OutcomePersistenceFail  OutcomeClass = "persistence_failure"
)

// Failed reports whether the outcome counts against the agency's
// consecutive-failure counter. Cancellation and undetected formats are
// recorded but never penalized.
func (o OutcomeClass) Failed() bool {
	switch o {
	case OutcomeSuccess, OutcomeCancelled, OutcomeFormatUndetected:
		return false
	}
	return true
}

// ScrapeAttempt is one append-only log row per orchestrator execution.
// Rows are never mutated after write.
type ScrapeAttempt struct {
	ID       string       `json:"id"`
	AgencyID string       `json:"agency_id"`
	Outcome  OutcomeClass `json:"outcome"`

	ListingsFound int `json:"listings_found"`
	New           int `json:"new"`
	Updated       int `json:"updated"`
	Removed       int `json:"removed"`

	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`

	StartedAt time.Time `json:"started_at"`
}
