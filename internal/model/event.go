package model

import "time"

// ChangeType labels an outbound change event.
type ChangeType string

const (
	ChangeAdded   ChangeType = "listing_added"
	ChangeUpdated ChangeType = "listing_updated"
	ChangeRemoved ChangeType = "listing_removed"
)

// ChangeEvent is emitted to the notification collaborator after the
// underlying storage write has committed. Emission is at-least-once;
// delivery is the sink's problem.
type ChangeEvent struct {
	Type      ChangeType `json:"type"`
	AgencyID  string     `json:"agency_id"`
	ListingID string     `json:"listing_id"`
	Hash      string     `json:"hash"`
	Title     string     `json:"title,omitempty"`

	// Price drift is valuable signal: updated events carry both sides.
	OldPrice *int64 `json:"old_price,omitempty"`
	NewPrice *int64 `json:"new_price,omitempty"`

	At time.Time `json:"at"`
}
