// Package change diffs a fresh scrape snapshot against the stored
// active listings of an agency and applies the missing-streak rule for
// removals.
package change

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/immoweave/harvester/internal/model"
	"github.com/immoweave/harvester/internal/store"
)

// Detector tracks listing disappearance across scrape cycles. A listing
// is deactivated only after it has been absent from a configured number
// of consecutive successful scrapes, so one transient render failure
// never removes anything.
type Detector struct {
	st               store.Store
	missingThreshold int
}

// New builds a Detector. threshold <= 0 falls back to 3.
func New(st store.Store, threshold int) *Detector {
	if threshold <= 0 {
		threshold = 3
	}
	return &Detector{st: st, missingThreshold: threshold}
}

// DiffResult summarizes one sweep.
type DiffResult struct {
	Removed int
	Events  []model.ChangeEvent
}

// Diff compares the fresh hash set against the stored active listings.
// Call it only after a successful scrape; a failed scrape must not
// advance any missing streak. Events are built after the corresponding
// write committed.
func (d *Detector) Diff(ctx context.Context, agencyID string, freshHashes map[string]bool) (*DiffResult, error) {
	active, err := d.st.ListActiveListings(ctx, agencyID)
	if err != nil {
		return nil, err
	}

	res := &DiffResult{}
	now := time.Now().UTC()
	for i := range active {
		l := &active[i]
		if freshHashes[l.Hash] {
			if l.MissingStreak != 0 {
				l.MissingStreak = 0
				if err := d.st.UpsertListing(ctx, l); err != nil {
					return nil, err
				}
			}
			continue
		}

		l.MissingStreak++
		if l.MissingStreak < d.missingThreshold {
			if err := d.st.UpsertListing(ctx, l); err != nil {
				return nil, err
			}
			continue
		}

		if err := d.st.DeactivateListing(ctx, l.ID); err != nil {
			return nil, err
		}
		res.Removed++
		res.Events = append(res.Events, model.ChangeEvent{
			Type:      model.ChangeRemoved,
			AgencyID:  agencyID,
			ListingID: l.ID,
			Hash:      l.Hash,
			Title:     l.Title,
			OldPrice:  l.Price,
			At:        now,
		})
		zap.L().Info("listing deactivated after missing streak",
			zap.String("listing_id", l.ID),
			zap.Int("streak", l.MissingStreak),
		)
	}
	return res, nil
}
