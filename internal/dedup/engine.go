// Package dedup assigns listings their canonical identity and decides
// create vs merge vs duplicate-link on every scraped listing.
package dedup

import (
	"context"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/immoweave/harvester/internal/model"
	"github.com/immoweave/harvester/internal/store"
)

// Kind labels what Apply did with a listing.
type Kind string

const (
	KindCreated   Kind = "created"
	KindUpdated   Kind = "updated"
	KindDuplicate Kind = "duplicate"
	KindUnchanged Kind = "unchanged"
)

// Result reports one Apply outcome. Event is non-nil only when a
// durable write produced a notification-worthy change.
type Result struct {
	Listing *model.AggregatedListing
	Kind    Kind
	Event   *model.ChangeEvent
}

// Engine performs identity resolution and merge against the store.
type Engine struct {
	st store.Store
}

func New(st store.Store) *Engine {
	return &Engine{st: st}
}

// Apply resolves one raw listing: repeat scrapes of a known source URL
// merge in place, cross-URL hash collisions become duplicate_of links,
// everything else creates a new record. Events are built only after the
// corresponding write succeeded.
func (e *Engine) Apply(ctx context.Context, agencyID string, raw *model.RawListing) (*Result, error) {
	hash := IdentifyRaw(raw)
	now := time.Now().UTC()

	// Link-less cards have no URL identity; they resolve by hash only.
	if raw.SourceURL != "" {
		existing, err := e.st.GetListingBySourceURL(ctx, raw.SourceURL)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return e.mergeExisting(ctx, existing, raw, now)
		}
	}

	canonical, err := e.st.GetListingByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if canonical != nil {
		if canonical.SourceURL != raw.SourceURL {
			return e.linkDuplicate(ctx, agencyID, raw, hash, canonical, now)
		}
		return e.mergeExisting(ctx, canonical, raw, now)
	}

	l := fromRaw(agencyID, raw, hash, now)
	if err := e.st.UpsertListing(ctx, l); err != nil {
		return nil, err
	}
	return &Result{
		Listing: l,
		Kind:    KindCreated,
		Event: &model.ChangeEvent{
			Type:      model.ChangeAdded,
			AgencyID:  agencyID,
			ListingID: l.ID,
			Hash:      l.Hash,
			Title:     l.Title,
			NewPrice:  l.Price,
			At:        now,
		},
	}, nil
}

// mergeExisting is the same-URL repeat-scrape path: field-by-field merge
// gated on confidence, price drift always applied. Identity follows the
// merged fields, so a rejected low-confidence value never moves the hash.
func (e *Engine) mergeExisting(ctx context.Context, existing *model.AggregatedListing, raw *model.RawListing, now time.Time) (*Result, error) {
	oldPrice := existing.Price
	changed := Merge(existing, raw)
	existing.Hash = Identify(existing.Title, existing.Price, existing.Address, existing.PostalCode)
	existing.IsActive = true
	existing.MissingStreak = 0
	existing.LastSeen = now

	if err := e.st.UpsertListing(ctx, existing); err != nil {
		return nil, err
	}
	if !changed {
		return &Result{Listing: existing, Kind: KindUnchanged}, nil
	}
	ev := &model.ChangeEvent{
		Type:      model.ChangeUpdated,
		AgencyID:  existing.AgencyID,
		ListingID: existing.ID,
		Hash:      existing.Hash,
		Title:     existing.Title,
		At:        now,
	}
	if !priceEqual(oldPrice, existing.Price) {
		ev.OldPrice = oldPrice
		ev.NewPrice = existing.Price
		err := e.st.AppendListingHistory(ctx, &model.ListingHistory{
			ListingID: existing.ID,
			Field:     model.FieldPrice,
			OldValue:  priceString(oldPrice),
			NewValue:  priceString(existing.Price),
			ChangedAt: now,
		})
		if err != nil {
			return nil, err
		}
	}
	return &Result{Listing: existing, Kind: KindUpdated, Event: ev}, nil
}

// linkDuplicate records a cross-site sighting of a listing that already
// has a canonical record. The link always points at a verified
// non-duplicate so the relation stays a forest.
func (e *Engine) linkDuplicate(ctx context.Context, agencyID string, raw *model.RawListing, hash string, canonical *model.AggregatedListing, now time.Time) (*Result, error) {
	root, err := e.resolveCanonical(ctx, canonical)
	if err != nil {
		return nil, err
	}

	l := fromRaw(agencyID, raw, hash, now)
	l.DuplicateOf = &root.ID
	if err := e.st.UpsertListing(ctx, l); err != nil {
		return nil, err
	}
	zap.L().Debug("linked duplicate listing",
		zap.String("source_url", raw.SourceURL),
		zap.String("canonical_id", root.ID),
	)
	return &Result{Listing: l, Kind: KindDuplicate}, nil
}

// resolveCanonical walks duplicate_of links to the root record.
func (e *Engine) resolveCanonical(ctx context.Context, l *model.AggregatedListing) (*model.AggregatedListing, error) {
	seen := map[string]bool{l.ID: true}
	current := l
	for current.DuplicateOf != nil {
		next, err := e.st.GetListing(ctx, *current.DuplicateOf)
		if err != nil {
			return nil, err
		}
		if next == nil {
			break
		}
		if seen[next.ID] {
			return nil, eris.Errorf("dedup: duplicate_of cycle at %s", next.ID)
		}
		seen[next.ID] = true
		current = next
	}
	return current, nil
}

// Merge folds an incoming raw listing into the stored record. A field
// moves only when the incoming confidence is at least the stored one;
// price moves on any drift. Reports whether anything changed.
func Merge(existing *model.AggregatedListing, raw *model.RawListing) bool {
	changed := false
	conf := func(field string) float64 { return existing.Confidence[field] }
	inConf := func(field string) float64 { return raw.Confidence[field] }
	if existing.Confidence == nil {
		existing.Confidence = make(map[string]float64)
	}

	take := func(field string, apply func()) {
		if inConf(field) >= conf(field) {
			apply()
			existing.Confidence[field] = inConf(field)
		}
	}

	if raw.Title != "" && raw.Title != existing.Title {
		take(model.FieldTitle, func() { existing.Title = raw.Title; changed = true })
	}
	if raw.Description != "" && raw.Description != existing.Description {
		take(model.FieldDesc, func() { existing.Description = raw.Description; changed = true })
	}
	if raw.Surface != nil && !intEqual(existing.Surface, raw.Surface) {
		take(model.FieldSurface, func() { existing.Surface = raw.Surface; changed = true })
	}
	if raw.Rooms != nil && !intEqual(existing.Rooms, raw.Rooms) {
		take(model.FieldRooms, func() { existing.Rooms = raw.Rooms; changed = true })
	}
	if raw.Bedrooms != nil && !intEqual(existing.Bedrooms, raw.Bedrooms) {
		take(model.FieldBedrooms, func() { existing.Bedrooms = raw.Bedrooms; changed = true })
	}
	if raw.Address != "" && raw.Address != existing.Address {
		take(model.FieldAddress, func() { existing.Address = raw.Address; changed = true })
	}
	if raw.PostalCode != "" && raw.PostalCode != existing.PostalCode {
		take(model.FieldPostal, func() { existing.PostalCode = raw.PostalCode; changed = true })
	}
	if raw.City != "" && raw.City != existing.City {
		take(model.FieldCity, func() { existing.City = raw.City; changed = true })
	}
	if len(raw.Photos) > 0 && !stringSliceEqual(existing.Photos, raw.Photos) {
		take(model.FieldPhotos, func() { existing.Photos = raw.Photos; changed = true })
	}
	if raw.PropertyType != "" && existing.PropertyType == "" {
		existing.PropertyType = raw.PropertyType
		changed = true
	}
	if raw.OperationType != "" && existing.OperationType == "" {
		existing.OperationType = raw.OperationType
		changed = true
	}

	// Price drift is signal, never masked by confidence.
	if raw.Price != nil && !priceEqual(existing.Price, raw.Price) {
		existing.Price = raw.Price
		existing.Confidence[model.FieldPrice] = raw.Confidence[model.FieldPrice]
		changed = true
	}

	return changed
}

func fromRaw(agencyID string, raw *model.RawListing, hash string, now time.Time) *model.AggregatedListing {
	return &model.AggregatedListing{
		Hash:          hash,
		AgencyID:      agencyID,
		Title:         raw.Title,
		Description:   raw.Description,
		Price:         raw.Price,
		Surface:       raw.Surface,
		Rooms:         raw.Rooms,
		Bedrooms:      raw.Bedrooms,
		Address:       raw.Address,
		PostalCode:    raw.PostalCode,
		City:          raw.City,
		PropertyType:  raw.PropertyType,
		OperationType: raw.OperationType,
		Photos:        raw.Photos,
		SourceURL:     raw.SourceURL,
		Confidence:    raw.Confidence,
		IsActive:      true,
		FirstSeen:     now,
		LastSeen:      now,
	}
}

func priceString(p *int64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatInt(*p, 10)
}

func priceEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func intEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
