package model

import "time"

// Field keys used in per-field confidence maps.
const (
	FieldTitle    = "title"
	FieldPrice    = "price"
	FieldSurface  = "surface"
	FieldRooms    = "rooms"
	FieldBedrooms = "bedrooms"
	FieldAddress  = "address"
	FieldCity     = "city"
	FieldPostal   = "postal_code"
	FieldType     = "property_type"
	FieldPhotos   = "photos"
	FieldDesc     = "description"
)

// RawListing is one listing as extracted from a single page during one
// scrape cycle. It is never persisted directly; the dedup engine turns it
// into an AggregatedListing. Numeric fields are pointers: nil means the
// field could not be resolved, which is distinct from a genuine zero.
type RawListing struct {
	Title       string
	Description string

	Price    *int64 // whole euros
	Surface  *int   // square meters
	Rooms    *int
	Bedrooms *int

	Address    string
	PostalCode string
	City       string

	PropertyType  string // appartement, maison, terrain, ...
	OperationType string // vente, location

	Photos    []string
	SourceURL string

	// Confidence holds a 0..1 score per resolved field, used only for
	// conflict resolution when merging duplicates.
	Confidence map[string]float64
}

// Usable reports whether the listing carries enough signal to keep.
// A listing with neither title nor price is discarded.
func (r *RawListing) Usable() bool {
	return r.Title != "" || r.Price != nil
}

// AggregatedListing is the persisted, deduplicated form of a listing.
// Identity is the content hash plus the source URL; listings sharing a
// hash across different source URLs are linked through DuplicateOf.
type AggregatedListing struct {
	ID       string `json:"id"`
	Hash     string `json:"hash"`
	AgencyID string `json:"agency_id"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	Price    *int64 `json:"price,omitempty"`
	Surface  *int   `json:"surface,omitempty"`
	Rooms    *int   `json:"rooms,omitempty"`
	Bedrooms *int   `json:"bedrooms,omitempty"`

	Address    string `json:"address,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	City       string `json:"city,omitempty"`

	PropertyType  string `json:"property_type,omitempty"`
	OperationType string `json:"operation_type,omitempty"`

	Photos    []string `json:"photos,omitempty"`
	SourceURL string   `json:"source_url"`

	Confidence map[string]float64 `json:"confidence,omitempty"`

	// DuplicateOf points at the canonical record when this listing is a
	// cross-site duplicate. The referenced record is always active and
	// itself non-duplicate: the relation is a forest, never a cycle.
	DuplicateOf *string `json:"duplicate_of,omitempty"`

	QualityScore float64 `json:"quality_score"`

	IsActive bool `json:"is_active"`
	// MissingStreak counts consecutive successful agency scrapes in which
	// this listing did not appear. At the configured threshold the
	// listing is deactivated.
	MissingStreak int `json:"missing_streak"`

	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsDuplicate reports whether the listing is a duplicate-of link.
func (l *AggregatedListing) IsDuplicate() bool { return l.DuplicateOf != nil }

// ListingHistory is one observed field change on a stored listing,
// kept append-only so price trajectories survive merges.
type ListingHistory struct {
	ID        string    `json:"id"`
	ListingID string    `json:"listing_id"`
	Field     string    `json:"field"`
	OldValue  string    `json:"old_value"`
	NewValue  string    `json:"new_value"`
	ChangedAt time.Time `json:"changed_at"`
}

// QualityScoreOf weighs field presence into a 0-10 data-quality score.
func QualityScoreOf(l *AggregatedListing) float64 {
	score := 0.0
	if l.Title != "" {
		score += 2
	}
	if l.Price != nil {
		score += 2
	}
	if l.Surface != nil {
		score += 2
	}
	if l.Address != "" {
		score += 2
	}
	if len(l.Description) > 50 {
		score++
	}
	if len(l.Photos) > 0 {
		score++
	}
	return score
}
