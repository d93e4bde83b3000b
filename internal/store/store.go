// Package store defines the persistence contracts the harvesting core
// depends on. The core never names a storage engine; it talks to Store
// and nothing else. SQLite and Postgres implementations live alongside.
package store

import (
	"context"

	"github.com/immoweave/harvester/internal/model"
)

// AttemptFilter narrows scrape-attempt listings.
type AttemptFilter struct {
	AgencyID string
	Outcome  model.OutcomeClass
	Limit    int
}

// Store is the persistence interface for the harvesting engine.
type Store interface {
	// Agencies
	GetAgency(ctx context.Context, id string) (*model.Agency, error)
	GetAgencyByURL(ctx context.Context, normalizedURL string) (*model.Agency, error)
	UpsertAgency(ctx context.Context, a *model.Agency) error
	ListActiveAgencies(ctx context.Context) ([]model.Agency, error)
	ListAgencies(ctx context.Context, limit int) ([]model.Agency, error)

	// Listings
	GetActiveListingHashes(ctx context.Context, agencyID string) ([]string, error)
	ListActiveListings(ctx context.Context, agencyID string) ([]model.AggregatedListing, error)
	GetListingByHash(ctx context.Context, hash string) (*model.AggregatedListing, error)
	GetListingBySourceURL(ctx context.Context, sourceURL string) (*model.AggregatedListing, error)
	GetListing(ctx context.Context, id string) (*model.AggregatedListing, error)
	UpsertListing(ctx context.Context, l *model.AggregatedListing) error
	DeactivateListing(ctx context.Context, id string) error

	// Listing history (append-only)
	AppendListingHistory(ctx context.Context, h *model.ListingHistory) error
	ListListingHistory(ctx context.Context, listingID string, limit int) ([]model.ListingHistory, error)

	// Scrape attempts (append-only)
	AppendScrapeAttempt(ctx context.Context, a *model.ScrapeAttempt) error
	ListScrapeAttempts(ctx context.Context, filter AttemptFilter) ([]model.ScrapeAttempt, error)

	// Domain policies
	GetDomainPolicy(ctx context.Context, domain string) (*model.DomainPolicy, error)
	SaveDomainPolicy(ctx context.Context, p *model.DomainPolicy) error
	AppendPolicyTransition(ctx context.Context, t *model.PolicyTransition) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
