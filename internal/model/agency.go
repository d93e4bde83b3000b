package model

import "time"

// AgencyStatus represents the scraping lifecycle state of an agency.
type AgencyStatus string

const (
	// AgencyStatusPending marks an agency discovered but never scraped.
	AgencyStatusPending AgencyStatus = "pending"
	// AgencyStatusActive marks an agency in the regular scrape rotation.
	AgencyStatusActive AgencyStatus = "active"
	// AgencyStatusBlocked marks an agency whose domain actively defends
	// against scraping. Requires a manual reset.
	AgencyStatusBlocked AgencyStatus = "blocked"
	// AgencyStatusDisabled marks an agency excluded by operator decision.
	AgencyStatusDisabled AgencyStatus = "disabled"
	// AgencyStatusFailed marks an agency that exceeded the consecutive
	// failed-cycle threshold. Requires a manual reset.
	AgencyStatusFailed AgencyStatus = "failed"
)

// Agency is a real-estate agency whose website is harvested. Identity is
// the normalized website URL: one Agency per normalized URL, ever.
type Agency struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	WebsiteURL string `json:"website_url"` // normalized, unique

	// Legal / contact attributes. Stored fields only, never interpreted.
	SIRET      string `json:"siret,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
	Address    string `json:"address,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	City       string `json:"city,omitempty"`

	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	// DiscoveredFrom accumulates provenance tags across discovery runs.
	// The set never shrinks.
	DiscoveredFrom []string `json:"discovered_from"`

	Status   AgencyStatus `json:"status"`
	IsActive bool         `json:"is_active"`

	LastScraped    *time.Time `json:"last_scraped,omitempty"`
	ErrorCount     int        `json:"error_count"`
	TotalListings  int        `json:"total_listings"`
	ActiveListings int        `json:"active_listings"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AddProvenance unions tags into DiscoveredFrom, preserving order of
// first sighting.
func (a *Agency) AddProvenance(tags ...string) {
	seen := make(map[string]bool, len(a.DiscoveredFrom))
	for _, t := range a.DiscoveredFrom {
		seen[t] = true
	}
	for _, t := range tags {
		if t == "" || seen[t] {
			continue
		}
		a.DiscoveredFrom = append(a.DiscoveredFrom, t)
		seen[t] = true
	}
}

// Scrapeable reports whether the agency participates in automatic cycles.
func (a *Agency) Scrapeable() bool {
	if !a.IsActive {
		return false
	}
	switch a.Status {
	case AgencyStatusBlocked, AgencyStatusDisabled, AgencyStatusFailed:
		return false
	}
	return true
}

// AgencyCandidate is a provider-supplied sighting of an agency, prior to
// merge and upsert into the canonical Agency set.
type AgencyCandidate struct {
	Name       string   `json:"name"`
	WebsiteURL string   `json:"website_url"`
	Phone      string   `json:"phone,omitempty"`
	Email      string   `json:"email,omitempty"`
	Address    string   `json:"address,omitempty"`
	PostalCode string   `json:"postal_code,omitempty"`
	City       string   `json:"city,omitempty"`
	SIRET      string   `json:"siret,omitempty"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	Source     string   `json:"source"`
}
