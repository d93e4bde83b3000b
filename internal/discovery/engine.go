// Package discovery merges agency sightings from independent lookup
// providers into the canonical Agency set.
package discovery

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/immoweave/harvester/internal/model"
	"github.com/immoweave/harvester/internal/store"
)

// Engine fans lookups out across providers and upserts the merged
// candidates.
type Engine struct {
	st              store.Store
	providers       []Provider
	providerTimeout time.Duration
}

// New builds an Engine. Providers are kept sorted by priority so field
// fills are deterministic.
func New(st store.Store, providers []Provider, providerTimeout time.Duration) *Engine {
	if providerTimeout == 0 {
		providerTimeout = 30 * time.Second
	}
	sorted := make([]Provider, len(providers))
	copy(sorted, providers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})
	return &Engine{st: st, providers: sorted, providerTimeout: providerTimeout}
}

// Summary reports one Discover run.
type Summary struct {
	Candidates  int
	Created     int
	Enriched    int
	Reactivated int
}

// Discover queries every provider for the area concurrently, merges the
// candidates by normalized URL and upserts them. A provider failure
// only costs its own results.
func (e *Engine) Discover(ctx context.Context, area string) (*Summary, error) {
	// Results slots are pre-allocated per provider so merge order stays
	// the priority order regardless of completion order.
	results := make([][]model.AgencyCandidate, len(e.providers))
	var mu sync.Mutex

	eg, gCtx := errgroup.WithContext(ctx)
	for i, p := range e.providers {
		i, p := i, p
		eg.Go(func() error {
			pCtx, cancel := context.WithTimeout(gCtx, e.providerTimeout)
			defer cancel()

			candidates, err := p.Lookup(pCtx, area)
			if err != nil {
				if gCtx.Err() != nil {
					return gCtx.Err()
				}
				zap.L().Warn("lookup provider failed, continuing",
					zap.String("provider", p.Name()),
					zap.String("area", area),
					zap.Error(err),
				)
				return nil
			}
			mu.Lock()
			results[i] = candidates
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	merged := mergeCandidates(results)
	summary := &Summary{Candidates: len(merged)}

	for _, m := range merged {
		outcome, err := e.upsert(ctx, m)
		if err != nil {
			return summary, err
		}
		switch outcome {
		case upsertCreated:
			summary.Created++
		case upsertEnriched:
			summary.Enriched++
		case upsertReactivated:
			summary.Reactivated++
		}
	}

	zap.L().Info("discovery complete",
		zap.String("area", area),
		zap.Int("candidates", summary.Candidates),
		zap.Int("created", summary.Created),
		zap.Int("enriched", summary.Enriched),
		zap.Int("reactivated", summary.Reactivated),
	)
	return summary, nil
}

// mergedCandidate is one agency after cross-provider merge.
type mergedCandidate struct {
	url       string
	candidate model.AgencyCandidate
	sources   []string
}

// mergeCandidates folds provider results into one candidate per
// normalized URL. results must already be in provider priority order:
// the first non-empty value for each field wins, provenance is the
// union of all sighting sources.
func mergeCandidates(results [][]model.AgencyCandidate) []mergedCandidate {
	byURL := make(map[string]*mergedCandidate)
	var order []string

	for _, providerResults := range results {
		for _, c := range providerResults {
			normalized, err := NormalizeURL(c.WebsiteURL)
			if err != nil {
				zap.L().Debug("dropping candidate with unusable url",
					zap.String("url", c.WebsiteURL),
					zap.Error(err),
				)
				continue
			}

			m, ok := byURL[normalized]
			if !ok {
				c.WebsiteURL = normalized
				byURL[normalized] = &mergedCandidate{
					url:       normalized,
					candidate: c,
					sources:   []string{c.Source},
				}
				order = append(order, normalized)
				continue
			}
			fillEmpty(&m.candidate, &c)
			m.sources = appendUnique(m.sources, c.Source)
		}
	}

	out := make([]mergedCandidate, 0, len(order))
	for _, u := range order {
		out = append(out, *byURL[u])
	}
	return out
}

// fillEmpty copies fields from src into dst where dst is empty.
func fillEmpty(dst, src *model.AgencyCandidate) {
	if dst.Name == "" {
		dst.Name = src.Name
	}
	if dst.Phone == "" {
		dst.Phone = src.Phone
	}
	if dst.Email == "" {
		dst.Email = src.Email
	}
	if dst.Address == "" {
		dst.Address = src.Address
	}
	if dst.PostalCode == "" {
		dst.PostalCode = src.PostalCode
	}
	if dst.City == "" {
		dst.City = src.City
	}
	if dst.SIRET == "" {
		dst.SIRET = src.SIRET
	}
	if dst.Latitude == nil {
		dst.Latitude = src.Latitude
	}
	if dst.Longitude == nil {
		dst.Longitude = src.Longitude
	}
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

type upsertOutcome int

const (
	upsertCreated upsertOutcome = iota
	upsertEnriched
	upsertReactivated
)

// upsert writes one merged candidate: new URLs create pending agencies,
// known URLs get enrichment and provenance, inactive agencies come back.
func (e *Engine) upsert(ctx context.Context, m mergedCandidate) (upsertOutcome, error) {
	existing, err := e.st.GetAgencyByURL(ctx, m.url)
	if err != nil {
		return 0, err
	}

	if existing == nil {
		a := &model.Agency{
			Name:       m.candidate.Name,
			WebsiteURL: m.url,
			SIRET:      m.candidate.SIRET,
			Phone:      m.candidate.Phone,
			Email:      m.candidate.Email,
			Address:    m.candidate.Address,
			PostalCode: m.candidate.PostalCode,
			City:       m.candidate.City,
			Latitude:   m.candidate.Latitude,
			Longitude:  m.candidate.Longitude,
			Status:     model.AgencyStatusPending,
			IsActive:   true,
		}
		a.AddProvenance(m.sources...)
		return upsertCreated, e.st.UpsertAgency(ctx, a)
	}

	outcome := upsertEnriched
	if !existing.IsActive {
		existing.IsActive = true
		existing.Status = model.AgencyStatusPending
		outcome = upsertReactivated
	}
	enrichAgency(existing, &m.candidate)
	existing.AddProvenance(m.sources...)
	return outcome, e.st.UpsertAgency(ctx, existing)
}

// enrichAgency fills empty agency fields from a candidate; existing
// values are never overwritten.
func enrichAgency(a *model.Agency, c *model.AgencyCandidate) {
	if a.Name == "" {
		a.Name = c.Name
	}
	if a.SIRET == "" {
		a.SIRET = c.SIRET
	}
	if a.Phone == "" {
		a.Phone = c.Phone
	}
	if a.Email == "" {
		a.Email = c.Email
	}
	if a.Address == "" {
		a.Address = c.Address
	}
	if a.PostalCode == "" {
		a.PostalCode = c.PostalCode
	}
	if a.City == "" {
		a.City = c.City
	}
	if a.Latitude == nil {
		a.Latitude = c.Latitude
	}
	if a.Longitude == nil {
		a.Longitude = c.Longitude
	}
}
