package discovery

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/immoweave/harvester/internal/model"
)

// Provider is one external agency lookup source. Lookup must be
// side-effect-free; the engine gives each call its own timeout.
type Provider interface {
	Name() string
	// Priority orders first-non-empty field fills during merge; lower
	// wins.
	Priority() int
	Lookup(ctx context.Context, area string) ([]model.AgencyCandidate, error)
}

// DirectoryProvider queries an HTTP directory endpoint (a business
// registry mirror or trade directory) returning candidate agencies for
// an area as JSON.
type DirectoryProvider struct {
	name     string
	priority int
	baseURL  string
	client   *http.Client
}

// NewDirectoryProvider builds a provider for an endpoint expected to
// serve GET {baseURL}?area={area} as a JSON array of candidates.
func NewDirectoryProvider(name, baseURL string, priority int) *DirectoryProvider {
	return &DirectoryProvider{
		name:     name,
		priority: priority,
		baseURL:  baseURL,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *DirectoryProvider) Name() string  { return p.name }
func (p *DirectoryProvider) Priority() int { return p.priority }

func (p *DirectoryProvider) Lookup(ctx context.Context, area string) ([]model.AgencyCandidate, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return nil, eris.Wrapf(err, "discovery: parse provider url %s", p.baseURL)
	}
	q := u.Query()
	q.Set("area", area)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "discovery: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "discovery: %s lookup", p.name)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("discovery: %s returned %d", p.name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, eris.Wrapf(err, "discovery: %s read body", p.name)
	}

	var candidates []model.AgencyCandidate
	if err := json.Unmarshal(body, &candidates); err != nil {
		return nil, eris.Wrapf(err, "discovery: %s decode", p.name)
	}
	for i := range candidates {
		candidates[i].Source = p.name
	}
	zap.L().Debug("directory lookup complete",
		zap.String("provider", p.name),
		zap.String("area", area),
		zap.Int("candidates", len(candidates)),
	)
	return candidates, nil
}

// SeedFileProvider serves candidates from a local JSON file, used for
// operator-curated seed lists. Candidates match the area by postal-code
// prefix.
type SeedFileProvider struct {
	name     string
	priority int
	path     string
}

func NewSeedFileProvider(path string, priority int) *SeedFileProvider {
	return &SeedFileProvider{name: "seed-file", priority: priority, path: path}
}

func (p *SeedFileProvider) Name() string  { return p.name }
func (p *SeedFileProvider) Priority() int { return p.priority }

func (p *SeedFileProvider) Lookup(ctx context.Context, area string) ([]model.AgencyCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, eris.Wrapf(err, "discovery: read seed file %s", p.path)
	}
	var all []model.AgencyCandidate
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, eris.Wrapf(err, "discovery: decode seed file %s", p.path)
	}

	var matched []model.AgencyCandidate
	for _, c := range all {
		if area == "" || hasAreaPrefix(c.PostalCode, area) {
			c.Source = p.name
			matched = append(matched, c)
		}
	}
	return matched, nil
}

func hasAreaPrefix(postal, area string) bool {
	if postal == "" {
		return false
	}
	if len(area) > len(postal) {
		return false
	}
	return postal[:len(area)] == area
}
