package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/immoweave/harvester/internal/model"
	"github.com/immoweave/harvester/internal/store"
)

type fakeProvider struct {
	name       string
	priority   int
	candidates []model.AgencyCandidate
	err        error
	delay      time.Duration
}

func (f *fakeProvider) Name() string  { return f.name }
func (f *fakeProvider) Priority() int { return f.priority }

func (f *fakeProvider) Lookup(ctx context.Context, _ string) ([]model.AgencyCandidate, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.AgencyCandidate, len(f.candidates))
	copy(out, f.candidates)
	for i := range out {
		out[i].Source = f.name
	}
	return out, nil
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st
}

func TestNormalizeURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://www.agence.fr/", "https://agence.fr", true},
		{"http://agence.fr", "https://agence.fr", true},
		{"agence.fr", "https://agence.fr", true},
		{"HTTPS://WWW.Agence.FR/Biens/", "https://agence.fr/Biens", true},
		{"https://agence.fr/biens?page=2#top", "https://agence.fr/biens", true},
		{"", "", false},
		{"https://", "", false},
		{"not a url", "", false},
	}
	for _, tc := range cases {
		got, err := NormalizeURL(tc.in)
		if tc.ok {
			require.NoError(t, err, tc.in)
			assert.Equal(t, tc.want, got, tc.in)
		} else {
			assert.Error(t, err, tc.in)
		}
	}
}

func TestDiscover_MergesByNormalizedURL(t *testing.T) {
	st := newTestStore(t)
	p1 := &fakeProvider{name: "registry", priority: 1, candidates: []model.AgencyCandidate{
		{Name: "Agence Martin", WebsiteURL: "https://www.agence-martin.fr/", City: "Lyon"},
	}}
	p2 := &fakeProvider{name: "directory", priority: 2, candidates: []model.AgencyCandidate{
		{Name: "Martin Immobilier", WebsiteURL: "http://agence-martin.fr", Phone: "0478000000"},
	}}

	e := New(st, []Provider{p1, p2}, time.Second)
	summary, err := e.Discover(context.Background(), "69")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Candidates)
	assert.Equal(t, 1, summary.Created)

	a, err := st.GetAgencyByURL(context.Background(), "https://agence-martin.fr")
	require.NoError(t, err)
	require.NotNil(t, a)
	// Priority 1 named it; priority 2 filled the phone.
	assert.Equal(t, "Agence Martin", a.Name)
	assert.Equal(t, "0478000000", a.Phone)
	assert.ElementsMatch(t, []string{"registry", "directory"}, a.DiscoveredFrom)
	assert.Equal(t, model.AgencyStatusPending, a.Status)
}

func TestDiscover_ProviderFailureKeepsPartialResults(t *testing.T) {
	st := newTestStore(t)
	good := &fakeProvider{name: "registry", priority: 1, candidates: []model.AgencyCandidate{
		{Name: "Agence A", WebsiteURL: "https://a.fr"},
	}}
	bad := &fakeProvider{name: "flaky", priority: 2, err: errors.New("upstream down")}

	e := New(st, []Provider{good, bad}, time.Second)
	summary, err := e.Discover(context.Background(), "75")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)
}

func TestDiscover_SlowProviderTimesOutAlone(t *testing.T) {
	st := newTestStore(t)
	fast := &fakeProvider{name: "fast", priority: 1, candidates: []model.AgencyCandidate{
		{Name: "Agence B", WebsiteURL: "https://b.fr"},
	}}
	slow := &fakeProvider{name: "slow", priority: 2, delay: 500 * time.Millisecond, candidates: []model.AgencyCandidate{
		{Name: "Agence C", WebsiteURL: "https://c.fr"},
	}}

	e := New(st, []Provider{fast, slow}, 50*time.Millisecond)
	summary, err := e.Discover(context.Background(), "75")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)
}

func TestDiscover_EnrichesExistingAgency(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	existing := &model.Agency{
		Name:           "Agence D",
		WebsiteURL:     "https://d.fr",
		Status:         model.AgencyStatusActive,
		IsActive:       true,
		DiscoveredFrom: []string{"seed-file"},
	}
	require.NoError(t, st.UpsertAgency(ctx, existing))

	p := &fakeProvider{name: "registry", priority: 1, candidates: []model.AgencyCandidate{
		{Name: "Different Name", WebsiteURL: "https://www.d.fr", Email: "contact@d.fr", SIRET: "12345678900011"},
	}}
	e := New(st, []Provider{p}, time.Second)
	summary, err := e.Discover(ctx, "13")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Enriched)
	assert.Zero(t, summary.Created)

	a, err := st.GetAgencyByURL(ctx, "https://d.fr")
	require.NoError(t, err)
	// Existing values win; only gaps are filled. Provenance unions.
	assert.Equal(t, "Agence D", a.Name)
	assert.Equal(t, "contact@d.fr", a.Email)
	assert.Equal(t, "12345678900011", a.SIRET)
	assert.ElementsMatch(t, []string{"seed-file", "registry"}, a.DiscoveredFrom)
	assert.Equal(t, model.AgencyStatusActive, a.Status)
}

func TestDiscover_ReactivatesInactiveAgency(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	dormant := &model.Agency{
		WebsiteURL: "https://e.fr",
		Status:     model.AgencyStatusDisabled,
		IsActive:   false,
	}
	require.NoError(t, st.UpsertAgency(ctx, dormant))

	p := &fakeProvider{name: "registry", priority: 1, candidates: []model.AgencyCandidate{
		{Name: "Agence E", WebsiteURL: "https://e.fr"},
	}}
	e := New(st, []Provider{p}, time.Second)
	summary, err := e.Discover(ctx, "06")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Reactivated)

	a, err := st.GetAgencyByURL(ctx, "https://e.fr")
	require.NoError(t, err)
	assert.True(t, a.IsActive)
	assert.Equal(t, model.AgencyStatusPending, a.Status)
}

func TestMergeCandidates_FirstNonEmptyByPriorityOrder(t *testing.T) {
	results := [][]model.AgencyCandidate{
		{{WebsiteURL: "https://x.fr", Name: "", City: "Nice", Source: "p1"}},
		{{WebsiteURL: "https://x.fr/", Name: "Agence X", City: "Cannes", Source: "p2"}},
	}
	merged := mergeCandidates(results)
	require.Len(t, merged, 1)
	assert.Equal(t, "Agence X", merged[0].candidate.Name)
	// City came first from p1 and stays.
	assert.Equal(t, "Nice", merged[0].candidate.City)
	assert.Equal(t, []string{"p1", "p2"}, merged[0].sources)
}
