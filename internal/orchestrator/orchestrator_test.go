package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/immoweave/harvester/internal/change"
	"github.com/immoweave/harvester/internal/dedup"
	"github.com/immoweave/harvester/internal/detect"
	"github.com/immoweave/harvester/internal/extract"
	"github.com/immoweave/harvester/internal/fetch"
	"github.com/immoweave/harvester/internal/governor"
	"github.com/immoweave/harvester/internal/model"
	"github.com/immoweave/harvester/internal/resilience"
	"github.com/immoweave/harvester/internal/store"
)

type stubFetcher struct {
	mu    sync.Mutex
	body  []byte
	err   error
	calls int
	times []time.Time
}

func (f *stubFetcher) Fetch(_ context.Context, rawURL string) (*fetch.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.times = append(f.times, time.Now())
	if f.err != nil {
		return nil, f.err
	}
	return &fetch.Result{StatusCode: 200, Body: f.body, FinalURL: rawURL}, nil
}

func (f *stubFetcher) set(body []byte, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.body = body
	f.err = err
}

type recordingSink struct {
	mu     sync.Mutex
	events []model.ChangeEvent
}

func (s *recordingSink) Emit(_ context.Context, ev model.ChangeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) byType(t model.ChangeType) []model.ChangeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ChangeEvent
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func card(title, price, addr, href string) string {
	return fmt.Sprintf(`<div class="annonce-card">
		<h3 class="listing-title">%s</h3>
		<span class="price">%s</span>
		<div class="address">%s</div>
		<a href="%s">Voir le bien</a>
	</div>`, title, price, addr, href)
}

func page(cards ...string) []byte {
	return []byte(`<html><head><title>Nos biens</title></head><body><div class="results">` +
		strings.Join(cards, "\n") + `</div></body></html>`)
}

func threeCards() []byte {
	return page(
		card("Appartement 3 pièces", "250 000 €", "12 rue des Lilas 69001 Lyon", "/biens/1"),
		card("Maison 5 pièces", "480 000 €", "4 chemin Vert 69005 Lyon", "/biens/2"),
		card("Studio centre", "120 000 €", "8 place Carnot 69002 Lyon", "/biens/3"),
	)
}

type harness struct {
	store store.Store
	fetch *stubFetcher
	sink  *recordingSink
	orch  *Orchestrator
}

func newHarness(t *testing.T, missingThreshold int) *harness {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	gov := governor.New(st, nil, governor.Options{
		BaseDelay:          time.Millisecond,
		MinDelay:           time.Millisecond,
		MaxDelay:           50 * time.Millisecond,
		MaxRequestsPerHour: 100000,
		BlockThreshold:     3,
		DecayFactor:        0.75,
		RespectRobots:      false,
	})

	f := &stubFetcher{body: threeCards()}
	sink := &recordingSink{}
	orch := New(Deps{
		Store:     st,
		Governor:  gov,
		Fetcher:   f,
		Detector:  detect.New(0, 0),
		Profiles:  detect.NewProfileCache(0, time.Minute),
		Extractor: extract.New(),
		Dedup:     dedup.New(st),
		Change:    change.New(st, missingThreshold),
		Sink:      sink,
	}, Options{Workers: 2, RetryAttempts: 2, FailedCycleThreshold: 5})
	orch.retry.InitialBackoff = time.Millisecond
	orch.retry.MaxBackoff = 2 * time.Millisecond
	return &harness{store: st, fetch: f, sink: sink, orch: orch}
}

func seedAgency(t *testing.T, st store.Store, url string) *model.Agency {
	t.Helper()
	a := &model.Agency{
		Name:       "Agence Test",
		WebsiteURL: url,
		Status:     model.AgencyStatusPending,
		IsActive:   true,
	}
	require.NoError(t, st.UpsertAgency(context.Background(), a))
	return a
}

func TestScrapeAgency_Success(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()
	a := seedAgency(t, h.store, "https://agence-success.fr")

	attempt, err := h.orch.ScrapeAgency(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSuccess, attempt.Outcome)
	assert.Equal(t, 3, attempt.ListingsFound)
	assert.Equal(t, 3, attempt.New)
	assert.Zero(t, attempt.Updated)
	assert.Zero(t, attempt.Removed)

	// Attempt row persisted.
	attempts, err := h.store.ListScrapeAttempts(ctx, store.AttemptFilter{AgencyID: a.ID})
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, model.OutcomeSuccess, attempts[0].Outcome)

	// Agency promoted out of pending with fresh counters.
	got, err := h.store.GetAgency(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AgencyStatusActive, got.Status)
	assert.Zero(t, got.ErrorCount)
	assert.Equal(t, 3, got.TotalListings)
	assert.Equal(t, 3, got.ActiveListings)
	require.NotNil(t, got.LastScraped)

	// One added event per created listing, emitted after the writes.
	assert.Len(t, h.sink.byType(model.ChangeAdded), 3)
}

func TestScrapeAgency_SecondRunUnchanged(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()
	a := seedAgency(t, h.store, "https://agence-stable.fr")

	_, err := h.orch.ScrapeAgency(ctx, a.ID)
	require.NoError(t, err)
	attempt, err := h.orch.ScrapeAgency(ctx, a.ID)
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeSuccess, attempt.Outcome)
	assert.Equal(t, 3, attempt.ListingsFound)
	assert.Zero(t, attempt.New)
	assert.Zero(t, attempt.Removed)
}

func TestScrapeAgency_RemovalAfterMissingStreak(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	a := seedAgency(t, h.store, "https://agence-removal.fr")

	_, err := h.orch.ScrapeAgency(ctx, a.ID)
	require.NoError(t, err)

	// The studio disappears from the page.
	h.fetch.set(page(
		card("Appartement 3 pièces", "250 000 €", "12 rue des Lilas 69001 Lyon", "/biens/1"),
		card("Maison 5 pièces", "480 000 €", "4 chemin Vert 69005 Lyon", "/biens/2"),
		card("Maison campagne", "310 000 €", "2 route des Champs 69380 Lissieu", "/biens/4"),
	), nil)

	attempt, err := h.orch.ScrapeAgency(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSuccess, attempt.Outcome)
	assert.Equal(t, 1, attempt.New)
	assert.Equal(t, 1, attempt.Removed)
	assert.Len(t, h.sink.byType(model.ChangeRemoved), 1)
}

func TestScrapeAgency_RateLimitedEscalatesAndParks(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()
	a := seedAgency(t, h.store, "https://agence-hostile.fr")
	h.fetch.set(nil, resilience.NewRateLimitError(fmt.Errorf("429 too many requests"), 429))

	var outcomes []model.OutcomeClass
	for i := 0; i < 5; i++ {
		attempt, err := h.orch.ScrapeAgency(ctx, a.ID)
		require.NoError(t, err)
		outcomes = append(outcomes, attempt.Outcome)
	}

	// First attempts hit the rate limit; once the domain blocks, the
	// governor refuses before fetching.
	assert.Equal(t, model.OutcomeRateLimited, outcomes[0])
	assert.Equal(t, model.OutcomePolicyDenied, outcomes[4])

	got, err := h.store.GetAgency(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AgencyStatusFailed, got.Status)
	assert.Equal(t, 5, got.ErrorCount)
}

func TestScrapeAgency_FormatUndetectedIsNeutral(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()
	a := seedAgency(t, h.store, "https://agence-weird.fr")
	h.fetch.set([]byte(`<html><body><p>Bienvenue chez nous.</p></body></html>`), nil)

	attempt, err := h.orch.ScrapeAgency(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeFormatUndetected, attempt.Outcome)

	got, err := h.store.GetAgency(ctx, a.ID)
	require.NoError(t, err)
	assert.Zero(t, got.ErrorCount)
	assert.NotEqual(t, model.AgencyStatusFailed, got.Status)
}

func TestScrapeAgency_TransientRetriedLocally(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()
	a := seedAgency(t, h.store, "https://agence-flaky.fr")
	h.fetch.set(nil, resilience.NewTransientError(fmt.Errorf("503"), 503))

	attempt, err := h.orch.ScrapeAgency(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeTransientNetwork, attempt.Outcome)
	// RetryAttempts 2 means the fetch ran twice before giving up.
	assert.Equal(t, 2, h.fetch.calls)

	got, err := h.store.GetAgency(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ErrorCount)
}

func TestScrapeAgency_RetriesPacedByGovernor(t *testing.T) {
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	const minDelay = 60 * time.Millisecond
	gov := governor.New(st, nil, governor.Options{
		BaseDelay:          minDelay,
		MinDelay:           minDelay,
		MaxDelay:           time.Second,
		MaxRequestsPerHour: 100000,
		RespectRobots:      false,
	})

	f := &stubFetcher{err: resilience.NewTransientError(fmt.Errorf("503"), 503)}
	orch := New(Deps{
		Store:     st,
		Governor:  gov,
		Fetcher:   f,
		Detector:  detect.New(0, 0),
		Profiles:  detect.NewProfileCache(0, time.Minute),
		Extractor: extract.New(),
		Dedup:     dedup.New(st),
		Change:    change.New(st, 3),
		Sink:      &recordingSink{},
	}, Options{Workers: 1, RetryAttempts: 3, FailedCycleThreshold: 5})
	orch.retry.InitialBackoff = time.Millisecond
	orch.retry.MaxBackoff = 2 * time.Millisecond
	orch.retry.JitterFraction = 0

	a := seedAgency(t, st, "https://agence-paced.fr")
	attempt, err := orch.ScrapeAgency(context.Background(), a.ID)
	require.NoError(t, err)
	require.Equal(t, model.OutcomeTransientNetwork, attempt.Outcome)
	require.Equal(t, 3, f.calls)

	// Retried requests re-enter the domain gate: the inter-request gap
	// stays at the policy's minimum even though the retry backoff is
	// far shorter.
	for i := 1; i < len(f.times); i++ {
		gap := f.times[i].Sub(f.times[i-1])
		assert.GreaterOrEqual(t, gap, minDelay-5*time.Millisecond,
			"gap between fetch %d and %d", i-1, i)
	}
}

func TestScrapeAgency_ConcurrentCallRejected(t *testing.T) {
	h := newHarness(t, 3)
	a := seedAgency(t, h.store, "https://agence-busy.fr")

	require.True(t, h.orch.acquire(a.ID))
	defer h.orch.release(a.ID)

	_, err := h.orch.ScrapeAgency(context.Background(), a.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestScrapeAgency_UnknownAgency(t *testing.T) {
	h := newHarness(t, 3)
	_, err := h.orch.ScrapeAgency(context.Background(), "no-such-id")
	require.Error(t, err)
}

func TestRunCycle_SkipsUnscrapeable(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()

	seedAgency(t, h.store, "https://agence-ok.fr")
	parked := &model.Agency{
		Name:       "Agence Disabled",
		WebsiteURL: "https://agence-off.fr",
		Status:     model.AgencyStatusDisabled,
		IsActive:   true,
	}
	require.NoError(t, h.store.UpsertAgency(ctx, parked))

	summary, err := h.orch.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Agencies)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Failed)
}

func TestRunCycle_FailureDoesNotAbortOthers(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()

	seedAgency(t, h.store, "https://agence-un.fr")
	seedAgency(t, h.store, "https://agence-deux.fr")

	summary, err := h.orch.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Agencies)
	assert.Equal(t, 2, summary.Succeeded)
}

func TestResetAgency(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()

	a := &model.Agency{
		Name:       "Agence Parked",
		WebsiteURL: "https://agence-parked.fr",
		Status:     model.AgencyStatusFailed,
		IsActive:   true,
		ErrorCount: 7,
	}
	require.NoError(t, h.store.UpsertAgency(ctx, a))

	require.NoError(t, h.orch.ResetAgency(ctx, a.ID))
	got, err := h.store.GetAgency(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AgencyStatusActive, got.Status)
	assert.Zero(t, got.ErrorCount)
	assert.True(t, got.IsActive)
}
