package governor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/immoweave/harvester/internal/model"
	"github.com/immoweave/harvester/internal/resilience"
	"github.com/immoweave/harvester/internal/store"
)

func newTestGovernor(t *testing.T, opts Options) (*Governor, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return New(st, nil, opts), st
}

func TestDomain(t *testing.T) {
	cases := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"https://www.agence.fr/annonces", "agence.fr", true},
		{"https://agence.fr", "agence.fr", true},
		{"https://AGENCE.FR/x", "agence.fr", true},
		{"not a url at all", "", false},
		{"/relative/path", "", false},
	}
	for _, tc := range cases {
		got, err := Domain(tc.raw)
		if tc.ok {
			require.NoError(t, err, tc.raw)
			assert.Equal(t, tc.want, got)
		} else {
			assert.Error(t, err, tc.raw)
		}
	}
}

func TestGovernor_MinDelayUnderConcurrency(t *testing.T) {
	const delay = 50 * time.Millisecond
	const workers = 5

	g, _ := newTestGovernor(t, Options{BaseDelay: delay, MinDelay: delay})
	ctx := context.Background()

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, g.Acquire(ctx, "https://agence.fr/annonces"))
		}()
	}
	wg.Wait()

	// First slot is immediate; the remaining four must each wait a full
	// delay regardless of how callers interleave.
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, (workers-1)*delay)
}

func TestGovernor_BlocksAfterConsecutiveRateLimits(t *testing.T) {
	g, st := newTestGovernor(t, Options{BaseDelay: time.Millisecond, MinDelay: time.Millisecond, BlockThreshold: 3})
	ctx := context.Background()

	require.NoError(t, g.Acquire(ctx, "https://agence.fr/a"))
	for i := 0; i < 3; i++ {
		require.NoError(t, g.Report(ctx, "agence.fr", model.OutcomeRateLimited))
	}

	err := g.Acquire(ctx, "https://agence.fr/b")
	require.Error(t, err)
	assert.Equal(t, model.OutcomePolicyDenied, resilience.Classify(err))

	p, err := st.GetDomainPolicy(ctx, "agence.fr")
	require.NoError(t, err)
	assert.Equal(t, model.PolicyBlocked, p.State)
}

func TestGovernor_RateLimitDoublesDelay(t *testing.T) {
	g, _ := newTestGovernor(t, Options{BaseDelay: 2 * time.Second, MinDelay: time.Millisecond, BlockThreshold: 10})
	ctx := context.Background()

	require.NoError(t, g.Report(ctx, "agence.fr", model.OutcomeRateLimited))
	p, err := g.State(ctx, "agence.fr")
	require.NoError(t, err)
	assert.Equal(t, model.PolicyThrottled, p.State)
	assert.Equal(t, 2.0, p.DelayMultiplier)
	assert.Equal(t, 4*time.Second, p.EffectiveDelay())

	require.NoError(t, g.Report(ctx, "agence.fr", model.OutcomeRateLimited))
	p, _ = g.State(ctx, "agence.fr")
	assert.Equal(t, 4.0, p.DelayMultiplier)
}

func TestGovernor_SuccessDecaysPenalty(t *testing.T) {
	g, _ := newTestGovernor(t, Options{BaseDelay: time.Second, MinDelay: time.Millisecond, BlockThreshold: 10, DecayFactor: 0.5})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, g.Report(ctx, "agence.fr", model.OutcomeRateLimited))
	}
	p, _ := g.State(ctx, "agence.fr")
	require.Equal(t, 4.0, p.DelayMultiplier)

	// 4 -> 2.5 -> 1.75 -> 1.375 -> 1.1875 -> 1.09375 -> snaps to 1.
	for i := 0; i < 6; i++ {
		require.NoError(t, g.Report(ctx, "agence.fr", model.OutcomeSuccess))
	}
	p, _ = g.State(ctx, "agence.fr")
	assert.Equal(t, 1.0, p.DelayMultiplier)
	assert.Equal(t, model.PolicyActive, p.State)
	assert.Equal(t, 0, p.ConsecutiveRateLimits)
}

func TestGovernor_NeutralOutcomesDoNotEscalate(t *testing.T) {
	g, _ := newTestGovernor(t, Options{BaseDelay: time.Millisecond, MinDelay: time.Millisecond})
	ctx := context.Background()

	require.NoError(t, g.Report(ctx, "agence.fr", model.OutcomeRateLimited))
	p, _ := g.State(ctx, "agence.fr")
	require.Equal(t, 1, p.ConsecutiveRateLimits)

	require.NoError(t, g.Report(ctx, "agence.fr", model.OutcomeFormatUndetected))
	require.NoError(t, g.Report(ctx, "agence.fr", model.OutcomeCancelled))
	p, _ = g.State(ctx, "agence.fr")
	assert.Equal(t, 1, p.ConsecutiveRateLimits)
	assert.Equal(t, model.PolicyThrottled, p.State)
}

func TestGovernor_HourlyBudgetExhaustionWaits(t *testing.T) {
	g, _ := newTestGovernor(t, Options{
		BaseDelay:          time.Millisecond,
		MinDelay:           time.Millisecond,
		MaxRequestsPerHour: 2,
	})
	ctx := context.Background()

	require.NoError(t, g.Acquire(ctx, "https://agence.fr/1"))
	require.NoError(t, g.Acquire(ctx, "https://agence.fr/2"))

	shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := g.Acquire(shortCtx, "https://agence.fr/3")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGovernor_ResetUnblocks(t *testing.T) {
	g, st := newTestGovernor(t, Options{BaseDelay: time.Millisecond, MinDelay: time.Millisecond, BlockThreshold: 1})
	ctx := context.Background()

	require.NoError(t, g.Report(ctx, "agence.fr", model.OutcomeRateLimited))
	err := g.Acquire(ctx, "https://agence.fr/x")
	require.Error(t, err)

	require.NoError(t, g.Reset(ctx, "agence.fr"))
	require.NoError(t, g.Acquire(ctx, "https://agence.fr/x"))

	p, err := st.GetDomainPolicy(ctx, "agence.fr")
	require.NoError(t, err)
	assert.Equal(t, model.PolicyActive, p.State)
	assert.Equal(t, 1.0, p.DelayMultiplier)
}

type denyRobots struct{ denied string }

func (d *denyRobots) Allowed(_ context.Context, _ string, path string) (bool, error) {
	return path != d.denied, nil
}

func TestGovernor_RobotsDisallowDenies(t *testing.T) {
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	g := New(st, &denyRobots{denied: "/annonces"}, Options{
		BaseDelay:     time.Millisecond,
		MinDelay:      time.Millisecond,
		RespectRobots: true,
	})
	ctx := context.Background()

	err = g.Acquire(ctx, "https://agence.fr/annonces")
	require.Error(t, err)
	assert.Equal(t, model.OutcomePolicyDenied, resilience.Classify(err))

	require.NoError(t, g.Acquire(ctx, "https://agence.fr/contact"))
}

func TestGovernor_PolicySurvivesRestart(t *testing.T) {
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()

	opts := Options{BaseDelay: time.Millisecond, MinDelay: time.Millisecond, BlockThreshold: 1}
	g1 := New(st, nil, opts)
	require.NoError(t, g1.Report(ctx, "agence.fr", model.OutcomeRateLimited))

	// A fresh governor over the same store sees the blocked state.
	g2 := New(st, nil, opts)
	err = g2.Acquire(ctx, "https://agence.fr/x")
	require.Error(t, err)
	assert.Equal(t, model.OutcomePolicyDenied, resilience.Classify(err))
}
