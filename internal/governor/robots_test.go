package governor

import (
	"context"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockedRobots(t *testing.T) *RobotsChecker {
	t.Helper()
	r := NewRobotsChecker("immoweave-harvester/1.0", time.Minute)
	httpmock.ActivateNonDefault(r.client)
	t.Cleanup(httpmock.DeactivateAndReset)
	return r
}

func TestRobotsChecker_Disallow(t *testing.T) {
	r := newMockedRobots(t)
	httpmock.RegisterResponder("GET", "https://agence.fr/robots.txt",
		httpmock.NewStringResponder(200, "User-agent: *\nDisallow: /admin\n"))

	ctx := context.Background()
	allowed, err := r.Allowed(ctx, "agence.fr", "/admin/login")
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = r.Allowed(ctx, "agence.fr", "/annonces")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRobotsChecker_MissingRobotsAllows(t *testing.T) {
	r := newMockedRobots(t)
	httpmock.RegisterResponder("GET", "https://agence.fr/robots.txt",
		httpmock.NewStringResponder(404, "not found"))

	allowed, err := r.Allowed(context.Background(), "agence.fr", "/annonces")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRobotsChecker_CachesPerDomain(t *testing.T) {
	r := newMockedRobots(t)
	httpmock.RegisterResponder("GET", "https://agence.fr/robots.txt",
		httpmock.NewStringResponder(200, "User-agent: *\nDisallow:\n"))

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		allowed, err := r.Allowed(ctx, "agence.fr", "/annonces")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}
