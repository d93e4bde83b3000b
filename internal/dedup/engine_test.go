package dedup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/immoweave/harvester/internal/model"
	"github.com/immoweave/harvester/internal/store"
)

func newEngine(t *testing.T) (*Engine, store.Store, string) {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	agency := &model.Agency{WebsiteURL: "https://agence.fr", Status: model.AgencyStatusActive, IsActive: true}
	require.NoError(t, st.UpsertAgency(context.Background(), agency))
	return New(st), st, agency.ID
}

func rawListing(title string, price int64, addr, postal, sourceURL string) *model.RawListing {
	return &model.RawListing{
		Title:      title,
		Price:      &price,
		Address:    addr,
		PostalCode: postal,
		SourceURL:  sourceURL,
		Confidence: map[string]float64{
			model.FieldTitle:   0.9,
			model.FieldPrice:   0.9,
			model.FieldAddress: 0.9,
		},
	}
}

func TestIdentify_NormalizationEquivalence(t *testing.T) {
	price := int64(450000)
	h1 := Identify("Appt 3p Résidence", &price, "12 Rue X", "75015")
	h2 := Identify("  appt 3p residence ", &price, "12 rue x", "75015")
	assert.Equal(t, h1, h2)

	other := int64(450001)
	h3 := Identify("Appt 3p Résidence", &other, "12 Rue X", "75015")
	assert.NotEqual(t, h1, h3)

	h4 := Identify("Appt 3p Résidence", nil, "12 Rue X", "75015")
	assert.NotEqual(t, h1, h4)
}

func TestApply_CreatesNewListing(t *testing.T) {
	e, _, agencyID := newEngine(t)
	ctx := context.Background()

	res, err := e.Apply(ctx, agencyID, rawListing("Appt 3p", 450000, "12 Rue X", "75015", "https://agence.fr/1"))
	require.NoError(t, err)
	assert.Equal(t, KindCreated, res.Kind)
	require.NotNil(t, res.Event)
	assert.Equal(t, model.ChangeAdded, res.Event.Type)
	assert.NotEmpty(t, res.Listing.ID)
	assert.Nil(t, res.Listing.DuplicateOf)
}

func TestApply_RepeatScrapeUnchanged(t *testing.T) {
	e, _, agencyID := newEngine(t)
	ctx := context.Background()
	raw := rawListing("Appt 3p", 450000, "12 Rue X", "75015", "https://agence.fr/1")

	_, err := e.Apply(ctx, agencyID, raw)
	require.NoError(t, err)

	res, err := e.Apply(ctx, agencyID, raw)
	require.NoError(t, err)
	assert.Equal(t, KindUnchanged, res.Kind)
	assert.Nil(t, res.Event)
}

func TestApply_PriceDriftAlwaysWins(t *testing.T) {
	e, st, agencyID := newEngine(t)
	ctx := context.Background()

	_, err := e.Apply(ctx, agencyID, rawListing("Appt 3p", 450000, "12 Rue X", "75015", "https://agence.fr/1"))
	require.NoError(t, err)

	// Second scrape with lower extraction confidence but a new price.
	updated := rawListing("Appt 3p", 430000, "12 Rue X", "75015", "https://agence.fr/1")
	updated.Confidence[model.FieldPrice] = 0.3

	res, err := e.Apply(ctx, agencyID, updated)
	require.NoError(t, err)
	assert.Equal(t, KindUpdated, res.Kind)
	require.NotNil(t, res.Event)
	assert.Equal(t, model.ChangeUpdated, res.Event.Type)
	require.NotNil(t, res.Event.OldPrice)
	assert.Equal(t, int64(450000), *res.Event.OldPrice)
	require.NotNil(t, res.Event.NewPrice)
	assert.Equal(t, int64(430000), *res.Event.NewPrice)

	// The drift also lands in the append-only history.
	history, err := st.ListListingHistory(ctx, res.Listing.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.FieldPrice, history[0].Field)
	assert.Equal(t, "450000", history[0].OldValue)
	assert.Equal(t, "430000", history[0].NewValue)
}

func TestApply_LowConfidenceFieldDoesNotOverwrite(t *testing.T) {
	e, _, agencyID := newEngine(t)
	ctx := context.Background()

	_, err := e.Apply(ctx, agencyID, rawListing("Appt 3p lumineux", 450000, "12 Rue X", "75015", "https://agence.fr/1"))
	require.NoError(t, err)

	weaker := rawListing("Appt", 450000, "12 Rue X", "75015", "https://agence.fr/1")
	weaker.Confidence[model.FieldTitle] = 0.2

	res, err := e.Apply(ctx, agencyID, weaker)
	require.NoError(t, err)
	assert.Equal(t, "Appt 3p lumineux", res.Listing.Title)
}

func TestApply_CrossURLDuplicateLinked(t *testing.T) {
	e, st, agencyID := newEngine(t)
	ctx := context.Background()

	first, err := e.Apply(ctx, agencyID, rawListing("Appt 3p", 450000, "12 Rue X", "75015", "https://agence.fr/1"))
	require.NoError(t, err)

	// Same physical listing mirrored on a second site.
	agency2 := &model.Agency{WebsiteURL: "https://portail.fr", Status: model.AgencyStatusActive, IsActive: true}
	require.NoError(t, st.UpsertAgency(ctx, agency2))

	res, err := e.Apply(ctx, agency2.ID, rawListing("Appt 3p", 450000, "12 Rue X", "75015", "https://portail.fr/annonce/9"))
	require.NoError(t, err)
	assert.Equal(t, KindDuplicate, res.Kind)
	assert.Nil(t, res.Event)
	require.NotNil(t, res.Listing.DuplicateOf)
	assert.Equal(t, first.Listing.ID, *res.Listing.DuplicateOf)

	// Exactly one canonical active record for the hash.
	canonical, err := st.GetListingByHash(ctx, first.Listing.Hash)
	require.NoError(t, err)
	assert.Equal(t, first.Listing.ID, canonical.ID)
}

func TestApply_LinklessListingsStayDistinct(t *testing.T) {
	e, st, agencyID := newEngine(t)
	ctx := context.Background()

	first, err := e.Apply(ctx, agencyID, rawListing("Studio meublé", 520, "2 Rue A", "69001", ""))
	require.NoError(t, err)
	second, err := e.Apply(ctx, agencyID, rawListing("T2 avec terrasse", 680, "5 Rue B", "69002", ""))
	require.NoError(t, err)

	// Two link-less cards with different content are different listings,
	// not repeat scrapes of one another.
	assert.Equal(t, KindCreated, first.Kind)
	assert.Equal(t, KindCreated, second.Kind)
	assert.NotEqual(t, first.Listing.ID, second.Listing.ID)
	assert.Nil(t, second.Listing.DuplicateOf)

	hashes, err := st.GetActiveListingHashes(ctx, agencyID)
	require.NoError(t, err)
	assert.Len(t, hashes, 2)
}

func TestApply_LinklessRepeatScrapeMerges(t *testing.T) {
	e, _, agencyID := newEngine(t)
	ctx := context.Background()

	_, err := e.Apply(ctx, agencyID, rawListing("Studio meublé", 520, "2 Rue A", "69001", ""))
	require.NoError(t, err)

	// Identical content resolves by hash and merges instead of piling up
	// a new record per cycle.
	res, err := e.Apply(ctx, agencyID, rawListing("Studio meublé", 520, "2 Rue A", "69001", ""))
	require.NoError(t, err)
	assert.Equal(t, KindUnchanged, res.Kind)
}

func TestApply_DuplicateOfStaysForest(t *testing.T) {
	e, st, agencyID := newEngine(t)
	ctx := context.Background()

	first, err := e.Apply(ctx, agencyID, rawListing("Maison 5p", 560000, "4 Rue Y", "33000", "https://agence.fr/m1"))
	require.NoError(t, err)

	second, err := e.Apply(ctx, agencyID, rawListing("Maison 5p", 560000, "4 Rue Y", "33000", "https://mirror-a.fr/m1"))
	require.NoError(t, err)
	third, err := e.Apply(ctx, agencyID, rawListing("Maison 5p", 560000, "4 Rue Y", "33000", "https://mirror-b.fr/m1"))
	require.NoError(t, err)

	// Both mirrors point directly at the root, never at each other.
	require.NotNil(t, second.Listing.DuplicateOf)
	require.NotNil(t, third.Listing.DuplicateOf)
	assert.Equal(t, first.Listing.ID, *second.Listing.DuplicateOf)
	assert.Equal(t, first.Listing.ID, *third.Listing.DuplicateOf)

	root, err := st.GetListing(ctx, first.Listing.ID)
	require.NoError(t, err)
	assert.Nil(t, root.DuplicateOf)
}
