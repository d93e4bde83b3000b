package detect

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/immoweave/harvester/internal/resilience"
)

func card(class, title, price, addr string) string {
	return `<div class="` + class + `"><h3>` + title + `</h3><span class="prix">` + price +
		`</span><p>` + addr + `</p></div>`
}

func wordpressPage(cards int) string {
	var b strings.Builder
	b.WriteString(`<html><head><link href="/wp-content/themes/immo/style.css"></head><body>`)
	for i := 0; i < cards; i++ {
		b.WriteString(`<article class="property"><h3>Maison</h3><span>250 000 €</span><p>12 rue des Lilas, 69003 Lyon</p></article>`)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

func TestDetect_SignatureMatch(t *testing.T) {
	d := New(0.4, 0)
	profile, err := d.Detect([]byte(wordpressPage(4)), "https://agence.fr")
	require.NoError(t, err)
	assert.Equal(t, "wordpress", profile.Platform)
	assert.Equal(t, "article.property", profile.ItemSelector)
	assert.Equal(t, 0.9, profile.Confidence)
}

func TestDetect_HeuristicCluster(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<html><body><div class="header">Agence Martin</div><ul class="annonces">`)
	for i := 0; i < 6; i++ {
		b.WriteString(card("bien-immo", "Appartement T3", "320 000 €", "8 avenue Foch, 75116 Paris"))
	}
	b.WriteString(`</ul></body></html>`)

	d := New(0.4, 0)
	profile, err := d.Detect([]byte(b.String()), "https://agence.fr")
	require.NoError(t, err)
	assert.Equal(t, "custom", profile.Platform)
	assert.Equal(t, "div.bien-immo", profile.ItemSelector)
	assert.GreaterOrEqual(t, profile.Confidence, 0.4)
}

func TestDetect_SignaturePlatformWithHeuristicSelector(t *testing.T) {
	// A WordPress site whose theme uses none of the conventional card
	// classes still gets classified by platform.
	var b strings.Builder
	b.WriteString(`<html><head><script src="/wp-includes/js/jquery.js"></script></head><body>`)
	for i := 0; i < 5; i++ {
		b.WriteString(card("maison-card", "Maison de ville", "189 000 €", "3 rue Pasteur, 44000 Nantes"))
	}
	b.WriteString(`</body></html>`)

	d := New(0.4, 0)
	profile, err := d.Detect([]byte(b.String()), "https://agence.fr")
	require.NoError(t, err)
	assert.Equal(t, "wordpress", profile.Platform)
	assert.Equal(t, "div.maison-card", profile.ItemSelector)
}

func TestDetect_NoRepeatedStructure(t *testing.T) {
	page := `<html><body><div class="contact">Contactez-nous au sujet de nos biens</div></body></html>`
	d := New(0.4, 0)
	_, err := d.Detect([]byte(page), "https://agence.fr")
	require.Error(t, err)
	assert.True(t, errors.Is(err, resilience.ErrFormatUndetected))
}

func TestDetect_TieBreakDeterministic(t *testing.T) {
	// Two clusters with identical size and token profile: the
	// lexicographically smaller selector must win, every time.
	var b strings.Builder
	b.WriteString(`<html><body>`)
	for i := 0; i < 4; i++ {
		b.WriteString(card("beta-card", "T2", "150 000 €", "rue A, 31000 Toulouse"))
	}
	for i := 0; i < 4; i++ {
		b.WriteString(card("alpha-card", "T2", "150 000 €", "rue B, 31000 Toulouse"))
	}
	b.WriteString(`</body></html>`)

	d := New(0.4, 0)
	for i := 0; i < 5; i++ {
		profile, err := d.Detect([]byte(b.String()), "https://agence.fr")
		require.NoError(t, err)
		assert.Equal(t, "div.alpha-card", profile.ItemSelector)
	}
}

func TestDetect_LargerClusterWins(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<html><body>`)
	for i := 0; i < 3; i++ {
		b.WriteString(card("petit", "Studio", "95 000 €", "rue C, 63000 Clermont"))
	}
	for i := 0; i < 8; i++ {
		b.WriteString(card("grand", "T4", "260 000 €", "rue D, 63000 Clermont"))
	}
	b.WriteString(`</body></html>`)

	d := New(0.4, 0)
	profile, err := d.Detect([]byte(b.String()), "https://agence.fr")
	require.NoError(t, err)
	assert.Equal(t, "div.grand", profile.ItemSelector)
}

func TestProfileCache(t *testing.T) {
	c := NewProfileCache(0, time.Minute)
	_, ok := c.Get("agence.fr")
	assert.False(t, ok)

	p := &FormatProfile{Platform: "custom", ItemSelector: "div.card", Confidence: 0.6}
	c.Put("agence.fr", p)
	got, ok := c.Get("agence.fr")
	require.True(t, ok)
	assert.Equal(t, "div.card", got.ItemSelector)

	c.Invalidate("agence.fr")
	_, ok = c.Get("agence.fr")
	assert.False(t, ok)
}
