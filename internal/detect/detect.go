// Package detect classifies a fetched page into a platform signature or
// derives a heuristic listing-item selector from repeated DOM structure.
package detect

import (
	"bytes"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/immoweave/harvester/internal/resilience"
)

// FormatProfile is the detector's verdict: which selector yields the
// listing cards on this site, and how sure we are.
type FormatProfile struct {
	Platform     string  `json:"platform"`
	ItemSelector string  `json:"item_selector"`
	Confidence   float64 `json:"confidence"`
}

// Detector runs the two-tier strategy: signature table first, heuristic
// cluster analysis as fallback.
type Detector struct {
	threshold  float64
	minCluster int
}

// New creates a Detector rejecting profiles below threshold. Heuristic
// clusters smaller than minCluster never qualify. Zero values take the
// defaults, 0.4 and 3.
func New(threshold float64, minCluster int) *Detector {
	if threshold == 0 {
		threshold = 0.4
	}
	if minCluster <= 0 {
		minCluster = 3
	}
	return &Detector{threshold: threshold, minCluster: minCluster}
}

var (
	priceTokenRe = regexp.MustCompile(`(?i)(\d[\d\s .,]*\s*(€|eur\b))|(€\s*\d)`)
	addrTokenRe  = regexp.MustCompile(`(?i)\b\d{5}\b|\b(rue|avenue|boulevard|place|chemin|impasse|allée)\b`)
)

// Detect classifies the page. A profile below the confidence threshold
// is rejected with ErrFormatUndetected; this is a site-structure verdict,
// never an abuse signal.
func (d *Detector) Detect(body []byte, pageURL string) (*FormatProfile, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrapf(err, "detect: parse %s", pageURL)
	}

	lower := strings.ToLower(string(body))
	platform := matchSignature(lower)

	if platform != nil {
		for _, sel := range platform.ItemSelectors {
			matched := doc.Find(sel)
			if matched.Length() >= 2 && selectionHasPriceTokens(matched) {
				return &FormatProfile{
					Platform:     platform.Platform,
					ItemSelector: sel,
					Confidence:   0.9,
				}, nil
			}
		}
	}

	profile := d.heuristic(doc)
	if profile == nil || profile.Confidence < d.threshold {
		zap.L().Info("format undetected",
			zap.String("url", pageURL),
			zap.Float64("threshold", d.threshold),
		)
		return nil, eris.Wrapf(resilience.ErrFormatUndetected, "detect: %s", pageURL)
	}
	if platform != nil {
		profile.Platform = platform.Platform
	}
	return profile, nil
}

func matchSignature(lowerHTML string) *Signature {
	for i := range signatures {
		for _, marker := range signatures[i].Markers {
			if strings.Contains(lowerHTML, marker) {
				return &signatures[i]
			}
		}
	}
	return nil
}

func selectionHasPriceTokens(sel *goquery.Selection) bool {
	hits := 0
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if priceTokenRe.MatchString(s.Text()) {
			hits++
		}
		return hits < 2
	})
	return hits >= 2
}

type cluster struct {
	selector  string
	size      int
	priceHits int
	addrHits  int
}

func (c *cluster) score() float64 {
	return float64(c.priceHits) + 0.5*float64(c.addrHits)
}

func (c *cluster) confidence() float64 {
	density := float64(c.priceHits) / float64(c.size)
	sizeBonus := float64(c.size) * 0.02
	if sizeBonus > 0.2 {
		sizeBonus = 0.2
	}
	return 0.3 + 0.3*density + sizeBonus
}

// heuristic finds the repeated class-sharing sibling structure that most
// co-occurs with price and address tokens. Tie-break is deterministic:
// higher score, then larger cluster, then lexicographically smaller
// selector.
func (d *Detector) heuristic(doc *goquery.Document) *FormatProfile {
	clusters := make(map[string]*cluster)

	doc.Find("body *").Each(func(_ int, s *goquery.Selection) {
		tag := goquery.NodeName(s)
		switch tag {
		case "script", "style", "html", "body", "head", "a", "span", "img", "br":
			return
		}
		class, ok := s.Attr("class")
		if !ok {
			return
		}
		first := firstClass(class)
		if first == "" {
			return
		}
		sel := tag + "." + first

		c, ok := clusters[sel]
		if !ok {
			c = &cluster{selector: sel}
			clusters[sel] = c
		}
		c.size++
		text := s.Text()
		if priceTokenRe.MatchString(text) {
			c.priceHits++
		}
		if addrTokenRe.MatchString(text) {
			c.addrHits++
		}
	})

	var qualified []*cluster
	for _, c := range clusters {
		if c.size >= d.minCluster && c.priceHits >= 2 {
			qualified = append(qualified, c)
		}
	}
	if len(qualified) == 0 {
		return nil
	}

	sort.Slice(qualified, func(i, j int) bool {
		a, b := qualified[i], qualified[j]
		if a.score() != b.score() {
			return a.score() > b.score()
		}
		if a.size != b.size {
			return a.size > b.size
		}
		return a.selector < b.selector
	})

	best := qualified[0]
	return &FormatProfile{
		Platform:     "custom",
		ItemSelector: best.selector,
		Confidence:   best.confidence(),
	}
}

func firstClass(class string) string {
	for _, c := range strings.Fields(class) {
		// Skip framework utility junk that never identifies a card.
		if strings.HasPrefix(c, "js-") || len(c) < 3 {
			continue
		}
		return c
	}
	return ""
}
