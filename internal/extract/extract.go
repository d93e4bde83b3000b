// Package extract pulls structured listing fields out of a page using
// the selector profile chosen by the format detector. One canonical
// extractor parameterized by profile; platforms add signature-table
// entries, not code paths.
package extract

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/immoweave/harvester/internal/detect"
	"github.com/immoweave/harvester/internal/model"
)

// fieldPatterns are tried in order per field; the index determines the
// confidence of a hit. A regex fallback over the card's full text scores
// lower than a dedicated selector.
var (
	titleSelectors = []string{
		".titre", ".title", ".property-title", ".listing-title",
		"h1", "h2", "h3",
	}
	priceSelectors = []string{
		".prix", ".price", "[class*='prix']", "[class*='price']",
	}
	surfaceSelectors = []string{
		".surface", "[class*='surface']",
	}
	addressSelectors = []string{
		".adresse", ".address", ".localisation", "[class*='adresse']",
		"[class*='location']",
	}
	descSelectors = []string{
		".description", ".desc", "[class*='description']", "p",
	}
)

// Extractor resolves listing fields from detected cards.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

// Extract parses every card matched by the profile's item selector.
// Fields that resolve stay filled with a confidence score; fields that
// do not stay nil or empty. Cards with neither title nor price are
// dropped.
func (e *Extractor) Extract(body []byte, profile *detect.FormatProfile, pageURL string) ([]model.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrapf(err, "extract: parse %s", pageURL)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: parse base url %s", pageURL)
	}

	var listings []model.RawListing
	dropped := 0
	doc.Find(profile.ItemSelector).Each(func(_ int, card *goquery.Selection) {
		l := e.extractCard(card, base)
		if !l.Usable() {
			dropped++
			return
		}
		listings = append(listings, l)
	})

	if dropped > 0 {
		zap.L().Debug("dropped unusable cards",
			zap.String("url", pageURL),
			zap.Int("dropped", dropped),
		)
	}
	return listings, nil
}

func (e *Extractor) extractCard(card *goquery.Selection, base *url.URL) model.RawListing {
	l := model.RawListing{Confidence: make(map[string]float64)}
	cardText := collapseSpaces(card.Text())

	if title, conf := textBySelectors(card, titleSelectors); title != "" {
		l.Title = scrubPersonalData(title)
		l.Confidence[model.FieldTitle] = conf
	}

	if priceText, conf := textBySelectors(card, priceSelectors); priceText != "" {
		if p := parsePrice(priceText); p != nil {
			l.Price = p
			l.Confidence[model.FieldPrice] = conf
		}
	}
	if l.Price == nil {
		if p := parsePrice(cardText); p != nil {
			l.Price = p
			l.Confidence[model.FieldPrice] = 0.5
		}
	}

	if surfText, conf := textBySelectors(card, surfaceSelectors); surfText != "" {
		if s := parseSurface(surfText); s != nil {
			l.Surface = s
			l.Confidence[model.FieldSurface] = conf
		}
	}
	if l.Surface == nil {
		if s := parseSurface(cardText); s != nil {
			l.Surface = s
			l.Confidence[model.FieldSurface] = 0.5
		}
	}

	if r := parseRooms(cardText); r != nil {
		l.Rooms = r
		l.Confidence[model.FieldRooms] = 0.6
	}
	if b := parseBedrooms(cardText); b != nil {
		l.Bedrooms = b
		l.Confidence[model.FieldBedrooms] = 0.6
	}

	if addr, conf := textBySelectors(card, addressSelectors); addr != "" {
		l.Address = scrubPersonalData(addr)
		l.Confidence[model.FieldAddress] = conf
	}
	addrSource := l.Address
	if addrSource == "" {
		addrSource = cardText
	}
	if postal, city := parsePostalCity(addrSource); postal != "" {
		l.PostalCode = postal
		l.City = city
		l.Confidence[model.FieldPostal] = 0.6
		l.Confidence[model.FieldCity] = 0.6
	}

	if desc, conf := textBySelectors(card, descSelectors); desc != "" && desc != l.Title {
		l.Description = scrubPersonalData(desc)
		l.Confidence[model.FieldDesc] = conf
	}

	l.PropertyType = propertyTypeOf(cardText)
	l.OperationType = operationTypeOf(cardText)

	card.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || src == "" {
			src, ok = img.Attr("data-src")
		}
		if !ok || src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		if abs := resolveURL(base, src); abs != "" {
			l.Photos = append(l.Photos, abs)
		}
	})
	if len(l.Photos) > 0 {
		l.Confidence[model.FieldPhotos] = 0.8
	}

	// Cards without a detail link keep an empty SourceURL; a shared
	// page URL would collapse distinct link-less cards into one record
	// downstream.
	if href, ok := card.Find("a[href]").First().Attr("href"); ok {
		l.SourceURL = resolveURL(base, href)
	}

	return l
}

// textBySelectors returns the first selector hit and a confidence that
// decreases with the pattern's position in the list.
func textBySelectors(card *goquery.Selection, selectors []string) (string, float64) {
	for i, sel := range selectors {
		found := card.Find(sel).First()
		if found.Length() == 0 {
			continue
		}
		text := collapseSpaces(found.Text())
		if text == "" {
			continue
		}
		conf := 0.9 - 0.05*float64(i)
		if conf < 0.6 {
			conf = 0.6
		}
		return text, conf
	}
	return "", 0
}

func resolveURL(base *url.URL, ref string) string {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}
