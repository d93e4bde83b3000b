package extract

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	priceRe    = regexp.MustCompile(`(\d{1,3}(?:[ \x{00a0}.]\d{3})*|\d+)\s*(?:€|eur\b|euros\b)`)
	surfaceRe  = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*m(?:²|2\b)`)
	roomsRe    = regexp.MustCompile(`(?i)(\d+)\s*pi[èe]ces?\b`)
	roomsTFRe  = regexp.MustCompile(`(?i)\b[TF](\d)\b`)
	bedroomsRe = regexp.MustCompile(`(?i)(\d+)\s*chambres?\b`)
	postalRe   = regexp.MustCompile(`\b(\d{5})\s+([\p{L}' -]+)`)

	phoneRe = regexp.MustCompile(`(?:\+33|0)\s*[1-9](?:[ .\-]?\d{2}){4}`)
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
)

// parsePrice extracts a whole-euro amount from French price text such as
// "250 000 €", "250.000€" or "1 200 €/mois". Returns nil when no price
// token is present; zero is never fabricated.
func parsePrice(text string) *int64 {
	m := priceRe.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return nil
	}
	digits := strings.NewReplacer(" ", "", "\u00a0", "", ".", "").Replace(m[1])
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}

// parseSurface extracts square meters, rounding to the nearest integer.
func parseSurface(text string) *int {
	m := surfaceRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil || f <= 0 {
		return nil
	}
	v := int(f + 0.5)
	return &v
}

// parseRooms handles "4 pièces" and the T3/F2 shorthand.
func parseRooms(text string) *int {
	if m := roomsRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil && v > 0 {
			return &v
		}
	}
	if m := roomsTFRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil && v > 0 {
			return &v
		}
	}
	return nil
}

func parseBedrooms(text string) *int {
	m := bedroomsRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := strconv.Atoi(m[1])
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}

// parsePostalCity pulls "69003 Lyon" style fragments out of address text.
func parsePostalCity(text string) (postal, city string) {
	m := postalRe.FindStringSubmatch(text)
	if m == nil {
		return "", ""
	}
	return m[1], strings.TrimSpace(m[2])
}

// propertyTypeOf maps French listing vocabulary to a coarse type tag.
func propertyTypeOf(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "appartement"), strings.Contains(lower, "studio"),
		roomsTFRe.MatchString(text):
		return "appartement"
	case strings.Contains(lower, "maison"), strings.Contains(lower, "villa"),
		strings.Contains(lower, "pavillon"):
		return "maison"
	case strings.Contains(lower, "terrain"):
		return "terrain"
	case strings.Contains(lower, "parking"), strings.Contains(lower, "garage"):
		return "parking"
	case strings.Contains(lower, "local"), strings.Contains(lower, "bureau"),
		strings.Contains(lower, "commerce"):
		return "local"
	}
	return ""
}

// operationTypeOf distinguishes sale from rental listings.
func operationTypeOf(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "location"), strings.Contains(lower, "louer"),
		strings.Contains(lower, "/mois"), strings.Contains(lower, "par mois"):
		return "location"
	case strings.Contains(lower, "vente"), strings.Contains(lower, "vendre"),
		strings.Contains(lower, "acheter"), strings.Contains(lower, "achat"):
		return "vente"
	}
	return ""
}

// scrubPersonalData removes agent phone numbers and email addresses
// from free text before anything is persisted.
func scrubPersonalData(text string) string {
	text = phoneRe.ReplaceAllString(text, "")
	text = emailRe.ReplaceAllString(text, "")
	return collapseSpaces(text)
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
