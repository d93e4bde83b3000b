package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/immoweave/harvester/internal/model"
)

// foldTransformer strips diacritics so "Résidence" and "Residence"
// normalize identically.
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func fold(s string) string {
	out, _, err := transform.String(foldTransformer, s)
	if err != nil {
		return s
	}
	return out
}

// normalizeText lowercases, folds accents and collapses whitespace.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(fold(s))), " ")
}

// Identify computes the canonical content hash for a listing: a SHA-256
// digest over the normalized (title, price, street+postal) tuple. The
// hash is deliberately coarser than the source URL so the same physical
// listing mirrored across agency sites collides.
func Identify(title string, price *int64, address, postalCode string) string {
	var p string
	if price != nil {
		p = strconv.FormatInt(*price, 10)
	}
	key := normalizeText(title) + "|" + p + "|" + normalizeText(address+" "+postalCode)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// IdentifyRaw is Identify over an extractor result.
func IdentifyRaw(raw *model.RawListing) string {
	return Identify(raw.Title, raw.Price, raw.Address, raw.PostalCode)
}
