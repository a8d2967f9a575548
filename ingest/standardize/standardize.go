// Package standardize provides the pure parsing helpers shared by every
// source standardizer: free-text prices, scrape timestamps, delimited
// category paths and name-derived product ids.
package standardize

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Matches the first numeric token, with either comma or dot as the decimal
// separator. Currency symbols and unit suffixes ("€ / KG") around it are
// ignored.
var priceToken = regexp.MustCompile(`(\d+[,.]?\d*)`)

// ExtractPrice pulls a price out of strings like "1,99€", "0,89€ / KG" or
// "2.50€". Already-numeric input is returned as-is. Returns nil when no
// numeric token is present; a missing price is data, not an error.
func ExtractPrice(raw string) *float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return &v
	}

	token := priceToken.FindString(s)
	if token == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(token, ",", "."), 64)
	if err != nil {
		return nil
	}
	return &v
}

var timestampLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"20060102_150405",
	"20060102",
}

// ParseTimestamp accepts the observation timestamp formats that appear in
// scraped batches: ISO date(-time), 20060102_150405, bare 20060102 and the
// "20060102.0" shape left behind by numeric coercion.
func ParseTimestamp(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	// numeric coercion artifact: 20250106.0
	s = strings.TrimSuffix(s, ".0")

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", raw)
}

// SplitCategory splits a delimited category path ("Dairy / Fresh / Milk")
// into exactly three trimmed levels. Missing levels are padded with "",
// levels beyond the third are dropped.
func SplitCategory(raw string) (level1, level2, level3 string) {
	parts := strings.Split(raw, "/")
	levels := [3]string{}
	for i := 0; i < len(parts) && i < 3; i++ {
		levels[i] = strings.TrimSpace(parts[i])
	}
	return levels[0], levels[1], levels[2]
}

// DeriveProductID builds a deterministic stand-in id for sources that have
// no native one: the name is case-folded and stripped to alphanumerics,
// then the first 32 bits of its MD5 digest become a decimal string.
func DeriveProductID(productName string) string {
	var cleaned strings.Builder
	for _, r := range productName {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cleaned.WriteRune(unicode.ToLower(r))
		}
	}
	if cleaned.Len() == 0 {
		return ""
	}
	sum := md5.Sum([]byte(cleaned.String()))
	return strconv.FormatUint(uint64(binary.BigEndian.Uint32(sum[:4])), 10)
}
