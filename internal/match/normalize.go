// Package match implements the identity-resolution engine: it deduplicates
// unprocessed registration records into person clusters, links clusters to
// canonical entities, and detects duplicate canonical entities for merging.
package match

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/clubops/registry-cli/internal/model"
)

// dobLayout is the comparison form for dates of birth.
const dobLayout = "2006-01-02"

var (
	multiSpaceRe = regexp.MustCompile(`\s{2,}`)
	nonDigitRe   = regexp.MustCompile(`\D`)
)

// Normalized holds the comparison form of a record's identity fields. Both
// sides of every comparison go through the same normalization, so the
// comparator stays symmetric.
type Normalized struct {
	First   string
	Last    string
	DOB     string
	Sex     string
	City    string
	Country string
	Postal  string
	Email   string
	Phone   string
}

// NormalizeRaw returns the comparison form of a raw record.
func NormalizeRaw(r model.RawRecord) Normalized {
	return Normalized{
		First:   normText(r.FirstName),
		Last:    normText(r.LastName),
		DOB:     normDate(r.DateOfBirth),
		Sex:     normText(r.Sex),
		City:    normText(r.City),
		Country: normText(r.Country),
		Postal:  normText(r.PostalCode),
		Email:   normText(r.Email),
		Phone:   normPhone(r.Phone),
	}
}

// NormalizeCanonical returns the comparison form of a canonical entity.
func NormalizeCanonical(e model.CanonicalEntity) Normalized {
	return Normalized{
		First:   normText(e.FirstName),
		Last:    normText(e.LastName),
		DOB:     normDate(e.DateOfBirth),
		Sex:     normText(e.Sex),
		City:    normText(e.City),
		Country: normText(e.Country),
		Postal:  normText(e.PostalCode),
		Email:   normText(e.Email),
		Phone:   normPhone(e.Phone),
	}
}

// normText canonicalizes a text field: NFKC fold, lower-case, trim, and
// collapse runs of whitespace.
func normText(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(strings.TrimSpace(s))
	return multiSpaceRe.ReplaceAllString(s, " ")
}

// normPhone strips a phone number to digits only.
func normPhone(s string) string {
	return nonDigitRe.ReplaceAllString(s, "")
}

func normDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dobLayout)
}
