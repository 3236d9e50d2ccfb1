package match

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Comparison field names. These are the keys of the weight table and of the
// indicator map produced by Compare.
const (
	FieldFirstName   = "first_name"
	FieldLastName    = "last_name"
	FieldDateOfBirth = "date_of_birth"
	FieldSex         = "sex"
	FieldCity        = "city"
	FieldCountry     = "country"
	FieldPostalCode  = "postal_code"
	FieldEmail       = "email"
	FieldPhone       = "phone"
)

// fieldKind selects how a field's match indicator is computed.
type fieldKind int

const (
	kindExact     fieldKind = iota // normalized equality
	kindFuzzyName                  // Jaro-Winkler above threshold
	kindFuzzyEdit                  // edit-distance ratio above threshold
)

// fieldSpec fixes the comparison rule and similarity threshold per field.
type fieldSpec struct {
	name      string
	kind      fieldKind
	threshold float64
	value     func(Normalized) string
}

var compareFields = []fieldSpec{
	{FieldFirstName, kindFuzzyName, 0.85, func(n Normalized) string { return n.First }},
	{FieldLastName, kindFuzzyName, 0.85, func(n Normalized) string { return n.Last }},
	{FieldDateOfBirth, kindExact, 0, func(n Normalized) string { return n.DOB }},
	{FieldSex, kindExact, 0, func(n Normalized) string { return n.Sex }},
	{FieldCity, kindFuzzyName, 0.85, func(n Normalized) string { return n.City }},
	{FieldCountry, kindExact, 0, func(n Normalized) string { return n.Country }},
	{FieldPostalCode, kindFuzzyEdit, 0.88, func(n Normalized) string { return n.Postal }},
	{FieldEmail, kindFuzzyEdit, 0.88, func(n Normalized) string { return n.Email }},
	{FieldPhone, kindFuzzyEdit, 0.88, func(n Normalized) string { return n.Phone }},
}

// Compare computes the per-field binary match indicators for a pair of
// normalized records. A field with an empty value on either side scores 0;
// it still carries its full weight in the score denominator. Symmetric:
// Compare(a, b) == Compare(b, a).
func Compare(a, b Normalized) map[string]float64 {
	ind := make(map[string]float64, len(compareFields))
	for _, f := range compareFields {
		va, vb := f.value(a), f.value(b)
		if va == "" || vb == "" {
			ind[f.name] = 0
			continue
		}

		var matched bool
		switch f.kind {
		case kindExact:
			matched = va == vb
		case kindFuzzyName:
			matched = nameSimilarity(va, vb) >= f.threshold
		case kindFuzzyEdit:
			matched = editSimilarity(va, vb) >= f.threshold
		}
		if matched {
			ind[f.name] = 1
		} else {
			ind[f.name] = 0
		}
	}
	return ind
}

// FieldWeights maps comparison field names to their relative weights. A
// weight of 0 removes the field from both the numerator and the
// denominator, which is how the reduced 4-field comparison variant is
// expressed.
type FieldWeights map[string]float64

// DefaultWeights returns the standard 9-field weight table.
func DefaultWeights() FieldWeights {
	return FieldWeights{
		FieldFirstName:   3,
		FieldLastName:    2,
		FieldDateOfBirth: 3,
		FieldSex:         3,
		FieldEmail:       1,
		FieldPhone:       1,
		FieldCity:        1,
		FieldCountry:     1,
		FieldPostalCode:  1,
	}
}

// Validate checks that the weight table names only known fields, has no
// negative weights, and sums to a positive total.
func (w FieldWeights) Validate() error {
	known := make(map[string]bool, len(compareFields))
	for _, f := range compareFields {
		known[f.name] = true
	}

	var errs []string
	var sum float64
	for name, wt := range w {
		if !known[name] {
			errs = append(errs, fmt.Sprintf("unknown field %q", name))
		}
		if wt < 0 {
			errs = append(errs, fmt.Sprintf("%s weight must be >= 0", name))
		}
		sum += wt
	}
	if sum <= 0 {
		errs = append(errs, "weights must sum to a positive total")
	}
	if len(errs) > 0 {
		return eris.New("match: invalid weights: " + strings.Join(errs, "; "))
	}
	return nil
}

// Score aggregates field indicators into one confidence value in [0,1]:
// the weighted fraction of compared fields that matched.
func Score(indicators map[string]float64, w FieldWeights) float64 {
	var matched, total float64
	for name, wt := range w {
		if wt <= 0 {
			continue
		}
		total += wt
		matched += indicators[name] * wt
	}
	if total == 0 {
		return 0
	}
	return matched / total
}

// ScorePair is a convenience for Compare followed by Score.
func ScorePair(a, b Normalized, w FieldWeights) float64 {
	return Score(Compare(a, b), w)
}
