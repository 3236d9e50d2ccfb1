package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubops/registry-cli/internal/model"
)

func record(first, last, phone, city string) Normalized {
	return NormalizeRaw(model.RawRecord{
		FirstName:   first,
		LastName:    last,
		DateOfBirth: time.Date(1990, time.May, 1, 0, 0, 0, 0, time.UTC),
		Sex:         "M",
		Email:       "john.smith@x.com",
		Phone:       phone,
		City:        city,
		Country:     "CA",
		PostalCode:  "K1A0B1",
	})
}

// Two records identical except for a missing phone and city score
// 14/16 = 0.875 under the default weights: the empty fields contribute 0 to
// the numerator but keep their weight in the denominator.
func TestScorePair_MissingFieldsKeepWeight(t *testing.T) {
	r1 := record("John", "Smith", "6135551234", "Ottawa")
	r2 := record("John", "Smith", "", "")

	got := ScorePair(r1, r2, DefaultWeights())
	assert.InDelta(t, 0.875, got, 1e-9)
}

func TestScorePair_Identical(t *testing.T) {
	r := record("John", "Smith", "6135551234", "Ottawa")
	assert.Equal(t, 1.0, ScorePair(r, r, DefaultWeights()))
}

func TestCompare_Symmetric(t *testing.T) {
	a := record("John", "Smith", "6135551234", "Ottawa")
	b := record("Jon", "Smyth", "6135551235", "Otawa")

	assert.Equal(t, Compare(a, b), Compare(b, a))
	assert.Equal(t, ScorePair(a, b, DefaultWeights()), ScorePair(b, a, DefaultWeights()))
}

func TestCompare_FuzzyTolerance(t *testing.T) {
	a := record("John", "Smith", "6135551234", "Ottawa")
	b := record("Jonh", "Smith", "6135551234", "Ottawa") // transposed first name

	ind := Compare(a, b)
	assert.Equal(t, 1.0, ind[FieldFirstName])
	assert.Equal(t, 1.0, ind[FieldLastName])
	assert.Equal(t, 1.0, ind[FieldDateOfBirth])
}

func TestCompare_ExactFieldsNoFuzz(t *testing.T) {
	a := record("John", "Smith", "", "")
	b := record("John", "Smith", "", "")
	b.DOB = "1990-05-02" // one day off is a miss, exact fields don't fuzz

	ind := Compare(a, b)
	assert.Equal(t, 0.0, ind[FieldDateOfBirth])
}

// Zeroing weights reduces the comparison to the named fields; this is the
// 4-field variant used for the simpler matching path.
func TestScore_ZeroWeightFieldsExcluded(t *testing.T) {
	w := FieldWeights{
		FieldFirstName: 1,
		FieldLastName:  1,
		FieldEmail:     1,
		FieldPhone:     1,
	}
	require.NoError(t, w.Validate())

	a := record("John", "Smith", "6135551234", "Ottawa")
	b := record("John", "Smith", "6135551234", "Toronto") // city differs but carries no weight
	b.DOB = "1970-01-01"                                  // nor does dob

	assert.Equal(t, 1.0, ScorePair(a, b, w))
}

func TestFieldWeights_Validate(t *testing.T) {
	assert.NoError(t, DefaultWeights().Validate())

	assert.Error(t, FieldWeights{}.Validate())
	assert.Error(t, FieldWeights{FieldFirstName: -1, FieldLastName: 2}.Validate())
	assert.Error(t, FieldWeights{"middle_name": 3}.Validate())
}

func TestScore_EmptyIndicators(t *testing.T) {
	assert.Equal(t, 0.0, Score(map[string]float64{}, DefaultWeights()))
}
