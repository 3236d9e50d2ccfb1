package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubops/registry-cli/internal/model"
)

func linkerEntity(id int64, first, last, phone, postal string) canonicalRef {
	e := model.CanonicalEntity{
		ID:          id,
		FirstName:   first,
		LastName:    last,
		DateOfBirth: time.Date(1990, time.May, 1, 0, 0, 0, 0, time.UTC),
		Sex:         "M",
		City:        "Ottawa",
		Country:     "CA",
		PostalCode:  postal,
		Email:       "john.smith@x.com",
		Phone:       phone,
	}
	return canonicalRef{entity: e, norm: NormalizeCanonical(e)}
}

func linkerMember() Normalized {
	return record("John", "Smith", "6135551234", "Ottawa")
}

func TestLinkCluster_CreateWhenNothingScores(t *testing.T) {
	canon := []canonicalRef{
		linkerEntity(1, "Alice", "Brown", "", ""),
	}
	dec := LinkCluster([]Normalized{linkerMember()}, canon, DefaultWeights(), 0.8)

	assert.Equal(t, model.DecisionCreate, dec.Kind)
	assert.Empty(t, dec.Candidates)
}

func TestLinkCluster_CreateOnEmptyPopulation(t *testing.T) {
	dec := LinkCluster([]Normalized{linkerMember()}, nil, DefaultWeights(), 0.8)
	assert.Equal(t, model.DecisionCreate, dec.Kind)
}

func TestLinkCluster_UpdateSingleCandidate(t *testing.T) {
	canon := []canonicalRef{
		linkerEntity(7, "John", "Smith", "6135551234", "K1A0B1"),
		linkerEntity(8, "Alice", "Brown", "", ""),
	}
	dec := LinkCluster([]Normalized{linkerMember()}, canon, DefaultWeights(), 0.8)

	require.Equal(t, model.DecisionUpdate, dec.Kind)
	assert.Equal(t, int64(7), dec.CanonicalID)
	require.Len(t, dec.Candidates, 1)
	assert.Equal(t, 1.0, dec.Candidates[0].Confidence)
}

// Two candidates within 0.1 of each other: entity 7 matches on every field
// (16/16), entity 9 differs only in phone (15/16). The margin is
// 1/16 = 0.0625, inside the ambiguity band, so the linker refuses to
// auto-link.
func TestLinkCluster_AmbiguousWithinMargin(t *testing.T) {
	canon := []canonicalRef{
		linkerEntity(7, "John", "Smith", "6135551234", "K1A0B1"),
		linkerEntity(9, "John", "Smith", "6135559999", "K1A0B1"),
	}
	member := record("John", "Smith", "6135551234", "Ottawa") // postal K1A0B1 via record()

	dec := LinkCluster([]Normalized{member}, canon, DefaultWeights(), 0.8)

	require.Equal(t, model.DecisionAmbiguous, dec.Kind)
	require.Len(t, dec.Candidates, 2)
	// Sorted descending by confidence.
	assert.Equal(t, int64(7), dec.Candidates[0].CanonicalID)
	assert.Equal(t, int64(9), dec.Candidates[1].CanonicalID)
	assert.Greater(t, dec.Candidates[0].Confidence, dec.Candidates[1].Confidence)
	assert.LessOrEqual(t, dec.Candidates[0].Confidence-dec.Candidates[1].Confidence, 0.1)
}

func TestLinkCluster_UpdateWhenMarginLarge(t *testing.T) {
	canon := []canonicalRef{
		linkerEntity(7, "John", "Smith", "6135551234", "K1A0B1"),
		// Full name mismatch drops this one well below the leader.
		linkerEntity(9, "Greta", "Muller", "6135551234", "K1A0B1"),
	}
	dec := LinkCluster([]Normalized{linkerMember()}, canon, DefaultWeights(), 0.5)

	require.Equal(t, model.DecisionUpdate, dec.Kind)
	assert.Equal(t, int64(7), dec.CanonicalID)
}

// The cluster's score against a canonical entity is the best member score,
// not an average: one near-duplicate member is enough to link.
func TestLinkCluster_MaxMemberScore(t *testing.T) {
	canon := []canonicalRef{
		linkerEntity(7, "John", "Smith", "6135551234", "K1A0B1"),
	}
	farMember := record("Jack", "Smythe", "", "")
	exactMember := linkerMember()

	dec := LinkCluster([]Normalized{farMember, exactMember}, canon, DefaultWeights(), 0.9)

	require.Equal(t, model.DecisionUpdate, dec.Kind)
	assert.Equal(t, 1.0, dec.Candidates[0].Confidence)
}
