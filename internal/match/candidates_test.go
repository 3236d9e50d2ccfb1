package match

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCandidatePairs_BlockingOnDOB(t *testing.T) {
	recs := []Normalized{
		{Last: "smith", DOB: "1990-05-01"},
		{Last: "zulu", DOB: "1990-05-01"},  // same block, far apart in sort order
		{Last: "jones", DOB: "1980-01-01"}, // different block
	}
	pairs := CandidatePairs(recs, 2)

	assert.Contains(t, pairs, Pair{A: 0, B: 1})
}

func TestCandidatePairs_SortedNeighborhoodCatchesDOBTypo(t *testing.T) {
	recs := []Normalized{
		{Last: "smith", DOB: "1990-05-01"},
		{Last: "smith", DOB: "1990-05-11"}, // typo'd dob, adjacent by last name
	}
	pairs := CandidatePairs(recs, 3)

	assert.Contains(t, pairs, Pair{A: 0, B: 1})
}

func TestCandidatePairs_NoSelfOrDuplicatePairs(t *testing.T) {
	recs := []Normalized{
		{Last: "smith", DOB: "1990-05-01"},
		{Last: "smith", DOB: "1990-05-01"}, // both in the same block and adjacent
		{Last: "smithe", DOB: "1990-05-01"},
	}
	pairs := CandidatePairs(recs, 4)

	seen := make(map[Pair]bool)
	for _, p := range pairs {
		assert.Less(t, p.A, p.B, "self pair or unordered pair %+v", p)
		assert.False(t, seen[p], "duplicate pair %+v", p)
		seen[p] = true
	}
}

func TestCandidatePairs_EmptyDOBNotBlocked(t *testing.T) {
	recs := []Normalized{
		{Last: "aaa", DOB: ""},
		{Last: "zzz", DOB: ""},
		{Last: "mmm", DOB: ""},
	}
	// Window of 2 pairs only adjacent neighbors: aaa-mmm and mmm-zzz. The
	// empty DOB must not act as a shared block key pairing aaa with zzz.
	pairs := CandidatePairs(recs, 2)

	assert.NotContains(t, pairs, Pair{A: 0, B: 1})
	assert.Len(t, pairs, 2)
}

func TestCandidatePairs_BoundedBelowQuadratic(t *testing.T) {
	var recs []Normalized
	for i := 0; i < 100; i++ {
		recs = append(recs, Normalized{
			Last: fmt.Sprintf("name%03d", i),
			DOB:  fmt.Sprintf("19%02d-01-01", i%50),
		})
	}
	pairs := CandidatePairs(recs, 3)

	// 100 records full comparison would be 4950 pairs; blocking (50 blocks
	// of 2) plus a window of 3 stays far below that.
	assert.Less(t, len(pairs), 400)
}

func TestCandidatePairs_Deterministic(t *testing.T) {
	recs := []Normalized{
		{Last: "smith", DOB: "1990-05-01"},
		{Last: "smith", DOB: "1990-05-01"},
		{Last: "jones", DOB: "1990-05-01"},
		{Last: "brown", DOB: "1985-02-02"},
	}
	first := CandidatePairs(recs, 3)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, CandidatePairs(recs, 3))
	}
}

func TestCandidatePairs_Empty(t *testing.T) {
	assert.Empty(t, CandidatePairs(nil, 3))
	assert.Empty(t, CandidatePairs([]Normalized{{Last: "only"}}, 3))
}
