package match

import "sort"

// Pair is an unordered candidate pair of record indices, stored with A < B.
type Pair struct {
	A, B int
}

// orderedPair normalizes index order so the dedup set treats (i,j) and (j,i)
// as the same pair.
func orderedPair(i, j int) Pair {
	if i < j {
		return Pair{A: i, B: j}
	}
	return Pair{A: j, B: i}
}

// CandidatePairs bounds the comparison search space below O(n²) by unioning
// two index strategies over the normalized records:
//
//   - blocking: only records sharing a non-empty date of birth are paired;
//   - sorted neighborhood: records are sorted by last name and each is
//     paired with its neighbors within the window, catching near-matches a
//     typo'd birth date would hide from blocking.
//
// Pairs are deduplicated, self-pairs omitted, and the result is returned in
// a deterministic order. Two true matches with different block keys that
// also land more than the window apart in sort order are never compared;
// that recall bound is the price of the bounded search space.
func CandidatePairs(recs []Normalized, window int) []Pair {
	seen := make(map[Pair]struct{})

	// Blocking on date of birth. Records with no DOB fall through to the
	// sorted-neighborhood pass only.
	blocks := make(map[string][]int)
	for i, r := range recs {
		if r.DOB == "" {
			continue
		}
		blocks[r.DOB] = append(blocks[r.DOB], i)
	}
	for _, members := range blocks {
		for x := 0; x < len(members); x++ {
			for y := x + 1; y < len(members); y++ {
				seen[orderedPair(members[x], members[y])] = struct{}{}
			}
		}
	}

	// Sorted neighborhood on last name. Ties break on index so the order,
	// and with it the candidate set, is stable across runs.
	order := make([]int, len(recs))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(x, y int) bool {
		a, b := recs[order[x]].Last, recs[order[y]].Last
		if a != b {
			return a < b
		}
		return order[x] < order[y]
	})
	for pos := 0; pos < len(order); pos++ {
		for off := 1; off < window && pos+off < len(order); off++ {
			seen[orderedPair(order[pos], order[pos+off])] = struct{}{}
		}
	}

	pairs := make([]Pair, 0, len(seen))
	for p := range seen {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(x, y int) bool {
		if pairs[x].A != pairs[y].A {
			return pairs[x].A < pairs[y].A
		}
		return pairs[x].B < pairs[y].B
	})
	return pairs
}
