package match

// ScoredPair is a candidate pair with its aggregated confidence.
type ScoredPair struct {
	Pair
	Confidence float64
}

// ScorePairs runs the comparator and scorer over every candidate pair.
func ScorePairs(recs []Normalized, pairs []Pair, w FieldWeights) []ScoredPair {
	scored := make([]ScoredPair, 0, len(pairs))
	for _, p := range pairs {
		scored = append(scored, ScoredPair{
			Pair:       p,
			Confidence: ScorePair(recs[p.A], recs[p.B], w),
		})
	}
	return scored
}

// BuildClusters partitions record indices 0..n-1 into clusters by unioning
// every pair at or above the threshold. Every index appears in exactly one
// cluster; unmatched records come back as singletons.
func BuildClusters(n int, scored []ScoredPair, threshold float64) [][]int {
	uf := NewUnionFind()
	for i := 0; i < n; i++ {
		uf.Add(i)
	}
	for _, sp := range scored {
		if sp.Confidence >= threshold {
			uf.Union(sp.A, sp.B)
		}
	}
	return uf.Clusters()
}
