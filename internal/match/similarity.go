package match

import (
	"github.com/agnivade/levenshtein"
	"github.com/xrash/smetrics"
)

// Jaro-Winkler parameters: standard prefix boost and four-character prefix.
const (
	jwBoost     = 0.7
	jwPrefixLen = 4
)

// nameSimilarity scores two normalized name fields with Jaro-Winkler, which
// tolerates transpositions and minor misspellings better than a plain edit
// ratio on short strings.
func nameSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	return smetrics.JaroWinkler(a, b, jwBoost, jwPrefixLen)
}

// editSimilarity scores two normalized identifier fields as an edit-distance
// ratio: 1 - distance/max(len). Identical strings score 1, disjoint strings
// approach 0.
func editSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(longest)
}
