package match

import (
	"sort"

	"github.com/clubops/registry-cli/internal/model"
)

// ambiguityMargin is the minimum lead the best canonical candidate must
// hold over the runner-up before the linker will auto-link. Closer than
// this, the decision is deferred to a human.
const ambiguityMargin = 0.1

// canonicalRef pairs a canonical entity with its precomputed normalization
// so the linker compares every cluster against the population without
// re-normalizing per cluster.
type canonicalRef struct {
	entity model.CanonicalEntity
	norm   Normalized
}

// LinkCluster decides how a cluster relates to the existing canonical
// population. A canonical entity's score is the maximum confidence any
// cluster member achieves against it, which favors recall when the cluster
// already contains a near-duplicate of a known person. Pure function; the
// mutator applies the decision.
func LinkCluster(members []Normalized, canon []canonicalRef, w FieldWeights, threshold float64) model.LinkDecision {
	var candidates []model.CanonicalCandidate
	for _, c := range canon {
		best := 0.0
		for _, m := range members {
			if s := ScorePair(m, c.norm, w); s > best {
				best = s
			}
		}
		if best >= threshold {
			candidates = append(candidates, model.CanonicalCandidate{
				CanonicalID: c.entity.ID,
				FirstName:   c.entity.FirstName,
				LastName:    c.entity.LastName,
				Confidence:  best,
			})
		}
	}

	if len(candidates) == 0 {
		return model.LinkDecision{Kind: model.DecisionCreate}
	}

	// Ties break on id so the decision is deterministic.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].CanonicalID < candidates[j].CanonicalID
	})

	if len(candidates) == 1 || candidates[0].Confidence-candidates[1].Confidence > ambiguityMargin {
		return model.LinkDecision{
			Kind:        model.DecisionUpdate,
			CanonicalID: candidates[0].CanonicalID,
			Candidates:  candidates,
		}
	}

	return model.LinkDecision{Kind: model.DecisionAmbiguous, Candidates: candidates}
}
