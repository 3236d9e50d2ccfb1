package model

// DecisionKind tags the outcome of matching one cluster against the
// canonical population.
type DecisionKind string

const (
	DecisionCreate    DecisionKind = "create"
	DecisionUpdate    DecisionKind = "update"
	DecisionAmbiguous DecisionKind = "ambiguous"
	DecisionSkipped   DecisionKind = "skipped"
)

// CanonicalCandidate is one canonical entity a cluster scored at or above
// the link threshold, with the confidence achieved.
type CanonicalCandidate struct {
	CanonicalID int64   `json:"canonical_id"`
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	Confidence  float64 `json:"confidence"`
}

// LinkDecision is the outcome of matching one cluster. Callers branch on
// Kind: ambiguity is an expected result, not an error.
type LinkDecision struct {
	Kind DecisionKind `json:"kind"`

	// CanonicalID is set for DecisionUpdate.
	CanonicalID int64 `json:"canonical_id,omitempty"`

	// Candidates holds all candidates at or above the threshold, sorted by
	// descending confidence. Populated for DecisionUpdate and DecisionAmbiguous.
	Candidates []CanonicalCandidate `json:"candidates,omitempty"`

	// Reason is set for DecisionSkipped.
	Reason string `json:"reason,omitempty"`
}
