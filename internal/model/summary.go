package model

import "time"

// RunKind identifies which engine path a recorded run executed.
type RunKind string

const (
	RunKindMatch RunKind = "match"
	RunKindMerge RunKind = "merge"
)

// ClusterMember is the reported detail for one raw record inside an
// ambiguous cluster.
type ClusterMember struct {
	RecordID     int64     `json:"record_id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	DateOfBirth  time.Time `json:"date_of_birth"`
	Email        string    `json:"email"`
	RegisteredAt time.Time `json:"registered_at"`
}

// AmbiguousCluster reports one cluster whose top canonical candidates were
// too close in confidence to auto-link, with enough detail for manual
// follow-up.
type AmbiguousCluster struct {
	Members    []ClusterMember      `json:"members"`
	Candidates []CanonicalCandidate `json:"candidates"`
}

// RunSummary is the structured result of one matching run.
type RunSummary struct {
	RunID   string    `json:"run_id"`
	DryRun  bool      `json:"dry_run"`
	Started time.Time `json:"started"`

	Records   int `json:"records"`
	Skipped   int `json:"skipped"`
	Clusters  int `json:"clusters"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Linked    int `json:"linked"`
	Ambiguous int `json:"ambiguous"`

	AmbiguousClusters []AmbiguousCluster `json:"ambiguous_clusters,omitempty"`
}

// MergeGroup reports one detected group of duplicate canonical entities.
type MergeGroup struct {
	KeeperID     int64   `json:"keeper_id"`
	DuplicateIDs []int64 `json:"duplicate_ids"`
}

// MergeSummary is the structured result of one merge run.
type MergeSummary struct {
	RunID   string    `json:"run_id"`
	DryRun  bool      `json:"dry_run"`
	Started time.Time `json:"started"`

	Entities   int `json:"entities"`
	Groups     int `json:"groups"`
	Duplicates int `json:"duplicates"`
	Merged     int `json:"merged"`
	Unlinked   int `json:"unlinked"`

	MergeGroups []MergeGroup `json:"merge_groups,omitempty"`
}
