// Package store persists raw registration records, canonical entities, and
// run history behind a single interface with postgres and sqlite backends.
package store

import (
	"context"
	"time"

	"github.com/clubops/registry-cli/internal/model"
)

// Counts summarizes the store population for the status command.
type Counts struct {
	Unprocessed int64 `json:"unprocessed"`
	Linked      int64 `json:"linked"`
	Canonical   int64 `json:"canonical"`
}

// RunRecord is one recorded engine invocation. Summary holds the marshaled
// RunSummary or MergeSummary.
type RunRecord struct {
	ID         string        `json:"id"`
	Kind       model.RunKind `json:"kind"`
	DryRun     bool          `json:"dry_run"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Summary    []byte        `json:"summary,omitempty"`
}

// Tx exposes the mutations the engine may perform. All mutations for one
// run happen inside a single transaction: clusters and entity updates are
// interdependent, so a partial run must never be committed.
type Tx interface {
	CreateCanonical(ctx context.Context, e model.CanonicalEntity) (int64, error)
	UpdateCanonical(ctx context.Context, e model.CanonicalEntity) error
	LinkRawRecords(ctx context.Context, recordIDs []int64, canonicalID int64) error

	// UnlinkByCanonical clears the back-reference of every raw record linked
	// to the given entity, returning the number unlinked. Used by the merge
	// path so dependents of a deleted duplicate re-enter future runs.
	UnlinkByCanonical(ctx context.Context, canonicalID int64) (int64, error)
	DeleteCanonical(ctx context.Context, id int64) error

	InsertRun(ctx context.Context, r RunRecord) error
}

// Store is the persistence collaborator of the matching engine.
type Store interface {
	// UnprocessedRawRecords returns every raw record with no linked
	// canonical entity. This filter is the engine's idempotence mechanism.
	UnprocessedRawRecords(ctx context.Context) ([]model.RawRecord, error)
	CanonicalEntities(ctx context.Context) ([]model.CanonicalEntity, error)
	Counts(ctx context.Context) (Counts, error)
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	// RunTx runs fn inside one transaction, committing on nil and rolling
	// back everything on error.
	RunTx(ctx context.Context, fn func(tx Tx) error) error

	Migrate(ctx context.Context) error
	Close() error
}
