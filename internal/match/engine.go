package match

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/clubops/registry-cli/internal/model"
	"github.com/clubops/registry-cli/internal/store"
)

// Config carries the tunables of one engine instance. Weights and thresholds
// are explicit values, never hidden defaults, so the dedup and linking paths
// can run with different tables in the same process.
type Config struct {
	Weights FieldWeights

	// DedupThreshold gates intra-batch clustering and merge detection.
	DedupThreshold float64

	// LinkThreshold gates cluster-to-canonical linking.
	LinkThreshold float64

	// Window is the sorted-neighborhood window size.
	Window int
}

// DefaultConfig returns the standard engine configuration.
func DefaultConfig() Config {
	return Config{
		Weights:        DefaultWeights(),
		DedupThreshold: 0.7,
		LinkThreshold:  0.8,
		Window:         4,
	}
}

// Validate fails fast on out-of-range thresholds before any record is read.
func (c Config) Validate() error {
	if c.DedupThreshold < 0 || c.DedupThreshold > 1 {
		return eris.Errorf("match: dedup threshold %.3f outside [0,1]", c.DedupThreshold)
	}
	if c.LinkThreshold < 0 || c.LinkThreshold > 1 {
		return eris.Errorf("match: link threshold %.3f outside [0,1]", c.LinkThreshold)
	}
	if c.Window < 2 {
		return eris.Errorf("match: window %d must be at least 2", c.Window)
	}
	return c.Weights.Validate()
}

// Engine runs the identity-resolution pipeline against a store. All
// comparison work for a run happens in memory before any write; persistence
// is one all-or-nothing transaction. Single-threaded: the caller serializes
// concurrent runs.
type Engine struct {
	store store.Store
	cfg   Config
	log   *zap.Logger
}

// NewEngine validates cfg and returns a ready engine.
func NewEngine(st store.Store, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		store: st,
		cfg:   cfg,
		log:   zap.L().With(zap.String("component", "match_engine")),
	}, nil
}

// createOp and updateOp are the planned mutations of one run, applied
// together inside one transaction after all decisions are made.
type createOp struct {
	entity    model.CanonicalEntity
	memberIDs []int64
}

type updateOp struct {
	entity    model.CanonicalEntity
	memberIDs []int64
}

// Run executes one matching run: cluster the unprocessed records, link each
// cluster to the canonical population, and persist the outcome. With dryRun
// set, the identical computation happens but nothing is written.
func (e *Engine) Run(ctx context.Context, dryRun bool) (*model.RunSummary, error) {
	started := time.Now().UTC()
	summary := &model.RunSummary{
		RunID:   uuid.NewString(),
		DryRun:  dryRun,
		Started: started,
	}

	records, err := e.store.UnprocessedRawRecords(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "match: fetch unprocessed records")
	}
	summary.Records = len(records)

	// Records missing a name or a validatable birth date cannot be matched;
	// they are counted and sit out this run.
	usable := make([]model.RawRecord, 0, len(records))
	for _, r := range records {
		if !r.HasIdentity() {
			summary.Skipped++
			e.log.Debug("record skipped",
				zap.Int64("record_id", r.ID),
				zap.String("reason", "missing name or date of birth"),
			)
			continue
		}
		usable = append(usable, r)
	}

	norms := make([]Normalized, len(usable))
	for i, r := range usable {
		norms[i] = NormalizeRaw(r)
	}

	pairs := CandidatePairs(norms, e.cfg.Window)
	scored := ScorePairs(norms, pairs, e.cfg.Weights)
	clusters := BuildClusters(len(usable), scored, e.cfg.DedupThreshold)
	summary.Clusters = len(clusters)

	e.log.Info("clustering complete",
		zap.String("run_id", summary.RunID),
		zap.Int("records", summary.Records),
		zap.Int("skipped", summary.Skipped),
		zap.Int("candidate_pairs", len(pairs)),
		zap.Int("clusters", summary.Clusters),
	)

	entities, err := e.store.CanonicalEntities(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "match: fetch canonical entities")
	}
	canon := make([]canonicalRef, len(entities))
	working := make(map[int64]model.CanonicalEntity, len(entities))
	for i, ent := range entities {
		canon[i] = canonicalRef{entity: ent, norm: NormalizeCanonical(ent)}
		working[ent.ID] = ent
	}

	var creates []createOp
	var updates []updateOp

	for _, cluster := range clusters {
		members := make([]model.RawRecord, len(cluster))
		memberNorms := make([]Normalized, len(cluster))
		memberIDs := make([]int64, len(cluster))
		for i, idx := range cluster {
			members[i] = usable[idx]
			memberNorms[i] = norms[idx]
			memberIDs[i] = usable[idx].ID
		}

		dec := LinkCluster(memberNorms, canon, e.cfg.Weights, e.cfg.LinkThreshold)
		e.logDecision(memberIDs, dec)

		switch dec.Kind {
		case model.DecisionCreate:
			creates = append(creates, createOp{
				entity:    entityFromMembers(members),
				memberIDs: memberIDs,
			})
			summary.Created++
			summary.Linked += len(members)

		case model.DecisionUpdate:
			// Apply against the working copy so a later cluster updating the
			// same entity sees this cluster's recency state.
			updated := applyCluster(working[dec.CanonicalID], members)
			working[dec.CanonicalID] = updated
			updates = append(updates, updateOp{entity: updated, memberIDs: memberIDs})
			summary.Updated++
			summary.Linked += len(members)

		case model.DecisionAmbiguous:
			summary.Ambiguous++
			summary.AmbiguousClusters = append(summary.AmbiguousClusters, model.AmbiguousCluster{
				Members:    clusterMembers(members),
				Candidates: dec.Candidates,
			})
		}
	}

	if dryRun {
		e.log.Info("dry run, no writes",
			zap.String("run_id", summary.RunID),
			zap.Int("created", summary.Created),
			zap.Int("updated", summary.Updated),
			zap.Int("ambiguous", summary.Ambiguous),
		)
		return summary, nil
	}

	err = e.store.RunTx(ctx, func(tx store.Tx) error {
		for _, op := range creates {
			id, err := tx.CreateCanonical(ctx, op.entity)
			if err != nil {
				return err
			}
			if err := tx.LinkRawRecords(ctx, op.memberIDs, id); err != nil {
				return err
			}
		}
		for _, op := range updates {
			if err := tx.UpdateCanonical(ctx, op.entity); err != nil {
				return err
			}
			if err := tx.LinkRawRecords(ctx, op.memberIDs, op.entity.ID); err != nil {
				return err
			}
		}
		return insertRunRecord(ctx, tx, summary.RunID, model.RunKindMatch, false, started, summary)
	})
	if err != nil {
		return nil, eris.Wrap(err, "match: persist run")
	}

	e.log.Info("run complete",
		zap.String("run_id", summary.RunID),
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("linked", summary.Linked),
		zap.Int("ambiguous", summary.Ambiguous),
	)
	return summary, nil
}

func (e *Engine) logDecision(memberIDs []int64, dec model.LinkDecision) {
	fields := []zap.Field{
		zap.Int64s("record_ids", memberIDs),
		zap.String("decision", string(dec.Kind)),
	}
	if dec.Kind == model.DecisionUpdate {
		fields = append(fields, zap.Int64("canonical_id", dec.CanonicalID))
	}
	if len(dec.Candidates) > 0 {
		fields = append(fields, zap.Float64("top_confidence", dec.Candidates[0].Confidence))
	}
	e.log.Debug("cluster decision", fields...)
}

// entityFromMembers builds a new canonical entity from a cluster: identity
// fields from the most recently registered member, cohort from the earliest
// member's period.
func entityFromMembers(members []model.RawRecord) model.CanonicalEntity {
	newest := newestMember(members)
	earliest := earliestMember(members)
	return model.CanonicalEntity{
		FirstName:   newest.FirstName,
		LastName:    newest.LastName,
		DateOfBirth: newest.DateOfBirth,
		Sex:         newest.Sex,
		City:        newest.City,
		Country:     newest.Country,
		PostalCode:  newest.PostalCode,
		Email:       newest.Email,
		Phone:       newest.Phone,

		Cohort:                 model.PeriodOf(earliest.RegisteredAt),
		LastRegistrationPeriod: model.PeriodOf(newest.RegisteredAt),
		LastRegisteredAt:       newest.RegisteredAt,
	}
}

// applyCluster folds a cluster into an existing entity. Identity fields are
// only overwritten when the cluster's newest member is strictly newer than
// the newest record already linked, so reprocessing out of order never
// regresses fresher data. The cohort moves earlier or stays put.
func applyCluster(existing model.CanonicalEntity, members []model.RawRecord) model.CanonicalEntity {
	newest := newestMember(members)
	earliest := earliestMember(members)

	if newest.RegisteredAt.After(existing.LastRegisteredAt) {
		existing.FirstName = newest.FirstName
		existing.LastName = newest.LastName
		existing.DateOfBirth = newest.DateOfBirth
		existing.Sex = newest.Sex
		existing.City = newest.City
		existing.Country = newest.Country
		existing.PostalCode = newest.PostalCode
		existing.Email = newest.Email
		existing.Phone = newest.Phone
		existing.LastRegisteredAt = newest.RegisteredAt
		existing.LastRegistrationPeriod = model.PeriodOf(newest.RegisteredAt)
	}

	if p := model.PeriodOf(earliest.RegisteredAt); existing.Cohort.IsZero() || p.Before(existing.Cohort) {
		existing.Cohort = p
	}
	return existing
}

func newestMember(members []model.RawRecord) model.RawRecord {
	best := members[0]
	for _, m := range members[1:] {
		if m.RegisteredAt.After(best.RegisteredAt) ||
			(m.RegisteredAt.Equal(best.RegisteredAt) && m.ID < best.ID) {
			best = m
		}
	}
	return best
}

func earliestMember(members []model.RawRecord) model.RawRecord {
	best := members[0]
	for _, m := range members[1:] {
		if m.RegisteredAt.Before(best.RegisteredAt) ||
			(m.RegisteredAt.Equal(best.RegisteredAt) && m.ID < best.ID) {
			best = m
		}
	}
	return best
}

func clusterMembers(members []model.RawRecord) []model.ClusterMember {
	out := make([]model.ClusterMember, len(members))
	for i, m := range members {
		out[i] = model.ClusterMember{
			RecordID:     m.ID,
			FirstName:    m.FirstName,
			LastName:     m.LastName,
			DateOfBirth:  m.DateOfBirth,
			Email:        m.Email,
			RegisteredAt: m.RegisteredAt,
		}
	}
	return out
}

func insertRunRecord(ctx context.Context, tx store.Tx, runID string, kind model.RunKind, dryRun bool, started time.Time, summary any) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "match: marshal run summary")
	}
	return tx.InsertRun(ctx, store.RunRecord{
		ID:         runID,
		Kind:       kind,
		DryRun:     dryRun,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Summary:    payload,
	})
}
