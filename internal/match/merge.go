package match

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/clubops/registry-cli/internal/model"
	"github.com/clubops/registry-cli/internal/store"
)

// MergePlan is the analysis half of the merge path: the duplicate groups
// that would be collapsed, before anything is written.
type MergePlan struct {
	Entities int
	Groups   []model.MergeGroup
}

// AnalyzeMerge runs the dedup pipeline over the canonical population itself
// and returns the duplicate groups. Keeper selection is deterministic:
// earliest cohort, ties broken by lowest id.
func (e *Engine) AnalyzeMerge(ctx context.Context) (*MergePlan, error) {
	entities, err := e.store.CanonicalEntities(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "merge: fetch canonical entities")
	}

	norms := make([]Normalized, len(entities))
	for i, ent := range entities {
		norms[i] = NormalizeCanonical(ent)
	}

	pairs := CandidatePairs(norms, e.cfg.Window)
	scored := ScorePairs(norms, pairs, e.cfg.Weights)
	clusters := BuildClusters(len(entities), scored, e.cfg.DedupThreshold)

	plan := &MergePlan{Entities: len(entities)}
	for _, cluster := range clusters {
		if len(cluster) < 2 {
			continue
		}

		keeper := entities[cluster[0]]
		for _, idx := range cluster[1:] {
			ent := entities[idx]
			if ent.Cohort.Before(keeper.Cohort) ||
				(!keeper.Cohort.Before(ent.Cohort) && ent.ID < keeper.ID) {
				keeper = ent
			}
		}

		var dups []int64
		for _, idx := range cluster {
			if entities[idx].ID != keeper.ID {
				dups = append(dups, entities[idx].ID)
			}
		}
		sort.Slice(dups, func(i, j int) bool { return dups[i] < dups[j] })
		plan.Groups = append(plan.Groups, model.MergeGroup{KeeperID: keeper.ID, DuplicateIDs: dups})
	}
	return plan, nil
}

// Merge detects and collapses duplicate canonical entities. For every
// duplicate, its linked raw records are unlinked (so they re-enter future
// matching runs) and the entity is deleted, all in one transaction. With
// dryRun set, the same analysis is reported and nothing is written.
func (e *Engine) Merge(ctx context.Context, dryRun bool) (*model.MergeSummary, error) {
	started := time.Now().UTC()

	plan, err := e.AnalyzeMerge(ctx)
	if err != nil {
		return nil, err
	}

	summary := &model.MergeSummary{
		RunID:       uuid.NewString(),
		DryRun:      dryRun,
		Started:     started,
		Entities:    plan.Entities,
		Groups:      len(plan.Groups),
		MergeGroups: plan.Groups,
	}
	for _, g := range plan.Groups {
		summary.Duplicates += len(g.DuplicateIDs)
	}

	e.log.Info("merge analysis complete",
		zap.String("run_id", summary.RunID),
		zap.Int("entities", summary.Entities),
		zap.Int("groups", summary.Groups),
		zap.Int("duplicates", summary.Duplicates),
	)

	if dryRun {
		return summary, nil
	}

	err = e.store.RunTx(ctx, func(tx store.Tx) error {
		for _, g := range plan.Groups {
			for _, dup := range g.DuplicateIDs {
				n, err := tx.UnlinkByCanonical(ctx, dup)
				if err != nil {
					return err
				}
				summary.Unlinked += int(n)

				if err := tx.DeleteCanonical(ctx, dup); err != nil {
					return err
				}
				summary.Merged++

				e.log.Debug("duplicate merged",
					zap.Int64("keeper_id", g.KeeperID),
					zap.Int64("duplicate_id", dup),
					zap.Int64("unlinked", n),
				)
			}
		}
		return insertRunRecord(ctx, tx, summary.RunID, model.RunKindMerge, false, started, summary)
	})
	if err != nil {
		return nil, eris.Wrap(err, "merge: persist")
	}

	e.log.Info("merge complete",
		zap.String("run_id", summary.RunID),
		zap.Int("merged", summary.Merged),
		zap.Int("unlinked", summary.Unlinked),
	)
	return summary, nil
}
