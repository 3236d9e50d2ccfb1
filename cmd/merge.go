package main

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clubops/registry-cli/internal/config"
	"github.com/clubops/registry-cli/internal/match"
)

var (
	mergeMinConfidence float64
	mergeDryRun        bool
	mergeDebug         bool
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Find and collapse duplicate canonical persons",
	Long: `Runs the dedup pipeline over the canonical population itself. For every
group of duplicates the keeper is the entity with the earliest cohort (ties
broken by lowest id); the others have their linked registrations unlinked, so
they re-enter future matching runs, and are then deleted, all in one
transaction. Use --dry-run to preview the groups without writing.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if mergeDebug {
			if err := config.InitLogger(config.LogConfig{Level: "debug", Format: cfg.Log.Format}); err != nil {
				return err
			}
		}

		mc, err := engineConfig(mergeMinConfidence, false, "")
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return eris.Wrap(err, "merge: open store")
		}
		defer st.Close() //nolint:errcheck

		engine, err := match.NewEngine(st, mc)
		if err != nil {
			return err
		}

		summary, err := engine.Merge(ctx, mergeDryRun)
		if err != nil {
			return err
		}

		zap.L().Info("merge finished",
			zap.String("run_id", summary.RunID),
			zap.Bool("dry_run", summary.DryRun),
			zap.Int("groups", summary.Groups),
			zap.Int("duplicates", summary.Duplicates),
			zap.Int("merged", summary.Merged),
			zap.Int("unlinked", summary.Unlinked),
		)

		out, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return eris.Wrap(err, "merge: marshal summary")
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	mergeCmd.Flags().Float64Var(&mergeMinConfidence, "min-confidence", 0, "override the dedup threshold (0 = use config)")
	mergeCmd.Flags().BoolVar(&mergeDryRun, "dry-run", false, "analyze and report without persisting")
	mergeCmd.Flags().BoolVar(&mergeDebug, "debug", false, "verbose per-merge logging")
	rootCmd.AddCommand(mergeCmd)
}
