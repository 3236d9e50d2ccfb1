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
	matchMinConfidence float64
	matchDryRun        bool
	matchDebug         bool
	matchWeightsPath   string
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Resolve unprocessed registrations to canonical persons",
	Long: `Runs one matching pass: deduplicates every unprocessed raw record into
person clusters, links each cluster to an existing canonical entity or creates
a new one, and persists the result in a single transaction. Records already
linked in a previous run are excluded, so re-running is a no-op.

Ambiguous clusters (top canonical candidates too close in confidence) are
never auto-linked; they are reported in full and stay unprocessed.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if matchDebug {
			if err := config.InitLogger(config.LogConfig{Level: "debug", Format: cfg.Log.Format}); err != nil {
				return err
			}
		}

		mc, err := engineConfig(matchMinConfidence, true, matchWeightsPath)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return eris.Wrap(err, "match: open store")
		}
		defer st.Close() //nolint:errcheck

		engine, err := match.NewEngine(st, mc)
		if err != nil {
			return err
		}

		summary, err := engine.Run(ctx, matchDryRun)
		if err != nil {
			return err
		}

		zap.L().Info("match finished",
			zap.String("run_id", summary.RunID),
			zap.Bool("dry_run", summary.DryRun),
			zap.Int("clusters", summary.Clusters),
			zap.Int("created", summary.Created),
			zap.Int("updated", summary.Updated),
			zap.Int("linked", summary.Linked),
			zap.Int("ambiguous", summary.Ambiguous),
			zap.Int("skipped", summary.Skipped),
		)

		out, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return eris.Wrap(err, "match: marshal summary")
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	matchCmd.Flags().Float64Var(&matchMinConfidence, "min-confidence", 0, "override the link threshold (0 = use config)")
	matchCmd.Flags().BoolVar(&matchDryRun, "dry-run", false, "compute and report without persisting")
	matchCmd.Flags().BoolVar(&matchDebug, "debug", false, "verbose per-decision logging")
	matchCmd.Flags().StringVar(&matchWeightsPath, "weights", "", "YAML file overriding the field weight table")
	rootCmd.AddCommand(matchCmd)
}
