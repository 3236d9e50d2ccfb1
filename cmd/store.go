package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/clubops/registry-cli/internal/match"
	"github.com/clubops/registry-cli/internal/store"
)

// openStore builds the configured store backend.
func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// engineConfig assembles the engine configuration from the loaded config,
// an optional --min-confidence override for the named threshold, and an
// optional YAML weight-table override.
func engineConfig(minConfidence float64, overrideLink bool, weightsPath string) (match.Config, error) {
	mc := match.Config{
		Weights:        match.FieldWeights(cfg.Match.Weights),
		DedupThreshold: cfg.Match.DedupThreshold,
		LinkThreshold:  cfg.Match.LinkThreshold,
		Window:         cfg.Match.Window,
	}

	if minConfidence > 0 {
		if overrideLink {
			mc.LinkThreshold = minConfidence
		} else {
			mc.DedupThreshold = minConfidence
		}
	}

	if weightsPath != "" {
		data, err := os.ReadFile(weightsPath)
		if err != nil {
			return mc, eris.Wrapf(err, "read weights file %s", weightsPath)
		}
		var w map[string]float64
		if err := yaml.Unmarshal(data, &w); err != nil {
			return mc, eris.Wrapf(err, "parse weights file %s", weightsPath)
		}
		mc.Weights = match.FieldWeights(w)
	}

	return mc, nil
}
