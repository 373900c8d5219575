package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"

	"github.com/dyluth/tally/internal/config"
	"github.com/dyluth/tally/internal/engine"
	"github.com/dyluth/tally/internal/hosting"
	"github.com/dyluth/tally/internal/marketplace"
	"github.com/dyluth/tally/internal/printer"
	"github.com/dyluth/tally/internal/render"
	"github.com/dyluth/tally/internal/resolve"
	"github.com/dyluth/tally/pkg/ledger"
)

// newMarketplace is swapped out by tests.
var newMarketplace = func(ctx context.Context, cfg *config.TallyConfig) (marketplace.Marketplace, error) {
	return marketplace.NewMTurk(ctx, marketplace.MTurkConfig{
		Sandbox:  cfg.IsSandbox(),
		Endpoint: cfg.Marketplace.Endpoint,
	})
}

// loadConfig reads --config, pointing at 'tally init' when the file is missing.
func loadConfig() (*config.TallyConfig, error) {
	cfg, err := config.Load(configPath)
	if err == nil {
		return cfg, nil
	}

	if errors.Is(err, fs.ErrNotExist) {
		return nil, printer.Error(
			"configuration not found",
			fmt.Sprintf("No configuration file at %s.", configPath),
			[]string{
				"Create one in the current directory:\n  tally init",
				"Point at an existing file:\n  tally --config path/to/tally.yml <command>",
			},
		)
	}
	return nil, printer.Error("invalid configuration", err.Error(), nil)
}

// ledgerLabel names the ledger in CLI output.
func ledgerLabel(cfg *config.TallyConfig) string {
	if cfg.Ledger.Backend == "redis" {
		return cfg.Ledger.Namespace
	}
	return cfg.Ledger.Backend
}

// openStore creates the configured ledger store. The returned closer is never nil.
func openStore(ctx context.Context, cfg *config.TallyConfig) (ledger.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Ledger.Backend {
	case "redis":
		store, err := ledger.NewRedisStoreFromURL(cfg.Ledger.RedisURL, cfg.Ledger.Namespace)
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil
	case "sqlite":
		store, err := ledger.NewSQLiteStore(ctx, cfg.Ledger.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	case "postgres":
		store, err := ledger.NewPostgresStore(ctx, cfg.Ledger.PostgresDSN)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	default:
		return nil, noop, fmt.Errorf("unsupported ledger backend: %s", cfg.Ledger.Backend)
	}
}

// buildEngine wires the marketplace, renderer and host around store, and
// uploads any extra static files the task pages reference.
func buildEngine(ctx context.Context, cfg *config.TallyConfig, store ledger.Store) (*engine.Engine, error) {
	market, err := newMarketplace(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create marketplace client: %w", err)
	}

	renderer, err := render.NewTemplateRenderer(cfg.IsSandbox(), cfg.Templates)
	if err != nil {
		return nil, fmt.Errorf("failed to create renderer: %w", err)
	}

	host, err := hosting.New(ctx, hosting.Config{
		Backend:  hosting.Backend(cfg.Hosting.Backend),
		Bucket:   cfg.Hosting.Bucket,
		Region:   cfg.Hosting.Region,
		Endpoint: cfg.Hosting.Endpoint,
		Prefix:   cfg.Hosting.Prefix,
		Dir:      cfg.Hosting.Dir,
		BaseURL:  cfg.Hosting.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create host: %w", err)
	}

	if len(cfg.Hosting.ExtraFiles) > 0 {
		urls, err := hosting.UploadFiles(ctx, host, cfg.Hosting.ExtraFiles)
		if err != nil {
			return nil, err
		}
		for path, url := range urls {
			log.Printf("[Tally] Uploaded %s to %s", path, url)
		}
	}

	return engine.New(store, market, renderer, host,
		engine.WithInstanceName(cfg.Instance),
		engine.WithRetainCompleted(*cfg.Ledger.RetainCompleted),
		engine.WithRateLimit(cfg.Polling.RateLimit, cfg.Polling.RateBurst),
	)
}

// waitOptions maps the polling section onto engine options.
func waitOptions(cfg *config.TallyConfig) engine.WaitOptions {
	return engine.WaitOptions{Interval: cfg.Polling.Interval, Timeout: cfg.Polling.Timeout}
}

// resolverOptions maps the resolver section onto resolve options.
func resolverOptions(cfg *config.TallyConfig) resolve.Options {
	opts := resolve.DefaultOptions()
	rc := cfg.Resolver

	opts.Predicate = resolve.Any(
		resolve.Jaccard(*rc.JaccardThreshold),
		resolve.Levenshtein(*rc.LevenshteinThreshold),
	)
	opts.ComparisonsPerTask = rc.ComparisonsPerTask
	opts.Wait = waitOptions(cfg)
	opts.Concurrency = cfg.Polling.Concurrency
	opts.ResetGeneration = rc.ResetGeneration

	if rc.Title != "" {
		opts.Task.Title = rc.Title
	}
	if len(rc.Keywords) > 0 {
		opts.Task.Keywords = rc.Keywords
	}
	if rc.Duration > 0 {
		opts.Task.Duration = rc.Duration
	}
	if rc.Reward != "" {
		opts.Task.Reward = rc.Reward
	}
	if rc.MaxAssignments > 0 {
		opts.Task.MaxAssignments = rc.MaxAssignments
	}
	opts.Task.USOnly = cfg.Marketplace.USOnly

	return opts
}
