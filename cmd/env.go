package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/immoweave/harvester/internal/change"
	"github.com/immoweave/harvester/internal/config"
	"github.com/immoweave/harvester/internal/dedup"
	"github.com/immoweave/harvester/internal/detect"
	"github.com/immoweave/harvester/internal/discovery"
	"github.com/immoweave/harvester/internal/events"
	"github.com/immoweave/harvester/internal/extract"
	"github.com/immoweave/harvester/internal/fetch"
	"github.com/immoweave/harvester/internal/governor"
	"github.com/immoweave/harvester/internal/model"
	"github.com/immoweave/harvester/internal/orchestrator"
	"github.com/immoweave/harvester/internal/store"
)

// harvesterEnv holds the initialized store, pipeline stages and the
// orchestrator shared by the scrape/cycle/serve commands.
type harvesterEnv struct {
	Store        store.Store
	Governor     *governor.Governor
	Orchestrator *orchestrator.Orchestrator
	Discovery    *discovery.Engine
	Metrics      *orchestrator.Metrics

	headless *fetch.HeadlessFetcher
}

// Close releases resources held by the environment.
func (e *harvesterEnv) Close() {
	if e.headless != nil {
		e.headless.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "connect postgres")
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, eris.Wrap(err, "ping postgres")
		}
		return store.NewPostgres(pool), nil
	case "", "sqlite":
		return store.NewSQLite(cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// initHarvester builds the full pipeline from config. Callers should
// defer env.Close().
func initHarvester(ctx context.Context) (*harvesterEnv, error) {
	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	metrics := orchestrator.NewMetrics()

	var robots governor.RobotsPolicy
	if cfg.Governor.RespectRobots {
		robots = governor.NewRobotsChecker(cfg.Fetch.UserAgent, cfg.Governor.RobotsCacheTTL)
	}
	gov := governor.New(st, robots, governor.Options{
		BaseDelay:          cfg.Governor.BaseDelay,
		MinDelay:           cfg.Governor.MinDelay,
		MaxDelay:           cfg.Governor.MaxDelay,
		MaxRequestsPerHour: cfg.Governor.MaxRequestsPerHour,
		BlockThreshold:     cfg.Governor.BlockThreshold,
		DecayFactor:        cfg.Governor.DecayFactor,
		RespectRobots:      cfg.Governor.RespectRobots,
		OnTransition: func(t model.PolicyTransition) {
			metrics.ObserveTransition(string(t.To))
		},
	})

	var fetcher fetch.Fetcher
	httpFetcher := fetch.NewHTTPFetcher(fetch.HTTPOptions{
		UserAgent:   cfg.Fetch.UserAgent,
		Timeout:     cfg.Fetch.Timeout,
		MaxBodySize: cfg.Fetch.MaxBodyBytes,
	})
	fetcher = httpFetcher

	env := &harvesterEnv{Store: st, Governor: gov}
	if cfg.Fetch.HeadlessEnabled {
		env.headless = fetch.NewHeadlessFetcher(fetch.HeadlessOptions{
			UserAgent:  cfg.Fetch.UserAgent,
			RenderWait: cfg.Fetch.HeadlessTimeout,
		})
		fetcher = fetch.NewChainFetcher(httpFetcher, env.headless)
	}

	sink := events.Sink(events.NewLogSink())
	if cfg.Events.WebhookURL != "" {
		sink = events.NewMultiSink(events.NewLogSink(), events.NewWebhookSink(cfg.Events.WebhookURL))
	}

	env.Metrics = metrics
	env.Orchestrator = orchestrator.New(orchestrator.Deps{
		Store:     st,
		Governor:  gov,
		Fetcher:   fetcher,
		Detector:  detect.New(cfg.Detect.ConfidenceThreshold, cfg.Detect.MinClusterSize),
		Profiles:  detect.NewProfileCache(cfg.Detect.ProfileCacheSize, 0),
		Extractor: extract.New(),
		Dedup:     dedup.New(st),
		Change:    change.New(st, cfg.Change.MissingThreshold),
		Sink:      sink,
		Metrics:   metrics,
	}, orchestrator.Options{
		Workers:              cfg.Orchestrator.Workers,
		RetryAttempts:        cfg.Orchestrator.RetryAttempts,
		FailedCycleThreshold: cfg.Orchestrator.FailedCycleThreshold,
	})

	var providers []discovery.Provider
	if cfg.Discovery.DirectoryURL != "" {
		providers = append(providers, discovery.NewDirectoryProvider("directory", cfg.Discovery.DirectoryURL, 1))
	}
	if cfg.Discovery.SeedFile != "" {
		providers = append(providers, discovery.NewSeedFileProvider(cfg.Discovery.SeedFile, 2))
	}
	env.Discovery = discovery.New(st, providers, cfg.Discovery.ProviderTimeout)

	return env, nil
}
