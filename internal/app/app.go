// Package app builds the long-lived clients a crawl needs from Config and
// hands them to the sources. It is the only place that knows which backend
// implements each store.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sarcastic555/politylink-crawler/internal/api"
	"github.com/sarcastic555/politylink-crawler/internal/clock/system"
	"github.com/sarcastic555/politylink-crawler/internal/config"
	"github.com/sarcastic555/politylink-crawler/internal/crawler"
	collyfetcher "github.com/sarcastic555/politylink-crawler/internal/fetcher/colly"
	"github.com/sarcastic555/politylink-crawler/internal/graph"
	graphmem "github.com/sarcastic555/politylink-crawler/internal/graph/memory"
	"github.com/sarcastic555/politylink-crawler/internal/graph/neo4j"
	"github.com/sarcastic555/politylink-crawler/internal/hash/sha256"
	"github.com/sarcastic555/politylink-crawler/internal/link"
	"github.com/sarcastic555/politylink-crawler/internal/metrics"
	"github.com/sarcastic555/politylink-crawler/internal/news"
	"github.com/sarcastic555/politylink-crawler/internal/policy/ratelimit"
	"github.com/sarcastic555/politylink-crawler/internal/resolve"
	"github.com/sarcastic555/politylink-crawler/internal/search"
	"github.com/sarcastic555/politylink-crawler/internal/search/elasticsearch"
	searchmem "github.com/sarcastic555/politylink-crawler/internal/search/memory"
	"github.com/sarcastic555/politylink-crawler/internal/source"
	"github.com/sarcastic555/politylink-crawler/internal/storage/gcs"
	"github.com/sarcastic555/politylink-crawler/internal/storage/local"
	storagemem "github.com/sarcastic555/politylink-crawler/internal/storage/memory"
	"github.com/sarcastic555/politylink-crawler/internal/storage/postgres"
)

// App holds the shared clients for one process.
type App struct {
	Config      config.Config
	Logger      *zap.Logger
	Graph       graph.Store
	Index       search.Indexer
	Checkpoints crawler.CheckpointStore
	Fetcher     crawler.Fetcher
	Linker      *link.Linker
	News        *news.Writer

	pingers []api.Pinger
	closers []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// Overrides replaces backends built from Config, mainly for tests.
type Overrides struct {
	Graph       graph.Store
	Index       search.Indexer
	Checkpoints crawler.CheckpointStore
	Fetcher     crawler.Fetcher
}

// New connects every backend named in cfg. On failure the clients opened so
// far are closed before returning.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, ov Overrides) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	if a.Graph = ov.Graph; a.Graph == nil {
		if a.Graph, err = a.openGraph(ctx); err != nil {
			return nil, err
		}
	}
	if a.Index = ov.Index; a.Index == nil {
		if a.Index, err = a.openIndex(); err != nil {
			return nil, err
		}
	}
	if a.Checkpoints = ov.Checkpoints; a.Checkpoints == nil {
		if a.Checkpoints, err = a.openCheckpoints(ctx); err != nil {
			return nil, err
		}
	}
	if a.Fetcher = ov.Fetcher; a.Fetcher == nil {
		a.Fetcher = a.newFetcher()
	}
	if a.Fetcher, err = a.wrapArchive(ctx, a.Fetcher); err != nil {
		return nil, err
	}

	opts := a.resolverOptions()
	a.Linker = link.NewLinker(a.Graph,
		resolve.NewBillFinder(a.Graph, opts...),
		resolve.NewCommitteeFinder(a.Graph, opts...),
		resolve.NewMemberFinder(a.Graph, opts...),
		resolve.NewMinutesFinder(a.Graph, opts...),
		logger,
	)
	a.News = news.NewWriter(a.Graph, a.Index, logger)
	logger.Info("application services initialized",
		zap.String("graph", cfg.Graph.Backend),
		zap.String("search", cfg.Search.Backend),
		zap.String("checkpoint", cfg.Checkpoint.Backend),
		zap.String("archive", cfg.Archive.Backend),
		zap.Bool("resolver_cache", cfg.Cache.RedisAddr != ""),
	)
	return a, nil
}

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func (a *App) openGraph(ctx context.Context) (graph.Store, error) {
	cfg := a.Config.Graph
	if cfg.Backend != config.BackendNeo4j {
		return graphmem.NewStore(), nil
	}
	store, err := neo4j.New(ctx, neo4j.Config{
		URI:      cfg.URI,
		User:     cfg.User,
		Password: cfg.Password,
		Database: cfg.Database,
	}, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("open graph store: %w", err)
	}
	a.pingers = append(a.pingers, store)
	a.onClose("neo4j", store.Close)
	return store, nil
}

func (a *App) openIndex() (search.Indexer, error) {
	cfg := a.Config.Search
	if cfg.Backend != config.BackendElasticsearch {
		return searchmem.NewIndexer(), nil
	}
	client, err := elasticsearch.New(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Index:     cfg.Index,
		Username:  cfg.Username,
		Password:  cfg.Password,
	}, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("open search index: %w", err)
	}
	return client, nil
}

func (a *App) openCheckpoints(ctx context.Context) (crawler.CheckpointStore, error) {
	cfg := a.Config.Checkpoint
	if cfg.Backend != config.BackendPostgres {
		return storagemem.NewCheckpointStore(), nil
	}
	store, err := postgres.NewCheckpointStore(ctx, postgres.Config{DSN: cfg.DSN, Table: cfg.Table}, system.New())
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	a.pingers = append(a.pingers, store)
	a.onClose("postgres", func(context.Context) error {
		store.Close()
		return nil
	})
	return store, nil
}

func (a *App) newFetcher() crawler.Fetcher {
	cfg := a.Config.HTTP
	initial, maxDelay := cfg.Backoff()
	return collyfetcher.New(
		collyfetcher.Config{UserAgent: cfg.UserAgent, Timeout: cfg.Timeout()},
		collyfetcher.WithLimiter(ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.RPS,
			DefaultBurst: cfg.Burst,
			PerDomainRPS: cfg.PerDomainRPS,
		})),
		collyfetcher.WithRetryPolicy(crawler.NewExponentialRetryPolicyWith(cfg.MaxRetries, initial, maxDelay)),
		collyfetcher.WithLogger(a.Logger),
	)
}

func (a *App) wrapArchive(ctx context.Context, next crawler.Fetcher) (crawler.Fetcher, error) {
	cfg := a.Config.Archive
	var blobs crawler.BlobStore
	switch cfg.Backend {
	case config.BackendLocal:
		store, err := local.New(local.Config{BaseDir: cfg.Dir})
		if err != nil {
			return nil, fmt.Errorf("open local archive: %w", err)
		}
		blobs = store
	case config.BackendGCS:
		store, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
		if err != nil {
			return nil, fmt.Errorf("open gcs archive: %w", err)
		}
		a.onClose("gcs", func(context.Context) error { return store.Close() })
		blobs = store
	case config.BackendMemory:
		blobs = storagemem.NewBlobStore()
	default:
		return next, nil
	}
	return crawler.NewArchivingFetcher(next, blobs, sha256.New(), a.Logger), nil
}

func (a *App) resolverOptions() []resolve.Option {
	cfg := a.Config.Cache
	opts := []resolve.Option{
		resolve.WithLogger(a.Logger),
		resolve.WithRefreshInterval(cfg.Refresh()),
	}
	if cfg.RedisAddr == "" {
		return opts
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	a.onClose("redis", func(context.Context) error { return client.Close() })
	return append(opts, resolve.WithCache(resolve.NewRedisCache(client, cfg.TTL())))
}

// Deps returns the collaborators shared by every source.
func (a *App) Deps() source.Deps {
	return source.Deps{Fetcher: a.Fetcher, Linker: a.Linker, Logger: a.Logger}
}

// Runner returns a Runner persisting to the configured checkpoint store.
func (a *App) Runner() *crawler.Runner {
	return crawler.NewRunner(a.Checkpoints, a.Logger)
}

// Server returns the operator HTTP server over this App's stores.
func (a *App) Server() *api.Server {
	return api.NewServer(a.Checkpoints, a.Graph, a.Index, a.Logger, a.pingers...)
}

// Close releases every client in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.Logger.Warn("close failed", zap.String("client", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
