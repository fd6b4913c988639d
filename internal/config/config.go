// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. POLITYLINK_GRAPH_URI.
const EnvPrefix = "POLITYLINK"

// Backend names shared by the pluggable sections.
const (
	BackendMemory        = "memory"
	BackendNeo4j         = "neo4j"
	BackendElasticsearch = "elasticsearch"
	BackendPostgres      = "postgres"
	BackendNone          = "none"
	BackendLocal         = "local"
	BackendGCS           = "gcs"
)

// Config captures all knobs loaded via Viper.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Graph      GraphConfig      `mapstructure:"graph"`
	Search     SearchConfig     `mapstructure:"search"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Sources    SourcesConfig    `mapstructure:"sources"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// HTTPConfig configures the fetcher.
type HTTPConfig struct {
	UserAgent      string             `mapstructure:"user_agent"`
	TimeoutSeconds int                `mapstructure:"timeout_seconds"`
	RPS            float64            `mapstructure:"rps"`
	Burst          int                `mapstructure:"burst"`
	PerDomainRPS   map[string]float64 `mapstructure:"per_domain_rps"`
	MaxRetries     int                `mapstructure:"max_retries"`
	BackoffInitMs  int                `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs   int                `mapstructure:"backoff_max_ms"`
}

// GraphConfig selects the graph store.
type GraphConfig struct {
	Backend  string `mapstructure:"backend"`
	URI      string `mapstructure:"uri"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// SearchConfig selects the news text index.
type SearchConfig struct {
	Backend   string   `mapstructure:"backend"`
	Addresses []string `mapstructure:"addresses"`
	Index     string   `mapstructure:"index"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

// CheckpointConfig selects where crawl state survives restarts.
type CheckpointConfig struct {
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
	Table   string `mapstructure:"table"`
}

// CacheConfig enables the shared resolver snapshot cache. Empty RedisAddr
// disables it.
type CacheConfig struct {
	RedisAddr      string `mapstructure:"redis_addr"`
	RedisPassword  string `mapstructure:"redis_password"`
	RedisDB        int    `mapstructure:"redis_db"`
	TTLSeconds     int    `mapstructure:"ttl_seconds"`
	RefreshSeconds int    `mapstructure:"refresh_seconds"`
}

// ArchiveConfig selects where raw fetched bodies are kept.
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// MetricsConfig exposes /metrics and /healthz when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// SourcesConfig holds per-source defaults that CLI flags override.
type SourcesConfig struct {
	Minutes   MinutesSourceConfig   `mapstructure:"minutes"`
	SangiinTV SangiinTVSourceConfig `mapstructure:"sangiin_tv"`
	Reuters   ReutersSourceConfig   `mapstructure:"reuters"`
	Feeds     []FeedSourceConfig    `mapstructure:"feeds"`
}

// MinutesSourceConfig configures the NDL minutes API crawl.
type MinutesSourceConfig struct {
	PageSize      int    `mapstructure:"page_size"`
	LookbackDays  int    `mapstructure:"lookback_days"`
	CollectSpeech bool   `mapstructure:"collect_speech"`
	BaseURL       string `mapstructure:"base_url"`
}

// SangiinTVSourceConfig configures the TV probe crawl.
type SangiinTVSourceConfig struct {
	FailureLimit int    `mapstructure:"failure_limit"`
	BaseURL      string `mapstructure:"base_url"`
}

// ReutersSourceConfig configures the archive crawl.
type ReutersSourceConfig struct {
	Limit   int    `mapstructure:"limit"`
	BaseURL string `mapstructure:"base_url"`
}

// FeedSourceConfig is one RSS/Atom feed crawled by `crawl all`.
type FeedSourceConfig struct {
	URL       string `mapstructure:"url"`
	Publisher string `mapstructure:"publisher"`
	Limit     int    `mapstructure:"limit"`
	IsPaid    bool   `mapstructure:"is_paid"`
}

// Load builds a Config from disk and environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("http.user_agent", "politylink-crawler/1.0")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.rps", 1.0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 500)
	v.SetDefault("http.backoff_max_ms", 10000)
	v.SetDefault("graph.backend", BackendMemory)
	v.SetDefault("graph.user", "neo4j")
	v.SetDefault("graph.database", "neo4j")
	v.SetDefault("search.backend", BackendMemory)
	v.SetDefault("search.index", "news_text")
	v.SetDefault("checkpoint.backend", BackendMemory)
	v.SetDefault("checkpoint.table", "crawl_checkpoints")
	v.SetDefault("cache.ttl_seconds", 600)
	v.SetDefault("cache.refresh_seconds", 600)
	v.SetDefault("archive.backend", BackendNone)
	v.SetDefault("archive.prefix", "raw")
	v.SetDefault("metrics.addr", "")
	// Empty defaults register the keys so AutomaticEnv can fill them on Unmarshal.
	for _, key := range []string{
		"graph.uri", "graph.password", "checkpoint.dsn", "cache.redis_addr",
		"cache.redis_password", "archive.dir", "archive.bucket",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("sources.minutes.page_size", 5)
	v.SetDefault("sources.minutes.lookback_days", 7)
	v.SetDefault("sources.minutes.collect_speech", false)
	v.SetDefault("sources.sangiin_tv.failure_limit", 10)
	v.SetDefault("sources.reuters.limit", 100)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.RPS < 0 {
		return fmt.Errorf("http.rps must be >= 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	switch c.Graph.Backend {
	case BackendMemory:
	case BackendNeo4j:
		if c.Graph.URI == "" {
			return fmt.Errorf("graph.uri must be set for the neo4j backend")
		}
	default:
		return fmt.Errorf("unknown graph.backend %q", c.Graph.Backend)
	}
	switch c.Search.Backend {
	case BackendMemory:
	case BackendElasticsearch:
		if len(c.Search.Addresses) == 0 {
			return fmt.Errorf("search.addresses must be set for the elasticsearch backend")
		}
	default:
		return fmt.Errorf("unknown search.backend %q", c.Search.Backend)
	}
	switch c.Checkpoint.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Checkpoint.DSN == "" {
			return fmt.Errorf("checkpoint.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown checkpoint.backend %q", c.Checkpoint.Backend)
	}
	switch c.Archive.Backend {
	case BackendNone, BackendMemory:
	case BackendLocal:
		if c.Archive.Dir == "" {
			return fmt.Errorf("archive.dir must be set for the local backend")
		}
	case BackendGCS:
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown archive.backend %q", c.Archive.Backend)
	}
	if c.Sources.Minutes.PageSize <= 0 {
		return fmt.Errorf("sources.minutes.page_size must be > 0")
	}
	if c.Sources.SangiinTV.FailureLimit <= 0 {
		return fmt.Errorf("sources.sangiin_tv.failure_limit must be > 0")
	}
	for i, f := range c.Sources.Feeds {
		if f.URL == "" || f.Publisher == "" {
			return fmt.Errorf("sources.feeds[%d] needs url and publisher", i)
		}
	}
	return nil
}

// Timeout returns the per-request fetch timeout.
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Backoff returns the initial and maximum retry delays.
func (c HTTPConfig) Backoff() (time.Duration, time.Duration) {
	return time.Duration(c.BackoffInitMs) * time.Millisecond, time.Duration(c.BackoffMaxMs) * time.Millisecond
}

// TTL returns the snapshot expiry in Redis.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Refresh returns how long a resolver snapshot stays fresh in-process.
func (c CacheConfig) Refresh() time.Duration {
	return time.Duration(c.RefreshSeconds) * time.Second
}
