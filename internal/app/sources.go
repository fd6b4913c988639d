package app

import (
	"fmt"
	"time"

	"github.com/sarcastic555/politylink-crawler/internal/config"
	"github.com/sarcastic555/politylink-crawler/internal/crawler"
	"github.com/sarcastic555/politylink-crawler/internal/entity"
	"github.com/sarcastic555/politylink-crawler/internal/source/feed"
	"github.com/sarcastic555/politylink-crawler/internal/source/manual"
	"github.com/sarcastic555/politylink-crawler/internal/source/minutes"
	"github.com/sarcastic555/politylink-crawler/internal/source/reuters"
	"github.com/sarcastic555/politylink-crawler/internal/source/sangiintv"
	"github.com/sarcastic555/politylink-crawler/internal/source/table"
)

const dateLayout = "2006-01-02"

// MinutesSource builds the NDL minutes source. Empty fields in cfg take
// the configured defaults.
func (a *App) MinutesSource(cfg minutes.Config) (*minutes.Source, error) {
	defaults := a.Config.Sources.Minutes
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaults.PageSize
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	return minutes.New(cfg, a.Deps())
}

// SangiinTVSource builds the TV probe source.
func (a *App) SangiinTVSource(cfg sangiintv.Config) (*sangiintv.Source, error) {
	defaults := a.Config.Sources.SangiinTV
	if cfg.FailureLimit <= 0 {
		cfg.FailureLimit = defaults.FailureLimit
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	return sangiintv.New(cfg, a.Deps(), a.Graph)
}

// ReutersSource builds the Reuters archive source.
func (a *App) ReutersSource(cfg reuters.Config) (*reuters.Source, error) {
	defaults := a.Config.Sources.Reuters
	if cfg.Limit <= 0 {
		cfg.Limit = defaults.Limit
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	return reuters.New(cfg, a.Deps(), a.News)
}

// FeedSource builds an RSS/Atom source.
func (a *App) FeedSource(cfg feed.Config) (*feed.Source, error) {
	return feed.New(cfg, a.Deps(), a.News)
}

// TableSource builds the bill table source.
func (a *App) TableSource(cfg table.Config) (*table.Source, error) {
	return table.New(cfg, a.Deps())
}

// ManualSource builds the manual list source.
func (a *App) ManualSource(cfg manual.Config) (*manual.Source, error) {
	return manual.New(cfg, a.Deps())
}

// ScheduledSources returns the sources `crawl all` runs: minutes over the
// lookback window ending today, the TV probe resumed from its checkpoint,
// the Reuters archive and every configured feed.
func (a *App) ScheduledSources(now time.Time) ([]crawler.Source, error) {
	cfg := a.Config.Sources
	today := now.In(entity.JST)
	from := today.AddDate(0, 0, -cfg.Minutes.LookbackDays)

	var out []crawler.Source
	m, err := a.MinutesSource(minutes.Config{
		StartDate:     from.Format(dateLayout),
		EndDate:       today.Format(dateLayout),
		CollectSpeech: cfg.Minutes.CollectSpeech,
	})
	if err != nil {
		return nil, fmt.Errorf("minutes: %w", err)
	}
	out = append(out, m)

	tv, err := a.SangiinTVSource(sangiintv.Config{NextID: -1})
	if err != nil {
		return nil, fmt.Errorf("sangiin tv: %w", err)
	}
	out = append(out, tv)

	if cfg.Reuters.Limit > 0 {
		r, err := a.ReutersSource(reuters.Config{})
		if err != nil {
			return nil, fmt.Errorf("reuters: %w", err)
		}
		out = append(out, r)
	}

	for _, f := range cfg.Feeds {
		src, err := a.FeedSource(feedConfig(f))
		if err != nil {
			return nil, fmt.Errorf("feed %s: %w", f.Publisher, err)
		}
		out = append(out, src)
	}
	return out, nil
}

func feedConfig(f config.FeedSourceConfig) feed.Config {
	return feed.Config{URL: f.URL, Publisher: f.Publisher, Limit: f.Limit, IsPaid: f.IsPaid}
}
