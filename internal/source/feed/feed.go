// Package feed crawls the articles listed in an RSS or Atom feed.
package feed

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/sarcastic555/politylink-crawler/internal/crawler"
	"github.com/sarcastic555/politylink-crawler/internal/entity"
	"github.com/sarcastic555/politylink-crawler/internal/source"
	"github.com/sarcastic555/politylink-crawler/internal/source/article"
)

// Name identifies the source in checkpoints and metrics.
const Name = "feed"

const defaultBatchSize = 10

// Config names the feed and bounds the crawl.
type Config struct {
	URL       string
	Publisher string
	Limit     int
	// BatchSize is the number of items handled per step.
	BatchSize int
	IsPaid    bool
}

// Source implements crawler.Source. The feed is fetched once per run; each
// step handles the next batch of items.
type Source struct {
	cfg     Config
	deps    source.Deps
	saver   source.NewsSaver
	parser  *gofeed.Parser
	items   []*gofeed.Item
	fetched bool
	logger  *zap.Logger
}

var _ crawler.Source = (*Source)(nil)

// New returns a Source writing articles through saver.
func New(cfg Config, deps source.Deps, saver source.NewsSaver) (*Source, error) {
	if err := deps.Validate(); err != nil {
		return nil, err
	}
	if saver == nil {
		return nil, fmt.Errorf("news saver is required")
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("feed url is required")
	}
	if strings.TrimSpace(cfg.Publisher) == "" {
		return nil, fmt.Errorf("feed publisher is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	return &Source{
		cfg:    cfg,
		deps:   deps,
		saver:  saver,
		parser: gofeed.NewParser(),
		logger: deps.Named(Name).With(zap.String("feed", cfg.URL)),
	}, nil
}

// Name includes the publisher so several feeds keep separate checkpoints.
func (s *Source) Name() string { return Name + ":" + s.cfg.Publisher }

// Start resumes from saved or begins at the first batch.
func (s *Source) Start(_ context.Context, saved *crawler.State) (crawler.State, error) {
	if saved != nil {
		return *saved, nil
	}
	return crawler.State{}, nil
}

// Step saves the items of batch state.Cursor.
func (s *Source) Step(ctx context.Context, state crawler.State) (crawler.StepResult, error) {
	if err := s.load(ctx); err != nil {
		return crawler.StepResult{Next: state}, err
	}
	from := state.Cursor * s.cfg.BatchSize
	remaining := len(s.items) - from
	if s.cfg.Limit > 0 {
		remaining = min(remaining, s.cfg.Limit-state.Emitted)
	}
	if remaining <= 0 {
		return crawler.StepResult{Next: state, Done: true}, nil
	}
	to := from + min(s.cfg.BatchSize, remaining)

	var stats crawler.Stats
	batch := s.items[from:to]
	for _, item := range batch {
		if err := s.saveItem(ctx, item); err != nil {
			if ctx.Err() != nil {
				return crawler.StepResult{Next: state, Stats: stats}, ctx.Err()
			}
			s.logger.Warn("skipping feed item", zap.String("link", item.Link), zap.Error(err))
			stats.Skipped++
			continue
		}
		stats.Merged++
	}

	next, done := crawler.AdvanceBounded(state, len(batch), s.cfg.Limit)
	if to >= len(s.items) {
		done = true
	}
	return crawler.StepResult{Next: next, Done: done, Stats: stats}, nil
}

func (s *Source) load(ctx context.Context) error {
	if s.fetched {
		return nil
	}
	resp, err := s.deps.Fetch(ctx, s.Name(), s.cfg.URL)
	if err != nil {
		return fmt.Errorf("fetch feed %s: %w", s.cfg.URL, err)
	}
	parsed, err := s.parser.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return fmt.Errorf("%w: parse feed %s: %v", entity.ErrMalformedInput, s.cfg.URL, err)
	}
	s.items = parsed.Items
	s.fetched = true
	s.logger.Info("loaded feed", zap.String("title", parsed.Title), zap.Int("items", len(s.items)))
	return nil
}

func (s *Source) saveItem(ctx context.Context, item *gofeed.Item) error {
	link := strings.TrimSpace(item.Link)
	if link == "" {
		return fmt.Errorf("%w: feed item %q has no link", entity.ErrMalformedInput, item.Title)
	}
	resp, err := s.deps.Fetch(ctx, s.Name(), link)
	if err != nil {
		return fmt.Errorf("fetch article: %w", err)
	}
	n, err := source.BuildNews(resp, link, s.cfg.Publisher)
	if err != nil {
		return err
	}
	a, err := article.Parse(n.URL, resp.Body, article.Selectors{})
	if err != nil {
		return err
	}
	n.Title = firstNonEmpty(strings.TrimSpace(item.Title), a.Title)
	n.IsPaid = s.cfg.IsPaid
	n.Thumbnail = a.Thumbnail
	if n.Thumbnail == nil && item.Image != nil && item.Image.URL != "" {
		thumb := item.Image.URL
		n.Thumbnail = &thumb
	}
	n.PublishedAt = firstTime(a.PublishedAt, item.PublishedParsed, item.UpdatedParsed)
	n.LastModifiedAt = firstTime(a.LastModifiedAt, item.UpdatedParsed)
	return s.saver.Save(ctx, n, entity.BuildNewsText(n, n.Title, a.Body))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstTime(values ...*time.Time) *time.Time {
	for _, v := range values {
		if v != nil && !v.IsZero() {
			t := v.UTC()
			return &t
		}
	}
	return nil
}
