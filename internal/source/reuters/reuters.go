// Package reuters crawls the Reuters Japan politics archive until a number
// of article links has been seen.
package reuters

import (
	"context"
	"fmt"
	"strconv"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sarcastic555/politylink-crawler/internal/crawler"
	"github.com/sarcastic555/politylink-crawler/internal/entity"
	"github.com/sarcastic555/politylink-crawler/internal/source"
	"github.com/sarcastic555/politylink-crawler/internal/source/article"
)

// Name identifies the source in checkpoints and metrics.
const Name = "reuters"

const (
	// DefaultBaseURL is the politics archive listing.
	DefaultBaseURL = "https://jp.reuters.com/news/archive/politicsNews"
	// Publisher is stored on every News node.
	Publisher = "ロイター"
	pageSize  = 10
)

var selectors = article.Selectors{
	Title: "h1",
	Body:  "div.ArticleBodyWrapper > p",
}

// Config bounds the crawl.
type Config struct {
	Limit   int
	BaseURL string
}

// Source implements crawler.Source.
type Source struct {
	cfg     Config
	deps    source.Deps
	saver   source.NewsSaver
	visited crawler.VisitTracker
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
	if cfg.Limit <= 0 {
		return nil, fmt.Errorf("reuters limit must be positive, got %d", cfg.Limit)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Source{cfg: cfg, deps: deps, saver: saver, logger: deps.Named(Name)}, nil
}

// Name implements crawler.Source.
func (s *Source) Name() string { return Name }

// Start resumes from saved or begins before the first page.
func (s *Source) Start(_ context.Context, saved *crawler.State) (crawler.State, error) {
	if saved != nil {
		return *saved, nil
	}
	return crawler.State{}, nil
}

// PageURL returns archive page n (1-based).
func (s *Source) PageURL(n int) string {
	return s.cfg.BaseURL + "?view=page&page=" + strconv.Itoa(n) + "&pageSize=" + strconv.Itoa(pageSize)
}

// Step reads archive page state.Cursor+1 and saves every linked article.
func (s *Source) Step(ctx context.Context, state crawler.State) (crawler.StepResult, error) {
	listURL := s.PageURL(state.Cursor + 1)
	resp, err := s.deps.Fetch(ctx, Name, listURL)
	if err != nil {
		return crawler.StepResult{Next: state}, fmt.Errorf("fetch %s: %w", listURL, err)
	}
	doc, err := source.Document(resp)
	if err != nil {
		return crawler.StepResult{Next: state}, err
	}
	links := ArticleLinks(doc, resp.URL)
	s.logger.Info("scraped news urls", zap.Int("count", len(links)), zap.String("url", listURL))

	var stats crawler.Stats
	for _, link := range links {
		if !s.visited.MarkIfNew(link) {
			continue
		}
		if err := s.saveArticle(ctx, link); err != nil {
			if ctx.Err() != nil {
				return crawler.StepResult{Next: state, Stats: stats}, ctx.Err()
			}
			s.logger.Warn("skipping article", zap.String("url", link), zap.Error(err))
			stats.Skipped++
			continue
		}
		stats.Merged++
	}

	next, done := crawler.AdvanceBounded(state, len(links), s.cfg.Limit)
	if len(links) == 0 {
		s.logger.Info("archive exhausted", zap.Int("page", next.Cursor))
		done = true
	}
	return crawler.StepResult{Next: next, Done: done, Stats: stats}, nil
}

// ArticleLinks returns the absolute article URLs on an archive page.
func ArticleLinks(doc *goquery.Document, pageURL string) []string {
	var (
		out  []string
		seen = make(map[string]struct{})
	)
	doc.Find("section#moreSectionNews article a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		abs, err := crawler.ResolveURL(pageURL, href)
		if err != nil {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
	})
	return out
}

func (s *Source) saveArticle(ctx context.Context, articleURL string) error {
	resp, err := s.deps.Fetch(ctx, Name, articleURL)
	if err != nil {
		return fmt.Errorf("fetch article: %w", err)
	}
	n, err := source.BuildNews(resp, articleURL, Publisher)
	if err != nil {
		return err
	}
	a, err := article.Parse(n.URL, resp.Body, selectors)
	if err != nil {
		return err
	}
	n.Title = a.Title
	n.IsPaid = false
	n.Thumbnail = a.Thumbnail
	n.PublishedAt = a.PublishedAt
	n.LastModifiedAt = a.LastModifiedAt
	return s.saver.Save(ctx, n, entity.BuildNewsText(n, a.Title, a.Body))
}
