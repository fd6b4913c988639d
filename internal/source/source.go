// Package source holds the collaborators shared by the per-site crawl sources.
package source

import (
	"bytes"
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sarcastic555/politylink-crawler/internal/crawler"
	"github.com/sarcastic555/politylink-crawler/internal/entity"
	"github.com/sarcastic555/politylink-crawler/internal/link"
)

// Deps are the clients every source needs.
type Deps struct {
	Fetcher crawler.Fetcher
	Linker  *link.Linker
	Logger  *zap.Logger
}

// Validate reports a missing dependency.
func (d Deps) Validate() error {
	if d.Fetcher == nil {
		return fmt.Errorf("fetcher is required")
	}
	if d.Linker == nil {
		return fmt.Errorf("linker is required")
	}
	return nil
}

// Named returns the logger for source name.
func (d Deps) Named(name string) *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger.Named(name)
}

// Fetch GETs url on behalf of source.
func (d Deps) Fetch(ctx context.Context, source, url string) (crawler.FetchResponse, error) {
	return d.Fetcher.Fetch(ctx, crawler.FetchRequest{Source: source, URL: url})
}

// NewsSaver persists an article to the graph and the search index.
type NewsSaver interface {
	Save(ctx context.Context, news entity.News, text entity.NewsText) error
}

// Document parses an HTML response body.
func Document(resp crawler.FetchResponse) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse html %s: %v", entity.ErrMalformedInput, resp.URL, err)
	}
	return doc, nil
}

// BuildNews builds the News for a fetched article from its canonical
// address: the post-redirect URL, normalized. A feed item and a listing link
// that reach the same article yield the same id. requested is used when the
// response carries no URL.
func BuildNews(resp crawler.FetchResponse, requested, publisher string) (entity.News, error) {
	raw := resp.URL
	if raw == "" {
		raw = requested
	}
	canonical, err := crawler.NormalizeURL(raw)
	if err != nil {
		return entity.News{}, fmt.Errorf("%w: article url %q: %v", entity.ErrMalformedInput, raw, err)
	}
	return entity.BuildNews(canonical, publisher)
}

// Entities widens a typed slice for Linker.Merge.
func Entities[T entity.Entity](items []T) []entity.Entity {
	out := make([]entity.Entity, len(items))
	for i, it := range items {
		out[i] = it
	}
	return out
}
