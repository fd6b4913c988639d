// Package news writes articles to the graph store and their bodies to the
// search index.
package news

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sarcastic555/politylink-crawler/internal/entity"
	"github.com/sarcastic555/politylink-crawler/internal/graph"
	"github.com/sarcastic555/politylink-crawler/internal/metrics"
	"github.com/sarcastic555/politylink-crawler/internal/search"
)

// ErrValidation marks an article that misses a required field.
var ErrValidation = errors.New("news validation failed")

// Writer saves News to the graph and NewsText to the index. The two sinks
// share no transaction; deterministic ids make a failed save safe to retry.
type Writer struct {
	graph  graph.Store
	index  search.Indexer
	logger *zap.Logger
}

// NewWriter constructs a Writer.
func NewWriter(store graph.Store, index search.Indexer, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{graph: store, index: index, logger: logger.Named("news")}
}

// Validate checks the fields both sinks require.
func Validate(n entity.News, text entity.NewsText) error {
	var missing []string
	if n.ID == "" {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(n.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(n.URL) == "" {
		missing = append(missing, "url")
	}
	if strings.TrimSpace(n.Publisher) == "" {
		missing = append(missing, "publisher")
	}
	if n.PublishedAt == nil || n.PublishedAt.IsZero() {
		missing = append(missing, "published_at")
	}
	if strings.TrimSpace(text.Title) == "" {
		missing = append(missing, "text.title")
	}
	if strings.TrimSpace(text.Body) == "" {
		missing = append(missing, "text.body")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s missing %s", ErrValidation, n.URL, strings.Join(missing, ", "))
	}
	if n.ID != text.ID {
		return fmt.Errorf("%w: news id %s differs from text id %s", ErrValidation, n.ID, text.ID)
	}
	return nil
}

// Save validates the pair, merges News into the graph, then indexes NewsText.
// Nothing is written when validation fails.
func (w *Writer) Save(ctx context.Context, n entity.News, text entity.NewsText) error {
	if err := Validate(n, text); err != nil {
		metrics.ObserveNews("invalid")
		return err
	}
	if err := w.graph.BulkMerge(ctx, []entity.Entity{n}); err != nil {
		metrics.ObserveNews("failed")
		return fmt.Errorf("merge news %s: %w", n.ID, err)
	}
	metrics.ObserveMerged(string(entity.KindNews), 1)
	if err := w.index.IndexNewsText(ctx, text); err != nil {
		metrics.ObserveNews("failed")
		w.logger.Warn("news merged but text not indexed", zap.String("id", n.ID), zap.Error(err))
		return fmt.Errorf("index news text %s: %w", n.ID, err)
	}
	metrics.ObserveNews("saved")
	w.logger.Info("saved news", zap.String("id", n.ID), zap.String("url", n.URL))
	return nil
}
