// Package search defines the full-text index that stores news bodies.
package search

import (
	"context"

	"github.com/sarcastic555/politylink-crawler/internal/entity"
)

// DefaultIndex is the index holding NewsText documents.
const DefaultIndex = "news_text"

// Indexer writes and queries NewsText documents keyed by the News id.
type Indexer interface {
	IndexNewsText(ctx context.Context, doc entity.NewsText) error
	Search(ctx context.Context, query string, size int) ([]entity.NewsText, error)
	Ping(ctx context.Context) error
}
