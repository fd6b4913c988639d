// Package memory provides an in-memory search index for development and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/sarcastic555/politylink-crawler/internal/entity"
	"github.com/sarcastic555/politylink-crawler/internal/search"
)

// Indexer stores documents in a map keyed by id.
type Indexer struct {
	mu   sync.RWMutex
	docs map[string]entity.NewsText
	err  error
}

var _ search.Indexer = (*Indexer)(nil)

// NewIndexer constructs an empty Indexer.
func NewIndexer() *Indexer {
	return &Indexer{docs: make(map[string]entity.NewsText)}
}

// FailWith makes every later write return err. Passing nil clears it.
func (i *Indexer) FailWith(err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.err = err
}

// IndexNewsText replaces the document with the same id.
func (i *Indexer) IndexNewsText(_ context.Context, doc entity.NewsText) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.err != nil {
		return i.err
	}
	i.docs[doc.ID] = doc
	return nil
}

// Search returns documents whose title or body contains query, ordered by id.
func (i *Indexer) Search(_ context.Context, query string, size int) ([]entity.NewsText, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	var out []entity.NewsText
	for _, d := range i.docs {
		if strings.Contains(d.Title, query) || strings.Contains(d.Body, query) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	if size > 0 && len(out) > size {
		out = out[:size]
	}
	return out, nil
}

// Ping always succeeds.
func (i *Indexer) Ping(context.Context) error { return nil }

// Len returns the number of stored documents.
func (i *Indexer) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.docs)
}
