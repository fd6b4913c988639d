// Package sourcetest provides fakes for source tests.
package sourcetest

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sarcastic555/politylink-crawler/internal/crawler"
	"github.com/sarcastic555/politylink-crawler/internal/entity"
	"github.com/sarcastic555/politylink-crawler/internal/graph/memory"
	"github.com/sarcastic555/politylink-crawler/internal/link"
	"github.com/sarcastic555/politylink-crawler/internal/resolve"
	"github.com/sarcastic555/politylink-crawler/internal/source"
)

// Page is a canned response.
type Page struct {
	Body        string
	ContentType string
}

// Fetcher serves canned pages by exact URL. Unknown URLs get a 404
// StatusError, like a real site.
type Fetcher struct {
	mu        sync.Mutex
	pages     map[string]Page
	redirects map[string]string
	requests  []string
}

// NewFetcher returns an empty Fetcher.
func NewFetcher() *Fetcher {
	return &Fetcher{pages: make(map[string]Page), redirects: make(map[string]string)}
}

// Redirect makes requests for from answer with the page at to, reporting to
// as the final URL.
func (f *Fetcher) Redirect(from, to string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redirects[from] = to
}

// Set registers body for url.
func (f *Fetcher) Set(url, contentType, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = Page{Body: body, ContentType: contentType}
}

// Requests lists the fetched URLs in order.
func (f *Fetcher) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

// Fetch implements crawler.Fetcher.
func (f *Fetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req.URL)
	final := req.URL
	if to, ok := f.redirects[req.URL]; ok {
		final = to
	}
	page, ok := f.pages[final]
	if !ok {
		return crawler.FetchResponse{}, &crawler.StatusError{URL: req.URL, StatusCode: http.StatusNotFound}
	}
	return crawler.FetchResponse{
		URL:        final,
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": {page.ContentType}},
		Body:       []byte(page.Body),
	}, nil
}

// Env is a memory graph wired to real resolvers.
type Env struct {
	Store   *memory.Store
	Fetcher *Fetcher
	Linker  *link.Linker
	Logs    *observer.ObservedLogs
	Deps    source.Deps
}

// NewEnv seeds the registry with entries and wires a Linker over it.
func NewEnv(t *testing.T, entries ...entity.Canonical) *Env {
	t.Helper()
	store := memory.NewStore()
	require.NoError(t, store.Seed(entries...))
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	linker := link.NewLinker(store,
		resolve.NewBillFinder(store),
		resolve.NewCommitteeFinder(store),
		resolve.NewMemberFinder(store),
		resolve.NewMinutesFinder(store),
		logger,
	)
	fetcher := NewFetcher()
	return &Env{
		Store:   store,
		Fetcher: fetcher,
		Linker:  linker,
		Logs:    logs,
		Deps:    source.Deps{Fetcher: fetcher, Linker: linker, Logger: logger},
	}
}
