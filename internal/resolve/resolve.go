// Package resolve maps free text found in sources to canonical registry ids.
//
// A Finder holds a point-in-time snapshot of one registry kind, loaded from
// the graph store and optionally shared through a SnapshotCache. Lookups
// report an Outcome instead of an error for misses; the error return is
// reserved for failures to load the registry.
package resolve

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sarcastic555/politylink-crawler/internal/entity"
	"github.com/sarcastic555/politylink-crawler/internal/metrics"
)

// Outcome classifies a lookup.
type Outcome int

const (
	// NotFound means no registry entry matched.
	NotFound Outcome = iota
	// Found means exactly one entry matched.
	Found
	// Ambiguous means several entries matched equally well.
	Ambiguous
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case Ambiguous:
		return "ambiguous"
	default:
		return "not_found"
	}
}

// Result is the answer to a lookup. ID is set only when Outcome is Found.
type Result struct {
	Outcome    Outcome
	ID         string
	Name       string
	Candidates []string
}

// Resolver finds the single canonical entry described by text.
type Resolver interface {
	FindOne(ctx context.Context, text string) (Result, error)
}

// Registry lists canonical entries. graph.Store satisfies it.
type Registry interface {
	ListCanonical(ctx context.Context, kind entity.Kind) ([]entity.Canonical, error)
}

// SnapshotCache shares registry snapshots between processes.
type SnapshotCache interface {
	Load(ctx context.Context, kind entity.Kind) ([]entity.Canonical, bool, error)
	Store(ctx context.Context, kind entity.Kind, entries []entity.Canonical) error
}

// DefaultRefreshInterval bounds how stale a snapshot may get.
const DefaultRefreshInterval = 10 * time.Minute

// Option customizes a Finder.
type Option func(*Finder)

// WithCache shares snapshots through cache.
func WithCache(cache SnapshotCache) Option {
	return func(f *Finder) { f.cache = cache }
}

// WithRefreshInterval sets how long a snapshot is reused. Zero never refreshes.
func WithRefreshInterval(d time.Duration) Option {
	return func(f *Finder) { f.refresh = d }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Finder) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option {
	return func(f *Finder) { f.now = now }
}

type indexed struct {
	entry entity.Canonical
	keys  []string
}

// Finder resolves text against one registry kind.
type Finder struct {
	kind      entity.Kind
	registry  Registry
	cache     SnapshotCache
	normalize func(string) string
	refresh   time.Duration
	now       func() time.Time
	logger    *zap.Logger

	mu       sync.Mutex
	entries  []indexed
	exact    map[string][]int
	loadedAt time.Time
	loaded   bool
}

var _ Resolver = (*Finder)(nil)

// NewFinder constructs a Finder for kind using normalize on both sides.
func NewFinder(kind entity.Kind, registry Registry, normalize func(string) string, opts ...Option) *Finder {
	f := &Finder{
		kind:      kind,
		registry:  registry,
		normalize: normalize,
		refresh:   DefaultRefreshInterval,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.Named("resolve").With(zap.String("kind", string(kind)))
	return f
}

// NewBillFinder resolves bill titles.
func NewBillFinder(registry Registry, opts ...Option) *Finder {
	return NewFinder(entity.KindBill, registry, Normalize, opts...)
}

// NewCommitteeFinder resolves committee names, typically meeting names.
func NewCommitteeFinder(registry Registry, opts ...Option) *Finder {
	return NewFinder(entity.KindCommittee, registry, Normalize, opts...)
}

// NewMemberFinder resolves speaker names, ignoring honorifics.
func NewMemberFinder(registry Registry, opts ...Option) *Finder {
	return NewFinder(entity.KindMember, registry, NormalizeMember, opts...)
}

// NewMinutesFinder resolves session names such as 参議院予算委員会. The same
// meeting name recurs on every sitting day, so a name shared by several
// sessions is Ambiguous.
func NewMinutesFinder(registry Registry, opts ...Option) *Finder {
	return NewFinder(entity.KindMinutes, registry, Normalize, opts...)
}

// Kind returns the registry kind.
func (f *Finder) Kind() entity.Kind { return f.kind }

// FindOne matches text by exact name or alias first, then by the longest
// registry name contained in text. Equal-length matches are Ambiguous.
func (f *Finder) FindOne(ctx context.Context, text string) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.ensureSnapshotLocked(ctx); err != nil {
		return Result{}, err
	}
	res := f.matchLocked(f.normalize(text))
	metrics.ObserveResolve(string(f.kind), res.Outcome.String())
	return res, nil
}

// Invalidate drops the snapshot so the next lookup reloads it.
func (f *Finder) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded = false
}

func (f *Finder) matchLocked(query string) Result {
	if query == "" {
		return Result{Outcome: NotFound}
	}
	if hits := f.exact[query]; len(hits) > 0 {
		return f.resultFor(hits)
	}
	best := 0
	var hits []int
	for i, e := range f.entries {
		for _, key := range e.keys {
			if len(key) < best || !strings.Contains(query, key) {
				continue
			}
			if len(key) > best {
				best = len(key)
				hits = hits[:0]
			}
			hits = appendUnique(hits, i)
		}
	}
	return f.resultFor(hits)
}

func (f *Finder) resultFor(hits []int) Result {
	switch len(hits) {
	case 0:
		return Result{Outcome: NotFound}
	case 1:
		e := f.entries[hits[0]].entry
		return Result{Outcome: Found, ID: e.ID, Name: e.Name}
	default:
		ids := make([]string, 0, len(hits))
		for _, i := range hits {
			ids = append(ids, f.entries[i].entry.ID)
		}
		sort.Strings(ids)
		return Result{Outcome: Ambiguous, Candidates: ids}
	}
}

func (f *Finder) ensureSnapshotLocked(ctx context.Context) error {
	if f.loaded && (f.refresh <= 0 || f.now().Sub(f.loadedAt) < f.refresh) {
		return nil
	}
	entries, err := f.loadEntries(ctx)
	if err != nil {
		return err
	}
	f.index(entries)
	f.loadedAt = f.now()
	f.loaded = true
	f.logger.Debug("registry snapshot loaded", zap.Int("entries", len(entries)))
	return nil
}

func (f *Finder) loadEntries(ctx context.Context) ([]entity.Canonical, error) {
	if f.cache != nil {
		entries, ok, err := f.cache.Load(ctx, f.kind)
		switch {
		case err != nil:
			f.logger.Warn("snapshot cache read failed", zap.Error(err))
		case ok:
			return entries, nil
		}
	}
	entries, err := f.registry.ListCanonical(ctx, f.kind)
	if err != nil {
		return nil, fmt.Errorf("load %s registry: %w", f.kind, err)
	}
	if f.cache != nil {
		if err := f.cache.Store(ctx, f.kind, entries); err != nil {
			f.logger.Warn("snapshot cache write failed", zap.Error(err))
		}
	}
	return entries, nil
}

func (f *Finder) index(entries []entity.Canonical) {
	f.entries = make([]indexed, 0, len(entries))
	f.exact = make(map[string][]int)
	for _, e := range entries {
		idx := len(f.entries)
		item := indexed{entry: e}
		for _, name := range append([]string{e.Name}, e.Aliases...) {
			key := f.normalize(name)
			if key == "" {
				continue
			}
			item.keys = append(item.keys, key)
			f.exact[key] = appendUnique(f.exact[key], idx)
		}
		f.entries = append(f.entries, item)
	}
}

func appendUnique(list []int, v int) []int {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
