// Package link composes resolvers and the graph store into the relationship
// sets each crawled entity needs.
package link

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sarcastic555/politylink-crawler/internal/entity"
	"github.com/sarcastic555/politylink-crawler/internal/graph"
	"github.com/sarcastic555/politylink-crawler/internal/metrics"
	"github.com/sarcastic555/politylink-crawler/internal/resolve"
)

// Pairs accumulates (from, to) ids for one BulkLink call.
type Pairs struct {
	From []string
	To   []string
}

// Add appends a pair when both ids are known.
func (p *Pairs) Add(from, to string) {
	if from == "" || to == "" {
		return
	}
	p.From = append(p.From, from)
	p.To = append(p.To, to)
}

// Len returns the number of pairs.
func (p *Pairs) Len() int { return len(p.From) }

// Linker runs the linking procedures against one graph store.
type Linker struct {
	store      graph.Store
	bills      resolve.Resolver
	committees resolve.Resolver
	members    resolve.Resolver
	sessions   resolve.Resolver
	logger     *zap.Logger
}

// NewLinker constructs a Linker. Any resolver may be nil, which makes every
// lookup of that kind a miss.
func NewLinker(store graph.Store, bills, committees, members, sessions resolve.Resolver, logger *zap.Logger) *Linker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Linker{
		store:      store,
		bills:      bills,
		committees: committees,
		members:    members,
		sessions:   sessions,
		logger:     logger.Named("link"),
	}
}

// Merge upserts entities and records the merged count per kind.
func (l *Linker) Merge(ctx context.Context, entities ...entity.Entity) (int, error) {
	if len(entities) == 0 {
		return 0, nil
	}
	if err := l.store.BulkMerge(ctx, entities); err != nil {
		return 0, err
	}
	counts := make(map[entity.Kind]int)
	for _, e := range entities {
		counts[e.EntityKind()]++
	}
	for kind, n := range counts {
		metrics.ObserveMerged(string(kind), n)
	}
	return len(entities), nil
}

// Link submits the accumulated pairs in one call.
func (l *Linker) Link(ctx context.Context, pairs Pairs) (int, error) {
	if pairs.Len() == 0 {
		return 0, nil
	}
	if err := l.store.BulkLink(ctx, pairs.From, pairs.To); err != nil {
		return 0, err
	}
	for i := range pairs.From {
		if rel, err := graph.RelationType(pairs.From[i], pairs.To[i]); err == nil {
			metrics.ObserveLinked(rel, 1)
		}
	}
	return pairs.Len(), nil
}

// LinkURLs links each Url to the entity named by its LinkTo.
func (l *Linker) LinkURLs(ctx context.Context, urls []entity.URL) (int, error) {
	var pairs Pairs
	for _, u := range urls {
		pairs.Add(u.ID, u.LinkTo)
	}
	return l.Link(ctx, pairs)
}

// LinkActivities links each Activity to its member, bill and minutes when known.
func (l *Linker) LinkActivities(ctx context.Context, activities []entity.Activity) (int, error) {
	var pairs Pairs
	for _, a := range activities {
		pairs.Add(a.ID, a.MemberID)
		pairs.Add(a.ID, a.BillID)
		pairs.Add(a.ID, a.MinutesID)
	}
	return l.Link(ctx, pairs)
}

// LinkSpeeches links each Speech to its Minutes.
func (l *Linker) LinkSpeeches(ctx context.Context, speeches []entity.Speech) (int, error) {
	var pairs Pairs
	for _, s := range speeches {
		pairs.Add(s.ID, s.MinutesID)
	}
	return l.Link(ctx, pairs)
}

// LinkMinutes links Minutes to bills via topics, to its committee via its
// name, and speakers that are members to the Minutes.
func (l *Linker) LinkMinutes(ctx context.Context, m entity.Minutes) (int, error) {
	total, err := l.LinkBillsByTopics(ctx, m)
	if err != nil {
		return total, err
	}

	committee, err := l.find(ctx, l.committees, m.Name, zapcore.WarnLevel)
	if err != nil {
		return total, err
	}
	if committee != "" {
		n, err := l.Link(ctx, Pairs{From: []string{m.ID}, To: []string{committee}})
		total += n
		if err != nil {
			return total, err
		}
	}

	var pairs Pairs
	for _, speaker := range m.Speakers {
		member, err := l.find(ctx, l.members, speaker, zapcore.DebugLevel)
		if err != nil {
			return total, err
		}
		pairs.Add(member, m.ID)
	}
	n, err := l.Link(ctx, pairs)
	return total + n, err
}

// LinkBillsByTopics links Minutes to every bill its topics resolve to.
func (l *Linker) LinkBillsByTopics(ctx context.Context, m entity.Minutes) (int, error) {
	var pairs Pairs
	for _, topic := range m.Topics {
		bill, err := l.find(ctx, l.bills, topic, zapcore.DebugLevel)
		if err != nil {
			return 0, err
		}
		pairs.Add(m.ID, bill)
	}
	n, err := l.Link(ctx, pairs)
	if err == nil && n > 0 {
		l.logger.Info("linked bills", zap.Int("count", n), zap.String("minutes_id", m.ID))
	}
	return n, err
}

// StoreURLsForBill merges urls and links them to the bill billQuery resolves
// to. Nothing is written when the bill is not resolved.
func (l *Linker) StoreURLsForBill(ctx context.Context, urls []entity.URL, billQuery string) (int, error) {
	return l.storeURLsFor(ctx, urls, l.bills, billQuery)
}

// StoreURLsForMinutes is StoreURLsForBill for a session name.
func (l *Linker) StoreURLsForMinutes(ctx context.Context, urls []entity.URL, minutesQuery string) (int, error) {
	return l.storeURLsFor(ctx, urls, l.sessions, minutesQuery)
}

func (l *Linker) storeURLsFor(ctx context.Context, urls []entity.URL, r resolve.Resolver, query string) (int, error) {
	if len(urls) == 0 {
		return 0, nil
	}
	target, err := l.find(ctx, r, query, zapcore.WarnLevel)
	if err != nil || target == "" {
		return 0, err
	}
	batch := make([]entity.Entity, 0, len(urls))
	var pairs Pairs
	for _, u := range urls {
		batch = append(batch, u)
		pairs.Add(u.ID, target)
	}
	if _, err := l.Merge(ctx, batch...); err != nil {
		return 0, fmt.Errorf("merge urls for %q: %w", query, err)
	}
	return l.Link(ctx, pairs)
}

// ReplaceStaleReferences deletes the Urls titled title that point at srcID,
// except those whose id is in keep.
func (l *Linker) ReplaceStaleReferences(ctx context.Context, srcID string, title entity.URLTitle, keep ...string) (int, error) {
	node, err := l.store.Get(ctx, srcID)
	if errors.Is(err, graph.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", srcID, err)
	}
	kept := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		kept[id] = struct{}{}
	}
	deleted := 0
	for _, ref := range node.Refs {
		if ref.Title != string(title) {
			continue
		}
		if _, ok := kept[ref.ID]; ok {
			continue
		}
		if err := l.store.Delete(ctx, ref.ID); err != nil {
			return deleted, fmt.Errorf("delete %s: %w", ref.ID, err)
		}
		deleted++
		l.logger.Info("deleted stale reference", zap.String("url_id", ref.ID), zap.String("src_id", srcID))
	}
	return deleted, nil
}

// ResolveMember returns the member id for a speaker name, or "" on a miss.
func (l *Linker) ResolveMember(ctx context.Context, name string) (string, error) {
	return l.find(ctx, l.members, name, zapcore.DebugLevel)
}

// ResolveMinutes returns the session id for a meeting name, or "" on a miss.
func (l *Linker) ResolveMinutes(ctx context.Context, name string) (string, error) {
	return l.find(ctx, l.sessions, name, zapcore.DebugLevel)
}

// ResolveBill returns the bill id for a title, or "" on a miss.
func (l *Linker) ResolveBill(ctx context.Context, title string) (string, error) {
	return l.find(ctx, l.bills, title, zapcore.DebugLevel)
}

// find resolves text and logs misses at missLevel. Only unexpected failures
// are returned as errors.
func (l *Linker) find(ctx context.Context, r resolve.Resolver, text string, missLevel zapcore.Level) (string, error) {
	if r == nil {
		return "", nil
	}
	res, err := r.FindOne(ctx, text)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", text, err)
	}
	if res.Outcome == resolve.Found {
		return res.ID, nil
	}
	if ce := l.logger.Check(missLevel, "resolution miss"); ce != nil {
		ce.Write(
			zap.String("text", text),
			zap.Stringer("outcome", res.Outcome),
			zap.Strings("candidates", res.Candidates),
		)
	}
	return "", nil
}
