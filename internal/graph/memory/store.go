// Package memory provides an in-memory graph store for development and tests.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sarcastic555/politylink-crawler/internal/entity"
	"github.com/sarcastic555/politylink-crawler/internal/graph"
)

type node struct {
	kind  entity.Kind
	props map[string]any
}

type edgeKey struct {
	from string
	to   string
	rel  string
}

// Store implements graph.Store in memory.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]*node
	edges map[edgeKey]struct{}
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		nodes: make(map[string]*node),
		edges: make(map[edgeKey]struct{}),
	}
}

var _ graph.Store = (*Store)(nil)

// Get returns the node with its incoming Url references.
func (s *Store) Get(_ context.Context, id string) (graph.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return graph.Node{}, fmt.Errorf("%w: %s", graph.ErrNotFound, id)
	}
	return graph.Node{
		ID:    id,
		Kind:  n.kind,
		Props: maps.Clone(n.props),
		Refs:  s.refsLocked(id),
	}, nil
}

// BulkMerge upserts every entity. The batch is validated before any write.
func (s *Store) BulkMerge(_ context.Context, entities []entity.Entity) error {
	if _, _, err := graph.GroupByKind(entities); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entities {
		if e == nil {
			continue
		}
		n, ok := s.nodes[e.EntityID()]
		if !ok {
			n = &node{kind: e.EntityKind(), props: make(map[string]any)}
			s.nodes[e.EntityID()] = n
		}
		maps.Copy(n.props, e.Properties())
	}
	return nil
}

// BulkLink merges one relationship per pair. Nothing is written when an
// endpoint is missing.
func (s *Store) BulkLink(_ context.Context, fromIDs, toIDs []string) error {
	edges, err := graph.PrepareEdges(fromIDs, toIDs)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var missing []string
	seen := make(map[string]struct{})
	for _, e := range edges {
		for _, id := range []string{e.From, e.To} {
			if _, ok := s.nodes[id]; ok {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return &graph.MissingEndpointError{IDs: missing}
	}
	for _, e := range edges {
		s.edges[edgeKey{from: e.From, to: e.To, rel: e.Type}] = struct{}{}
	}
	return nil
}

// Delete removes a node and its relationships. Deleting an absent id is a no-op.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nodes, id)
	for k := range s.edges {
		if k.from == id || k.to == id {
			delete(s.edges, k)
		}
	}
	return nil
}

// LatestMinutesURLs returns the references of the newest matching Minutes.
func (s *Store) LatestMinutesURLs(_ context.Context, nameContains string) ([]graph.Reference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		latestID string
		latestAt time.Time
	)
	for id, n := range s.nodes {
		if n.kind != entity.KindMinutes {
			continue
		}
		name, _ := n.props["name"].(string)
		if !strings.Contains(name, nameContains) {
			continue
		}
		at, _ := n.props["start_date_time"].(time.Time)
		if latestID == "" || at.After(latestAt) {
			latestID, latestAt = id, at
		}
	}
	if latestID == "" {
		return nil, nil
	}
	return s.refsLocked(latestID), nil
}

// ListCanonical returns every node of kind as a registry entry, sorted by id.
func (s *Store) ListCanonical(_ context.Context, kind entity.Kind) ([]entity.Canonical, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []entity.Canonical
	for id, n := range s.nodes {
		if n.kind != kind {
			continue
		}
		c := entity.Canonical{ID: id, Kind: kind}
		c.Name, _ = n.props["name"].(string)
		c.Aliases, _ = n.props["aliases"].([]string)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Close is a no-op.
func (s *Store) Close(context.Context) error { return nil }

// Seed loads registry entries, typically bills, committees and members.
func (s *Store) Seed(entries ...entity.Canonical) error {
	batch := make([]entity.Entity, 0, len(entries))
	for _, c := range entries {
		batch = append(batch, c)
	}
	return s.BulkMerge(context.Background(), batch)
}

// HasEdge reports whether a relationship from -> to exists.
func (s *Store) HasEdge(from, to string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k := range s.edges {
		if k.from == from && k.to == to {
			return true
		}
	}
	return false
}

// Counts returns the number of nodes and relationships.
func (s *Store) Counts() (nodes, edges int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes), len(s.edges)
}

// CountKind returns the number of nodes with the label.
func (s *Store) CountKind(kind entity.Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, n := range s.nodes {
		if n.kind == kind {
			total++
		}
	}
	return total
}

func (s *Store) refsLocked(id string) []graph.Reference {
	var refs []graph.Reference
	for k := range s.edges {
		if k.to != id || k.rel != "REFERS_TO" {
			continue
		}
		u, ok := s.nodes[k.from]
		if !ok || u.kind != entity.KindURL {
			continue
		}
		ref := graph.Reference{ID: k.from}
		ref.URL, _ = u.props["url"].(string)
		ref.Title, _ = u.props["title"].(string)
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs
}
