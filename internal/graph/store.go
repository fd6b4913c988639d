// Package graph defines the shared graph store contract: idempotent bulk
// merge of entities and idempotent bulk creation of typed relationships.
package graph

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sarcastic555/politylink-crawler/internal/entity"
	"github.com/sarcastic555/politylink-crawler/internal/id/uuid"
)

var (
	// ErrNotFound is returned by Get when no node carries the id.
	ErrNotFound = errors.New("graph: node not found")
	// ErrMissingEndpoint is matched by *MissingEndpointError.
	ErrMissingEndpoint = errors.New("graph: link endpoint does not exist")
	// ErrUnsupportedLink is returned when no relationship type is defined for two kinds.
	ErrUnsupportedLink = errors.New("graph: unsupported relationship")
)

var validLabel = regexp.MustCompile(`^[A-Z][a-zA-Z0-9_]*$`)

// Reference is a Url node pointing at another node.
type Reference struct {
	ID    string
	URL   string
	Title string
}

// Node is a stored entity with the Url references that point at it.
type Node struct {
	ID    string
	Kind  entity.Kind
	Props map[string]any
	Refs  []Reference
}

// Store is the graph store used by the pipeline.
//
// BulkMerge and BulkLink are atomic per call: either every item in the batch
// is applied or none is and an error is returned.
type Store interface {
	Get(ctx context.Context, id string) (Node, error)
	BulkMerge(ctx context.Context, entities []entity.Entity) error
	BulkLink(ctx context.Context, fromIDs, toIDs []string) error
	Delete(ctx context.Context, id string) error
	// LatestMinutesURLs returns the references of the most recent Minutes
	// whose name contains nameContains.
	LatestMinutesURLs(ctx context.Context, nameContains string) ([]Reference, error)
	// ListCanonical returns every registry entry of the kind.
	ListCanonical(ctx context.Context, kind entity.Kind) ([]entity.Canonical, error)
	Close(ctx context.Context) error
}

// MissingEndpointError lists link endpoints absent from the store.
type MissingEndpointError struct {
	IDs []string
}

func (e *MissingEndpointError) Error() string {
	return fmt.Sprintf("%v: %s", ErrMissingEndpoint, strings.Join(e.IDs, ", "))
}

// Is reports whether target is ErrMissingEndpoint.
func (e *MissingEndpointError) Is(target error) bool {
	return target == ErrMissingEndpoint
}

type kindPair struct {
	from entity.Kind
	to   entity.Kind
}

var relationTypes = map[kindPair]string{
	{entity.KindURL, entity.KindMinutes}:       "REFERS_TO",
	{entity.KindURL, entity.KindActivity}:      "REFERS_TO",
	{entity.KindURL, entity.KindBill}:          "REFERS_TO",
	{entity.KindMinutes, entity.KindBill}:      "DISCUSSES",
	{entity.KindMinutes, entity.KindCommittee}: "HELD_BY",
	{entity.KindMember, entity.KindMinutes}:    "ATTENDED",
	{entity.KindActivity, entity.KindMember}:   "PERFORMED_BY",
	{entity.KindActivity, entity.KindBill}:     "CONCERNS",
	{entity.KindActivity, entity.KindMinutes}:  "OCCURRED_IN",
	{entity.KindSpeech, entity.KindMinutes}:    "PART_OF",
}

// RelationType returns the relationship type for an edge between two ids.
func RelationType(fromID, toID string) (string, error) {
	fromKind, err := uuid.KindOf(fromID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedLink, err)
	}
	toKind, err := uuid.KindOf(toID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedLink, err)
	}
	rel, ok := relationTypes[kindPair{entity.Kind(fromKind), entity.Kind(toKind)}]
	if !ok {
		return "", fmt.Errorf("%w: %s -> %s", ErrUnsupportedLink, fromKind, toKind)
	}
	return rel, nil
}

// KindOf returns the entity kind encoded in id.
func KindOf(id string) (entity.Kind, error) {
	kind, err := uuid.KindOf(id)
	if err != nil {
		return "", err
	}
	return entity.Kind(kind), nil
}

// ValidateLabel guards labels interpolated into queries.
func ValidateLabel(kind entity.Kind) error {
	if !validLabel.MatchString(string(kind)) {
		return fmt.Errorf("invalid label %q", kind)
	}
	return nil
}

// Edge is a validated (from, to, type) triple.
type Edge struct {
	From string
	To   string
	Type string
}

// PrepareEdges validates parallel id slices and resolves relationship types.
func PrepareEdges(fromIDs, toIDs []string) ([]Edge, error) {
	if len(fromIDs) != len(toIDs) {
		return nil, fmt.Errorf("graph: bulk link length mismatch: %d from ids, %d to ids", len(fromIDs), len(toIDs))
	}
	edges := make([]Edge, 0, len(fromIDs))
	for i := range fromIDs {
		rel, err := RelationType(fromIDs[i], toIDs[i])
		if err != nil {
			return nil, err
		}
		edges = append(edges, Edge{From: fromIDs[i], To: toIDs[i], Type: rel})
	}
	return edges, nil
}

// GroupByKind splits a batch into per-label groups, preserving order, and
// rejects entities without an id or with an invalid label.
func GroupByKind(entities []entity.Entity) (map[entity.Kind][]entity.Entity, []entity.Kind, error) {
	groups := make(map[entity.Kind][]entity.Entity)
	var order []entity.Kind
	for _, e := range entities {
		if e == nil {
			continue
		}
		if e.EntityID() == "" {
			return nil, nil, fmt.Errorf("graph: %s entity without id", e.EntityKind())
		}
		kind := e.EntityKind()
		if err := ValidateLabel(kind); err != nil {
			return nil, nil, err
		}
		if _, ok := groups[kind]; !ok {
			order = append(order, kind)
		}
		groups[kind] = append(groups[kind], e)
	}
	return groups, order, nil
}
