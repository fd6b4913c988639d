// Package neo4j implements the graph store on Neo4j over bolt.
package neo4j

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/sarcastic555/politylink-crawler/internal/entity"
	"github.com/sarcastic555/politylink-crawler/internal/graph"
)

// Config holds driver settings.
type Config struct {
	URI         string
	User        string
	Password    string
	Database    string
	MaxPoolSize int
	Timeout     time.Duration
}

// Store implements graph.Store with one managed transaction per bulk call.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
}

var _ graph.Store = (*Store)(nil)

// New connects to Neo4j and verifies connectivity.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.URI == "" {
		return nil, errors.New("neo4j uri is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""), func(c *neo4j.Config) {
		if cfg.MaxPoolSize > 0 {
			c.MaxConnectionPoolSize = cfg.MaxPoolSize
		}
		c.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, fmt.Errorf("init neo4j driver: %w", err)
	}
	verifyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	s := &Store{driver: driver, database: cfg.Database, logger: logger.Named("neo4j")}
	s.ensureConstraints(ctx)
	return s, nil
}

// ensureConstraints creates per-label id uniqueness. Failures are logged only.
func (s *Store) ensureConstraints(ctx context.Context) {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)
	for _, q := range constraintStatements() {
		res, err := session.Run(ctx, q, nil)
		if err != nil {
			s.logger.Warn("schema init failed", zap.String("statement", q), zap.Error(err))
			continue
		}
		_, _ = res.Consume(ctx)
	}
}

func (s *Store) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: s.database})
}

// Get returns a node and the Url references pointing at it.
func (s *Store) Get(ctx context.Context, id string) (graph.Node, error) {
	kind, err := graph.KindOf(id)
	if err != nil {
		return graph.Node{}, err
	}
	query, err := getQuery(kind)
	if err != nil {
		return graph.Node{}, err
	}
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			if err := res.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %s", graph.ErrNotFound, id)
		}
		rec := res.Record()
		n := graph.Node{ID: id, Kind: kind}
		if props, ok := rec.Get("props"); ok {
			n.Props, _ = props.(map[string]any)
		}
		if refs, ok := rec.Get("refs"); ok {
			n.Refs = decodeRefs(refs)
		}
		return n, nil
	})
	if err != nil {
		return graph.Node{}, err
	}
	return out.(graph.Node), nil
}

// BulkMerge upserts the batch inside one write transaction.
func (s *Store) BulkMerge(ctx context.Context, entities []entity.Entity) error {
	groups, order, err := graph.GroupByKind(entities)
	if err != nil {
		return err
	}
	if len(order) == 0 {
		return nil
	}
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, kind := range order {
			res, err := tx.Run(ctx, mergeQuery(kind), map[string]any{"rows": mergeRows(groups[kind])})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("bulk merge %d entities: %w", len(entities), err)
	}
	return nil
}

// BulkLink merges relationships inside one write transaction after
// confirming every endpoint exists.
func (s *Store) BulkLink(ctx context.Context, fromIDs, toIDs []string) error {
	edges, err := graph.PrepareEdges(fromIDs, toIDs)
	if err != nil {
		return err
	}
	if len(edges) == 0 {
		return nil
	}
	byKind, err := endpointsByKind(edges)
	if err != nil {
		return err
	}
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		var missing []string
		for _, kind := range sortedKinds(byKind) {
			res, err := tx.Run(ctx, missingQuery(kind), map[string]any{"ids": byKind[kind]})
			if err != nil {
				return nil, err
			}
			for res.Next(ctx) {
				if id, ok := res.Record().Get("id"); ok {
					if str, ok := id.(string); ok {
						missing = append(missing, str)
					}
				}
			}
			if err := res.Err(); err != nil {
				return nil, err
			}
		}
		if len(missing) > 0 {
			return nil, &graph.MissingEndpointError{IDs: missing}
		}
		for _, batch := range linkBatches(edges) {
			res, err := tx.Run(ctx, batch.query, map[string]any{"rows": batch.rows})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("bulk link %d edges: %w", len(edges), err)
	}
	return nil
}

// Delete detaches and removes a node.
func (s *Store) Delete(ctx context.Context, id string) error {
	kind, err := graph.KindOf(id)
	if err != nil {
		return err
	}
	if err := graph.ValidateLabel(kind); err != nil {
		return err
	}
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)
	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, fmt.Sprintf("MATCH (n:%s {id: $id}) DETACH DELETE n", kind), map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

const latestMinutesQuery = `
MATCH (m:Minutes)
WHERE m.name CONTAINS $name
WITH m ORDER BY m.start_date_time DESC LIMIT 1
MATCH (u:Url)-[:REFERS_TO]->(m)
RETURN u.id AS id, u.url AS url, u.title AS title
ORDER BY id`

// LatestMinutesURLs returns references of the newest Minutes matching the name.
func (s *Store) LatestMinutesURLs(ctx context.Context, nameContains string) ([]graph.Reference, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)
	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, latestMinutesQuery, map[string]any{"name": nameContains})
		if err != nil {
			return nil, err
		}
		var refs []graph.Reference
		for res.Next(ctx) {
			rec := res.Record()
			refs = append(refs, graph.Reference{
				ID:    recordString(rec, "id"),
				URL:   recordString(rec, "url"),
				Title: recordString(rec, "title"),
			})
		}
		return refs, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("query latest minutes %q: %w", nameContains, err)
	}
	refs, _ := out.([]graph.Reference)
	return refs, nil
}

// ListCanonical returns every node of the label as a registry entry.
func (s *Store) ListCanonical(ctx context.Context, kind entity.Kind) ([]entity.Canonical, error) {
	if err := graph.ValidateLabel(kind); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("MATCH (n:%s) RETURN n.id AS id, n.name AS name, coalesce(n.aliases, []) AS aliases ORDER BY id", kind)
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)
	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, nil)
		if err != nil {
			return nil, err
		}
		var list []entity.Canonical
		for res.Next(ctx) {
			rec := res.Record()
			c := entity.Canonical{
				ID:   recordString(rec, "id"),
				Kind: kind,
				Name: recordString(rec, "name"),
			}
			if raw, ok := rec.Get("aliases"); ok {
				c.Aliases = toStrings(raw)
			}
			list = append(list, c)
		}
		return list, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	list, _ := out.([]entity.Canonical)
	return list, nil
}

// Ping verifies the driver can reach the server.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("neo4j connectivity: %w", err)
	}
	return nil
}

// Close releases the driver.
func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}

func constraintStatements() []string {
	kinds := []entity.Kind{
		entity.KindMinutes, entity.KindActivity, entity.KindSpeech, entity.KindURL,
		entity.KindNews, entity.KindBill, entity.KindCommittee, entity.KindMember,
	}
	stmts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		stmts = append(stmts, fmt.Sprintf(
			"CREATE CONSTRAINT %s_id_unique IF NOT EXISTS FOR (n:%s) REQUIRE n.id IS UNIQUE",
			strings.ToLower(string(k)), k))
	}
	return stmts
}

func getQuery(kind entity.Kind) (string, error) {
	if err := graph.ValidateLabel(kind); err != nil {
		return "", err
	}
	return fmt.Sprintf(`
MATCH (n:%s {id: $id})
OPTIONAL MATCH (u:Url)-[:REFERS_TO]->(n)
RETURN properties(n) AS props,
       [r IN collect(u) WHERE r IS NOT NULL | {id: r.id, url: r.url, title: r.title}] AS refs`, kind), nil
}

func mergeQuery(kind entity.Kind) string {
	return fmt.Sprintf("UNWIND $rows AS row\nMERGE (n:%s {id: row.id})\nSET n += row.props", kind)
}

func mergeRows(entities []entity.Entity) []map[string]any {
	rows := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		rows = append(rows, map[string]any{"id": e.EntityID(), "props": toDriverProps(e.Properties())})
	}
	return rows
}

// toDriverProps converts values into types the bolt encoder accepts.
func toDriverProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		switch val := v.(type) {
		case int:
			out[k] = int64(val)
		case time.Time:
			out[k] = val.UTC()
		default:
			out[k] = v
		}
	}
	return out
}

func missingQuery(kind entity.Kind) string {
	return fmt.Sprintf("UNWIND $ids AS id\nOPTIONAL MATCH (n:%s {id: id})\nWITH id, n WHERE n IS NULL\nRETURN id", kind)
}

func endpointsByKind(edges []graph.Edge) (map[entity.Kind][]string, error) {
	out := make(map[entity.Kind][]string)
	seen := make(map[string]struct{})
	for _, e := range edges {
		for _, id := range []string{e.From, e.To} {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			kind, err := graph.KindOf(id)
			if err != nil {
				return nil, err
			}
			if err := graph.ValidateLabel(kind); err != nil {
				return nil, err
			}
			out[kind] = append(out[kind], id)
		}
	}
	return out, nil
}

func sortedKinds(m map[entity.Kind][]string) []entity.Kind {
	kinds := make([]entity.Kind, 0, len(m))
	for k := range m {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

type linkBatch struct {
	query string
	rows  []map[string]any
}

// linkBatches groups edges by (from label, type, to label) so each statement
// can use indexed label lookups.
func linkBatches(edges []graph.Edge) []linkBatch {
	index := make(map[string]int)
	var batches []linkBatch
	for _, e := range edges {
		fromKind, _ := graph.KindOf(e.From)
		toKind, _ := graph.KindOf(e.To)
		query := fmt.Sprintf(
			"UNWIND $rows AS row\nMATCH (a:%s {id: row.from})\nMATCH (b:%s {id: row.to})\nMERGE (a)-[:%s]->(b)",
			fromKind, toKind, e.Type)
		i, ok := index[query]
		if !ok {
			i = len(batches)
			index[query] = i
			batches = append(batches, linkBatch{query: query})
		}
		batches[i].rows = append(batches[i].rows, map[string]any{"from": e.From, "to": e.To})
	}
	return batches
}

func decodeRefs(raw any) []graph.Reference {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	refs := make([]graph.Reference, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		ref := graph.Reference{}
		ref.ID, _ = m["id"].(string)
		ref.URL, _ = m["url"].(string)
		ref.Title, _ = m["title"].(string)
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs
}

func recordString(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func toStrings(raw any) []string {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
