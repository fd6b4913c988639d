package neo4j

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sarcastic555/politylink-crawler/internal/entity"
	"github.com/sarcastic555/politylink-crawler/internal/graph"
	"github.com/sarcastic555/politylink-crawler/internal/id/uuid"
)

func TestMergeQueryUsesLabel(t *testing.T) {
	t.Parallel()

	q := mergeQuery(entity.KindMinutes)
	require.Contains(t, q, "MERGE (n:Minutes {id: row.id})")
	require.Contains(t, q, "SET n += row.props")
}

func TestGetQueryRejectsInvalidLabel(t *testing.T) {
	t.Parallel()

	_, err := getQuery(entity.Kind("Bad Label) DETACH DELETE n //"))
	require.Error(t, err)

	q, err := getQuery(entity.KindBill)
	require.NoError(t, err)
	require.Contains(t, q, "MATCH (n:Bill {id: $id})")
}

func TestMergeRowsConvertsDriverTypes(t *testing.T) {
	t.Parallel()

	s, err := entity.BuildSpeech(uuid.Derive("Minutes", "x"), 3)
	require.NoError(t, err)
	m, err := entity.BuildMinutes("参議院本会議", time.Date(2023, 5, 1, 0, 0, 0, 0, entity.JST))
	require.NoError(t, err)

	rows := mergeRows([]entity.Entity{s, m})
	require.Len(t, rows, 2)
	props := rows[0]["props"].(map[string]any)
	require.Equal(t, int64(3), props["order"])
	at := rows[1]["props"].(map[string]any)["start_date_time"].(time.Time)
	require.Equal(t, time.UTC, at.Location())
}

func TestLinkBatchesGroupByShape(t *testing.T) {
	t.Parallel()

	minutes := uuid.Derive("Minutes", "a")
	bill1 := uuid.Derive("Bill", "1")
	bill2 := uuid.Derive("Bill", "2")
	committee := uuid.Derive("Committee", "c")
	edges, err := graph.PrepareEdges(
		[]string{minutes, minutes, minutes},
		[]string{bill1, committee, bill2},
	)
	require.NoError(t, err)

	batches := linkBatches(edges)
	require.Len(t, batches, 2)
	require.Contains(t, batches[0].query, "MERGE (a)-[:DISCUSSES]->(b)")
	require.Len(t, batches[0].rows, 2)
	require.Contains(t, batches[1].query, "MERGE (a)-[:HELD_BY]->(b)")
}

func TestEndpointsByKindDeduplicates(t *testing.T) {
	t.Parallel()

	minutes := uuid.Derive("Minutes", "a")
	bill := uuid.Derive("Bill", "1")
	edges, err := graph.PrepareEdges([]string{minutes, minutes}, []string{bill, bill})
	require.NoError(t, err)

	got, err := endpointsByKind(edges)
	require.NoError(t, err)
	require.Equal(t, []string{minutes}, got[entity.KindMinutes])
	require.Equal(t, []string{bill}, got[entity.KindBill])
	require.Equal(t, []entity.Kind{entity.KindBill, entity.KindMinutes}, sortedKinds(got))
}

func TestDecodeRefs(t *testing.T) {
	t.Parallel()

	refs := decodeRefs([]any{
		map[string]any{"id": "Url:b", "url": "https://b", "title": "本文"},
		map[string]any{"id": "Url:a", "url": "https://a", "title": "審議中継"},
		"garbage",
	})
	require.Equal(t, []graph.Reference{
		{ID: "Url:a", URL: "https://a", Title: "審議中継"},
		{ID: "Url:b", URL: "https://b", Title: "本文"},
	}, refs)
	require.Nil(t, toStrings([]any{}))
	require.Equal(t, []string{"x"}, toStrings([]any{"x", 1}))
}

func TestConstraintStatements(t *testing.T) {
	t.Parallel()

	stmts := constraintStatements()
	require.Len(t, stmts, 8)
	require.Contains(t, stmts[3], "FOR (n:Url) REQUIRE n.id IS UNIQUE")
}
