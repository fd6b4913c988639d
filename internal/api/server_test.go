package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sarcastic555/politylink-crawler/internal/crawler"
	"github.com/sarcastic555/politylink-crawler/internal/entity"
	graphmem "github.com/sarcastic555/politylink-crawler/internal/graph/memory"
	"github.com/sarcastic555/politylink-crawler/internal/id/uuid"
	searchmem "github.com/sarcastic555/politylink-crawler/internal/search/memory"
	storage "github.com/sarcastic555/politylink-crawler/internal/storage/memory"
)

type fixture struct {
	server      *Server
	checkpoints *storage.CheckpointStore
	graph       *graphmem.Store
	index       *searchmem.Indexer
}

func newFixture(t *testing.T, ready ...Pinger) fixture {
	t.Helper()
	f := fixture{
		checkpoints: storage.NewCheckpointStore(),
		graph:       graphmem.NewStore(),
		index:       searchmem.NewIndexer(),
	}
	f.server = NewServer(f.checkpoints, f.graph, f.index, nil, ready...)
	return f
}

func (f fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthzAndRequestID(t *testing.T) {
	t.Parallel()

	rec := newFixture(t).get(t, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReadyzReportsBackendFailure(t *testing.T) {
	t.Parallel()

	require.Equal(t, http.StatusOK, newFixture(t).get(t, "/readyz").Code)

	broken := newFixture(t, pingerFunc(func(context.Context) error { return errors.New("neo4j down") }))
	require.Equal(t, http.StatusServiceUnavailable, broken.get(t, "/readyz").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.get(t, "/healthz")
	rec := f.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "politylink_http_requests_total")
}

func TestCheckpointEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.Equal(t, http.StatusNotFound, f.get(t, "/v1/checkpoints/reuters").Code)

	require.NoError(t, f.checkpoints.Save(context.Background(), "reuters", crawler.State{Cursor: 3, Emitted: 27}))
	rec := f.get(t, "/v1/checkpoints/reuters")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"source":"reuters","cursor":3,"failure_in_row":0,"emitted":27}`, rec.Body.String())
}

func TestNodeEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	billID := uuid.Derive("Bill", "地方自治法の一部を改正する法律案")
	require.NoError(t, f.graph.Seed(entity.Canonical{ID: billID, Kind: entity.KindBill, Name: "地方自治法の一部を改正する法律案"}))

	rec := f.get(t, "/v1/nodes/"+billID)
	require.Equal(t, http.StatusOK, rec.Code)
	var body nodeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, billID, body.ID)
	require.Equal(t, string(entity.KindBill), body.Kind)

	require.Equal(t, http.StatusNotFound, f.get(t, "/v1/nodes/"+uuid.Derive("Bill", "absent")).Code)
	require.Equal(t, http.StatusBadRequest, f.get(t, "/v1/nodes/not-an-id").Code)
}

func TestSearchEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.index.IndexNewsText(ctx, entity.NewsText{ID: "News:1", Title: "補正予算が成立", Body: "参議院本会議で可決"}))
	require.NoError(t, f.index.IndexNewsText(ctx, entity.NewsText{ID: "News:2", Title: "天気", Body: "晴れ"}))

	rec := f.get(t, "/v1/news/search?q=本会議")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Results []entity.NewsText `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Results, 1)
	require.Equal(t, "News:1", body.Results[0].ID)

	require.Equal(t, http.StatusBadRequest, f.get(t, "/v1/news/search").Code)
	require.Equal(t, http.StatusBadRequest, f.get(t, "/v1/news/search?q=x&size=-1").Code)
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.server.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }
