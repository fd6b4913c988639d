package elasticsearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sarcastic555/politylink-crawler/internal/entity"
)

// newServer fakes the subset of the Elasticsearch API the client uses.
func newServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{Addresses: []string{srv.URL}}, nil)
	require.NoError(t, err)
	return c
}

func TestIndexNewsText(t *testing.T) {
	t.Parallel()

	var (
		gotMethod  string
		gotPath    string
		gotRefresh string
		gotDoc     entity.NewsText
	)
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotRefresh = r.URL.Query().Get("refresh")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotDoc)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})

	doc := entity.NewsText{ID: "News:abc", Title: "見出し", Body: "本文"}
	require.NoError(t, c.IndexNewsText(context.Background(), doc))
	require.Equal(t, http.MethodPut, gotMethod)
	require.Equal(t, "/news_text/_doc/News:abc", gotPath)
	require.Equal(t, "false", gotRefresh)
	require.Equal(t, doc, gotDoc)
}

func TestIndexNewsTextError(t *testing.T) {
	t.Parallel()

	c := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"mapper_parsing_exception"}`))
	})

	err := c.IndexNewsText(context.Background(), entity.NewsText{ID: "News:x"})
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "mapper_parsing_exception"))
}

func TestSearch(t *testing.T) {
	t.Parallel()

	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/_search"))
		_, _ = w.Write([]byte(`{"hits":{"hits":[{"_source":{"id":"News:1","title":"国会","body":"審議"}}]}}`))
	})

	items, err := c.Search(context.Background(), "国会", 5)
	require.NoError(t, err)
	require.Equal(t, []entity.NewsText{{ID: "News:1", Title: "国会", Body: "審議"}}, items)
}

func TestNewRequiresAddresses(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil)
	require.Error(t, err)
}
