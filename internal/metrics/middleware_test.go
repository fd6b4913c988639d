package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	t.Parallel()

	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/checkpoints/{source}", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		r.Get("/nodes/{id}", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	})

	const checkpointRoute = "/v1/checkpoints/{source}"
	ok := httpRequestsTotal.WithLabelValues(http.MethodGet, checkpointRoute, "200")
	missing := httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/nodes/{id}", "404")
	okBefore, missingBefore := testutil.ToFloat64(ok), testutil.ToFloat64(missing)

	for _, path := range []string{
		"/v1/checkpoints/minutes:2020-06-01:2020-06-30",
		"/v1/checkpoints/sangiin_tv",
		"/v1/nodes/Bill:unknown",
	} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.InDelta(t, 2, testutil.ToFloat64(ok)-okBefore, 0)
	require.InDelta(t, 1, testutil.ToFloat64(missing)-missingBefore, 0)
	require.Zero(t, testutil.ToFloat64(
		httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/checkpoints/sangiin_tv", "200")))
	require.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))
}

func TestMiddlewareRecordsHandlerStatus(t *testing.T) {
	t.Parallel()

	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/news/search", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	bad := httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/news/search", "400")
	before := testutil.ToFloat64(bad)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/news/search", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.InDelta(t, 1, testutil.ToFloat64(bad)-before, 0)
}
