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
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Post("/v1/runs/{id}/analyze", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	accepted := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "202"))
	before := testutil.CollectAndCount(httpRequestDurationSeconds)

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/runs/"+id+"/analyze", nil))
		require.Equal(t, http.StatusAccepted, rec.Code)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, accepted+2, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "202")))

	// Both run IDs collapse into one route series; raw paths would add three.
	require.LessOrEqual(t, testutil.CollectAndCount(httpRequestDurationSeconds)-before, 2)
}

func TestMiddlewareWithoutRouter(t *testing.T) {
	Init()
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	h = Middleware(h)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.GreaterOrEqual(t, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "404")), 1.0)
}
