package middleware_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/trip-tracker/internal/middleware"
)

// TestMetrics_countsByRoutePattern verifies that requests are labelled with
// the chi route pattern, not the raw path.
func TestMetrics_countsByRoutePattern(t *testing.T) {
	m := middleware.NewMetrics()

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Post("/trips/{id}/toggle", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusSeeOther)
	})

	for _, id := range []string{"1", "2", "3"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/trips/"+id+"/toggle", nil))
	}

	expected := `
# HELP tripweb_http_requests_total HTTP requests by method, route pattern and status.
# TYPE tripweb_http_requests_total counter
tripweb_http_requests_total{method="POST",route="/trips/{id}/toggle",status="303"} 3
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "tripweb_http_requests_total"))
}

// TestMetrics_handlerExposesCollectors verifies the exposition endpoint.
func TestMetrics_handlerExposesCollectors(t *testing.T) {
	m := middleware.NewMetrics()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `tripweb_http_requests_total{method="GET",route="unmatched",status="200"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
