package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastprodman/coinsync/internal/breaker"
	"github.com/fastprodman/coinsync/internal/syncqueue"
)

func TestClient_Collectors(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := NewClient(reg)

	c.ObserveDelivery(syncqueue.EndpointLedger, syncqueue.OutcomeConfirmed, 20*time.Millisecond)
	c.ObserveDelivery(syncqueue.EndpointLedger, syncqueue.OutcomeRetry, time.Second)
	c.ObserveDelivery(syncqueue.EndpointLedger, syncqueue.OutcomeRetry, time.Second)

	assert.InDelta(t, 2, testutil.ToFloat64(c.deliveries.WithLabelValues(syncqueue.EndpointLedger, "retry")), 0)

	c.ObserveBreaker(syncqueue.EndpointLedger, breaker.StateClosed, breaker.StateOpen)
	assert.InDelta(t, 1, testutil.ToFloat64(c.breakerOpen.WithLabelValues(syncqueue.EndpointLedger)), 0)

	c.ObserveBreaker(syncqueue.EndpointLedger, breaker.StateHalfOpen, breaker.StateClosed)
	assert.InDelta(t, 0, testutil.ToFloat64(c.breakerOpen.WithLabelValues(syncqueue.EndpointLedger)), 0)

	c.SetSyncStatus(syncqueue.SyncStatus{Pending: 3, Failed: 1, LastSync: time.Unix(1700000000, 0)})
	assert.InDelta(t, 3, testutil.ToFloat64(c.pending), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.failed), 0)
	assert.InDelta(t, 1700000000, testutil.ToFloat64(c.lastSync), 0)
}

func TestHTTP_MiddlewareUsesRoutePattern(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	m := NewHTTP(reg)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/accounts/{accountId}/balance", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", Handler(reg))

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/accounts/"+id+"/balance", nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
	}

	assert.InDelta(t, 2, testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/accounts/{accountId}/balance", "418")), 0)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "coinsync_http_requests_total"))
}
