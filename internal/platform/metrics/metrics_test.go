package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCounters(t *testing.T) {
	t.Parallel()

	r := New("license")
	r.ObserveRequest(http.MethodPost, "/api/v1/licenses/validate", http.StatusCreated, 12*time.Millisecond)
	r.ObserveRequest(http.MethodPost, "/api/v1/licenses/validate", http.StatusCreated, 8*time.Millisecond)
	r.ActivationResult("activated")
	r.ActivationResult("seat_limit_exceeded")
	r.AuditEntry("license_activated")
	r.OutboxBatch(3, 1, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.httpRequests.WithLabelValues("POST", "/api/v1/licenses/validate", "201")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.httpStatusClass.WithLabelValues("2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.activations.WithLabelValues("seat_limit_exceeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.auditEntries.WithLabelValues("license_activated")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.outboxProcessed.WithLabelValues("published")))
}

func TestHandlerExposesNamespacedSeries(t *testing.T) {
	t.Parallel()

	r := New("license")
	r.ActivationResult("active")

	rr := httptest.NewRecorder()
	r.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), `license_activation_results_total{result="active"} 1`))
}
