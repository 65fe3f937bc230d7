package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Recording(t *testing.T) {
	m := New()

	m.ObserveRequest("push", http.StatusOK)
	m.ObserveRequest("push", http.StatusOK)
	m.ObserveRequest("ping", http.StatusOK)
	m.ObserveRequest("push", http.StatusInternalServerError)
	m.SignatureFailed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("push", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("ping", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("push", "500")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.signatureFailures))

	m.SyncStarted()
	m.SyncStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.syncInProgress))
	m.SyncFinished("ok", time.Second)

	m.SyncFinished("ok", 1500*time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.syncInProgress))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.syncCount.WithLabelValues("ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.syncDuration))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("push", 200)
		m.SignatureFailed()
		m.SyncStarted()
		m.SyncFinished("timeout", time.Second)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.SyncFinished("timeout", 60*time.Second)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `pullhook_sync_total{outcome="timeout"} 1`)
	assert.Contains(t, string(body), "pullhook_sync_duration_seconds")
	assert.Contains(t, string(body), "go_goroutines")
}
