package admin

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/pullhook/internal/history"
	"github.com/mattjoyce/pullhook/internal/log"
	"github.com/mattjoyce/pullhook/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedQueue int

func (q fixedQueue) Waiting() int { return int(q) }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestSyncs_NewestFirst(t *testing.T) {
	ring := history.NewRing(2)
	ring.Record(history.Entry{ID: "a", Ref: "refs/heads/main", OK: true, Outcome: "ok"})
	ring.Record(history.Entry{ID: "b", Ref: "refs/heads/main", OK: false, Outcome: "timeout", Stderr: "timeout"})
	ring.Record(history.Entry{ID: "c", Ref: "refs/heads/main", OK: true, Outcome: "ok"})

	srv := New("127.0.0.1:0", nil, ring, nil, log.Discard())
	rec := get(t, srv.Handler(), "/syncs")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got []history.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, "timeout", got[1].Stderr)
}

func TestSyncs_EmptyIsArray(t *testing.T) {
	srv := New("127.0.0.1:0", nil, history.NewRing(5), nil, log.Discard())
	rec := get(t, srv.Handler(), "/syncs")
	assert.Equal(t, "[]\n", rec.Body.String())

	srv = New("127.0.0.1:0", nil, nil, nil, log.Discard())
	rec = get(t, srv.Handler(), "/syncs")
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestHealthz(t *testing.T) {
	srv := New("127.0.0.1:0", nil, nil, fixedQueue(3), log.Discard())
	rec := get(t, srv.Handler(), "/healthz")

	require.Equal(t, http.StatusOK, rec.Code)
	var got HealthzResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, 3, got.SyncsWaiting)
	assert.GreaterOrEqual(t, got.UptimeSeconds, int64(0))
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.SignatureFailed()

	srv := New("127.0.0.1:0", m, nil, nil, log.Discard())
	rec := get(t, srv.Handler(), "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pullhook_signature_failures_total 1")

	noMetrics := New("127.0.0.1:0", nil, nil, nil, log.Discard())
	assert.Equal(t, http.StatusNotFound, get(t, noMetrics.Handler(), "/metrics").Code)
}

func TestServe_Lifecycle(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New(ln.Addr().String(), metrics.New(), history.NewRing(1), nil, log.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, ln) }()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	assert.True(t, strings.Contains(body, "go_goroutines"))

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(6 * time.Second):
		t.Fatal("admin server did not shut down")
	}
}
