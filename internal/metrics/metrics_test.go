package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetrics_IsNoop(t *testing.T) {
	var m *Metrics
	m.RelayConnected()
	m.RelayDisconnected()
	m.RelayRequest("getLocalStorage", true)
	m.SyncRun(true, 1, 0, 0.1)
	m.KeyLookup("found")
	m.BusRequest("HEARTBEAT", true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCounters(t *testing.T) {
	m := New()

	m.RelayConnected()
	m.RelayConnected()
	m.RelayDisconnected()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.relaysConnected))

	m.RelayRequest("getLocalStorage", true)
	m.RelayRequest("getLocalStorage", false)
	m.RelayRequest("getLocalStorage", false)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.relayRequests.WithLabelValues("getLocalStorage", "error")))

	m.SyncRun(true, 5, 1, 0.2)
	assert.Equal(t, 5.0, testutil.ToFloat64(m.syncedRecords))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.syncErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.syncRuns.WithLabelValues("ok")))
}

func TestHandler_ServesTextFormat(t *testing.T) {
	m := New()
	m.KeyLookup("isolation")
	m.BusRequest("GET_KEYS", false)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := string(body)
	assert.True(t, strings.Contains(out, `matakeeper_key_lookups_total{result="isolation"} 1`), out)
	assert.True(t, strings.Contains(out, `matakeeper_bus_requests_total{result="error",type="GET_KEYS"} 1`), out)
}
