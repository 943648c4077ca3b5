package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triage-ai/graphql-mcp/internal/toolerr"
)

func TestObserveInvocation(t *testing.T) {
	m := New()
	m.ObserveInvocation("search", "", 20*time.Millisecond)
	m.ObserveInvocation("search", toolerr.KindBackend, time.Millisecond)
	m.ObserveInvocation("search", toolerr.KindBackend, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.invocationsTotal.WithLabelValues("search", "success", "")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.invocationsTotal.WithLabelValues("search", "error", "BackendError")))
}

func TestObserveBackendAndPages(t *testing.T) {
	m := New()
	m.ObserveBackendCall("products", "", time.Millisecond)
	m.ObserveBackendCall("products", toolerr.KindTransport, time.Millisecond)
	m.ObservePageFetch("products")
	m.ObserveCursorLookup("products", true)
	m.ObserveCursorLookup("products", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.backendCallsTotal.WithLabelValues("products", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.backendCallsTotal.WithLabelValues("products", "TransportError")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pageFetchesTotal.WithLabelValues("products")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cursorLookups.WithLabelValues("products", "hit")))
}

func TestHandler_ExposesCacheGauge(t *testing.T) {
	m := New()
	m.RegisterCursorCacheSize(func() int { return 7 })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "graphql_mcp_cursor_cache_entries 7"), "gauge missing from exposition")
}
