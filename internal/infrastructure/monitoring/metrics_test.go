package monitoring

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/fault"
	sharedtest "github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/testutil"
)

func TestIndependentRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.ObserveIndexOp("add_rfp", StatusOK, time.Millisecond, 3)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.IndexOps.WithLabelValues("add_rfp", StatusOK)))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.IndexOps.WithLabelValues("add_rfp", StatusOK)))
}

func TestIndexAndSessionRecorders(t *testing.T) {
	m := NewMetrics()

	m.ObserveIndexOp("add_rfp", StatusOK, time.Millisecond, 2)
	m.ObserveIndexOp("refresh", "communication", time.Second, 0)
	m.SetIndexSize(4, 9)
	m.RecordSessionOp("issue", StatusOK)
	m.RecordSessionOp("issue", "auth")
	m.SetActiveSessions(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexOps.WithLabelValues("refresh", "communication")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.IndexRFPs))
	assert.Equal(t, 9.0, testutil.ToFloat64(m.IndexPairs))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionOps.WithLabelValues("issue", "auth")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SessionsActive))

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.IndexOps)
	assert.Equal(t, int64(1), snap.IndexFailures)
	assert.Equal(t, int64(3), snap.ActiveSessions)
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/rfps/:uri", func(c *gin.Context) { c.String(http.StatusNotFound, "missing") })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/rfps/a", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/rfps/b", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/rfps/:uri", "404")))
	assert.Equal(t, int64(2), m.Snapshot().TotalErrors)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body, _ := io.ReadAll(w.Body)
	assert.Contains(t, string(body), "registry_http_requests_total")
	assert.Contains(t, string(body), "registry_uptime_seconds")
}

func TestInstrumentSource(t *testing.T) {
	m := NewMetrics()
	src := sharedtest.NewStaticProfileSource(
		sharedtest.CreateTestProfile("svc-1", "urn:cat", nil, nil),
	)
	src.FailFetch("svc-2", errors.New("down"))

	wrapped := InstrumentSource(src, m)
	keys, err := wrapped.ListServiceKeys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"svc-1"}, keys)

	_, err = wrapped.ServiceProfile(context.Background(), "svc-1")
	require.NoError(t, err)
	_, err = wrapped.ServiceProfile(context.Background(), "svc-2")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceCalls.WithLabelValues("list_service_keys", StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceCalls.WithLabelValues("service_profile", StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceCalls.WithLabelValues("service_profile", "internal")))
}

func TestStatus(t *testing.T) {
	assert.Equal(t, StatusOK, Status(nil))
	assert.Equal(t, "no_match_found", Status(fault.New(fault.NoMatchFound, "op", "gone")))
}

func TestSnapshotIndexQuantiles(t *testing.T) {
	m := NewMetrics()
	assert.Zero(t, m.Snapshot().IndexP95MS)

	for i := 10; i >= 1; i-- {
		m.ObserveIndexOp("add_rfp", StatusOK, time.Duration(i)*time.Millisecond, 1)
	}
	snap := m.Snapshot()
	assert.InDelta(t, 5.0, snap.IndexP50MS, 1e-9)
	assert.InDelta(t, 10.0, snap.IndexP95MS, 1e-9)

	for i := 0; i < latencyWindow; i++ {
		m.ObserveIndexOp("refresh", StatusOK, time.Millisecond, 0)
	}
	snap = m.Snapshot()
	assert.InDelta(t, 1.0, snap.IndexP95MS, 1e-9)
	assert.Len(t, m.recent, latencyWindow)
}
