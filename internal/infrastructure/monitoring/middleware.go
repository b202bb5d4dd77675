package monitoring

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/fault"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/types"
)

// StatusOK labels a successful operation
const StatusOK = "ok"

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		reqSize := c.Request.ContentLength
		if reqSize < 0 {
			reqSize = 0
		}

		c.Next()

		// route template keeps label cardinality bounded
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		respSize := int64(c.Writer.Size())
		if respSize < 0 {
			respSize = 0
		}

		metrics.RecordHTTPRequest(method, path, status, time.Since(start), reqSize, respSize)
	}
}

// Status maps an error to a metric label
func Status(err error) string {
	if err == nil {
		return StatusOK
	}
	return fault.KindOf(err).String()
}

// Timer measures operation duration
type Timer struct {
	start   time.Time
	metrics *Metrics
	method  string
}

// NewTimer creates a new profile source timer
func NewTimer(metrics *Metrics, method string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		method:  method,
	}
}

// Stop stops the timer and records the duration
func (t *Timer) Stop(err error) {
	t.metrics.RecordSourceCall(t.method, Status(err), time.Since(t.start))
}

// ProfileSource is the subset of a profile backend that can be instrumented
type ProfileSource interface {
	ListServiceKeys(ctx context.Context) ([]string, error)
	ServiceProfile(ctx context.Context, serviceKey string) (types.ServiceProfile, error)
}

type instrumentedSource struct {
	next    ProfileSource
	metrics *Metrics
}

// InstrumentSource wraps a profile source so every call is timed and counted
func InstrumentSource(src ProfileSource, metrics *Metrics) ProfileSource {
	return &instrumentedSource{next: src, metrics: metrics}
}

func (s *instrumentedSource) ListServiceKeys(ctx context.Context) ([]string, error) {
	timer := NewTimer(s.metrics, "list_service_keys")
	keys, err := s.next.ListServiceKeys(ctx)
	timer.Stop(err)
	return keys, err
}

func (s *instrumentedSource) ServiceProfile(ctx context.Context, serviceKey string) (types.ServiceProfile, error) {
	timer := NewTimer(s.metrics, "service_profile")
	p, err := s.next.ServiceProfile(ctx, serviceKey)
	timer.Stop(err)
	return p, err
}
