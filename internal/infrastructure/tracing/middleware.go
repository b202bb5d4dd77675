package tracing

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
)

// HTTPMiddleware creates Gin middleware for HTTP tracing
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID, parentID := ExtractTraceContext(map[string]string{
			TraceHeader: c.GetHeader(TraceHeader),
			SpanHeader:  c.GetHeader(SpanHeader),
		})
		ctx := WithTraceContext(c.Request.Context(), traceID, parentID)

		name := c.FullPath()
		if name == "" {
			name = "unmatched"
		}
		span, ctx := tracer.StartSpan(ctx, c.Request.Method+" "+name)
		span.SetTag("http.method", c.Request.Method)
		span.SetTag("http.path", c.Request.URL.Path)

		c.Request = c.Request.WithContext(ctx)
		c.Header(TraceHeader, string(span.TraceID))
		c.Header(SpanHeader, string(span.SpanID))

		c.Next()

		span.SetStatus(c.Writer.Status())
		span.SetTag("http.status", strconv.Itoa(c.Writer.Status()))
		if last := c.Errors.Last(); last != nil {
			span.SetError(last.Err)
		}

		span.Finish()
		tracer.Submit(span)
	}
}

// RestyPropagator forwards the trace carried by each request context to
// the remote end.
func RestyPropagator() resty.RequestMiddleware {
	return func(_ *resty.Client, r *resty.Request) error {
		headers := make(map[string]string, 2)
		InjectTraceContext(r.Context(), headers)
		for k, v := range headers {
			r.SetHeader(k, v)
		}
		return nil
	}
}
