/*
Package tracing provides lightweight request tracing.

Trace context travels in the X-Trace-ID and X-Span-ID headers. Incoming
requests continue the caller's trace, outgoing profile source calls
propagate it, and finished spans are logged asynchronously through zap.

	tracer := tracing.New("registry", logger)
	defer tracer.Close()
	router.Use(tracing.HTTPMiddleware(tracer))

	client.OnBeforeRequest(tracing.RestyPropagator())
*/
package tracing
