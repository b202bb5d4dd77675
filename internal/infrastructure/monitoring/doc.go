/*
Package monitoring provides Prometheus metrics for the registry.

Each Metrics value owns a private prometheus.Registry, so tests and
embedded instances never collide on the default registerer. A Metrics
value satisfies the recorder interfaces of the match index and the
session authority, and can wrap any profile source:

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	source := monitoring.InstrumentSource(store, metrics)
	idx, _ := index.New(source, index.WithRecorder(metrics))
*/
package monitoring
