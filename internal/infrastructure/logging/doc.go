// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components receive a *zap.Logger obtained through Named so every line
// carries the component that emitted it:
//
//	logger := logging.NewDefault()
//	idx, _ := index.New(store, index.WithLogger(logger.Named("index")))
//	router.Use(logging.RequestLogger(logger.Named("http")))
package logging
