// Package main is the entry point for the semantic service registry.
//
// The server lets publishers log in, register providers and services, and
// maintain a match index of Request Functional Profiles (RFPs) against the
// semantic profiles of registered services.
//
// Startup:
//
//	seed documents → index snapshot → index refresh → HTTP
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Production mode
//	./server -port 8000 -users users.toml -snapshot index.json.zst
//
//	# Development mode (colored logs, debug level)
//	./server -dev -seed ./seed
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown, then the index snapshot is saved
package main
