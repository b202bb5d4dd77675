// Package middleware provides the gin middleware stack of the registry API.
//
//   - CORS: gin-contrib/cors with the registry's auth and trace headers allowed
//   - RateLimit: per-client token buckets (x/time/rate), idle clients evicted
//   - Token/RequireToken: session token extraction from
//     "Authorization: Bearer <token>" or X-Auth-Token
//   - RequestID: X-Request-ID assignment and echo
package middleware
