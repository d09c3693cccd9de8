// Package middleware provides the HTTP middleware of the control API.
//
// Middleware stack includes:
//   - CORS: local origins and browser extensions only
//   - RateLimit: per-IP token bucket, idle limiters swept after ten minutes
//   - RequestID: ULID request ids echoed in X-Request-ID
//   - Logger: one zap line per request
//
// Example Usage:
//
//	router.Use(middleware.RequestID(), middleware.Logger(logger))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
