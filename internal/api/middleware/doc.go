// Package middleware provides the HTTP middleware of the spectrum surface.
//
// Middleware stack includes:
//   - CORS: Cross-origin resource sharing with configurable origins
//   - RateLimit: Per-IP token bucket rate limiting for polling endpoints
//   - GlobalRateLimit: One token bucket shared by every client, used to
//     admit WebSocket streams
//
// Rate Limiting:
//   - Per-IP limiters are dropped after five idle minutes
//   - Rejected requests get 429 with a JSON error body
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins)))
//	api.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
//	router.GET("/stream", middleware.GlobalRateLimit(streamLimit), handlers.Stream)
package middleware
