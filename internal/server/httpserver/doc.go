// Package httpserver provides the panel's HTTP server.
//
// Routes are served by chi:
//
//   - Relay endpoints: /console/{id}, /stats/{id} (session cookie) and
//     /api/ws/console/{id}, /api/ws/stats/{id} (API key)
//   - Account endpoints: /auth/login, /auth/logout
//   - Health endpoints: /health, /ready, /metrics
//
// Middleware chain: RealIP (behind a proxy), RequestID, Recover, Audit,
// NetworkACL, CORS.
package httpserver
