// Package handler provides HTTP request handlers for the panel.
//
//   - relay.go: websocket relay endpoints (console and stats)
//   - auth.go: password login and logout
//   - health.go: health and readiness checks
//
// JSON handlers answer with the Response envelope. Relay endpoints
// upgrade first and report every failure as a websocket close frame.
package handler
