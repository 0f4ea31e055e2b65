// Package main provides the entry point for talorix-panel.
//
// The panel process serves the websocket relay between browsers or API
// clients and node agents:
//
//   - /console/{id} and /stats/{id} for logged-in users
//   - /api/ws/console/{id} and /api/ws/stats/{id} for API keys
//   - /auth/login and /auth/logout for browser sessions
//   - /health, /ready and /metrics for operators
//
// Usage:
//
//	talorix-panel [flags]
//	talorix-panel -config /etc/talorix/panel.yaml
//
// Every setting can be overridden from the environment with the TALORIX_
// prefix, for example TALORIX_SERVER_HTTP_ADDRESS=0.0.0.0:3000.
package main
