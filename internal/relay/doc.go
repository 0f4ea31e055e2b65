// Package relay couples a caller websocket with a node agent websocket.
//
//   - frame.go: agent wire envelope and the stats filter
//   - connector.go: outbound agent dial and auth/subscribe handshake
//   - pair.go: one caller/agent pair and its state machine
//   - engine.go: runs pairs and tracks the live ones
//
// A pair moves Connecting -> Streaming -> Closed exactly once. The first
// close or error on either socket closes both. Pairs share nothing but the
// engine's registry.
package relay
