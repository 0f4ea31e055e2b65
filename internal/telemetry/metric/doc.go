// Package metric owns the Prometheus registry and the relay metrics.
//
//   - prometheus.go: registry with Go and process collectors, /metrics handler
//   - relay.go: relay pair, frame and rejection metrics
//
// All metrics live under the "talorix" namespace.
package metric
