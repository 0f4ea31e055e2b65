// Package service holds the panel's domain services.
//
// Services depend on narrow store interfaces so any storage backend (or a
// test fake) can sit behind them:
//
//   - Authenticator: resolves a caller Identity from a session cookie or
//     an API key header
//   - AccessResolver: looks up the target server and node and applies an
//     AccessPolicy
//   - AccountService: password login and logout for browser sessions
//   - RateLimiterRegistry: per-key token buckets
//
// Every service is safe for concurrent use.
package service
