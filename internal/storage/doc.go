// Package storage persists panel accounts, topology and sessions.
//
// Three backends implement service.Repository:
//
//   - memory: sharded in-process maps (package memory)
//   - badger: JSON records in an embedded Badger KV store (Store)
//   - sqlite: tables managed through bun (package sqlstore)
//
// Open picks one from configuration. The badger backend writes sessions
// with a TTL matching their expiry; the others are swept by
// RunSessionPurge.
package storage
