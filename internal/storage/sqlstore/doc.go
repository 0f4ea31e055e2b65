// Package sqlstore implements service.Repository on SQLite through bun.
//
// The pure-Go modernc.org/sqlite driver keeps the panel a single static
// binary. Tables are created on open; there is no migration history yet.
package sqlstore
