// Package cmap provides a concurrent map sharded by key hash.
//
// Each shard has its own RWMutex, so readers and writers on different
// shards never contend. Shards are picked with murmur3 over the key's
// string form.
//
//	m := cmap.New[string, *Pair]()
//	m.Set(id, pair)
//	p, ok := m.Pop(id)
package cmap
