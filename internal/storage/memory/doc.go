// Package memory provides an in-memory service.Repository.
//
// Records live in sharded concurrent maps and are cloned on the way in and
// out, so callers never share state with the store. Nothing survives a
// restart; the backend suits tests and throwaway panels.
package memory
