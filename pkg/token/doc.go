// Package token provides random token generation, digest helpers and
// signed cookie values.
//
// API key tokens look like tlx_<43 chars of base64url>. Only the hex
// SHA-256 digest of a token is ever stored; lookups compare digests.
//
// Session cookies carry "<session id>.<base64url HMAC-SHA256>" so a
// tampered id is rejected before any store lookup.
package token
