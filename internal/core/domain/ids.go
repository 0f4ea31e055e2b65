package domain

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID prefixes. Public ids use a hyphen.
const (
	UserIDPrefix    = "tlus-"
	ServerIDPrefix  = "tlsv-"
	NodeIDPrefix    = "tlnd-"
	APIKeyIDPrefix  = "tlak-"
	SessionIDPrefix = "tlss-"
)

// timeNow is a hook for testing.
var timeNow = time.Now

func currentTimeMillis() int64 {
	return timeNow().UnixMilli()
}

// NowMillis returns the current time in Unix milliseconds, the unit of
// every stored timestamp.
func NowMillis() int64 {
	return currentTimeMillis()
}

// NewID returns prefix followed by a lowercase ULID.
func NewID(prefix string) (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(timeNow()), entropy)
	if err != nil {
		return "", ErrInternalServer.WithCause(err)
	}
	return prefix + strings.ToLower(id.String()), nil
}

// HasIDPrefix reports whether id carries prefix and a parseable ULID.
func HasIDPrefix(id, prefix string) bool {
	if !strings.HasPrefix(id, prefix) {
		return false
	}
	_, err := ulid.Parse(strings.ToUpper(id[len(prefix):]))
	return err == nil
}
