package token

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
)

const (
	// DefaultLength is the default token length in bytes.
	DefaultLength = 32

	// APIKeyPrefix marks raw API key tokens so they can be spotted in logs.
	APIKeyPrefix = "tlx_"
)

// Generate returns a base64url encoded random token of DefaultLength bytes.
func Generate() (string, error) {
	return GenerateWithLength(DefaultLength)
}

// GenerateWithLength returns a base64url encoded random token of length bytes.
func GenerateWithLength(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateAPIKey returns a new raw API key token.
func GenerateAPIKey() (string, error) {
	body, err := Generate()
	if err != nil {
		return "", err
	}
	return APIKeyPrefix + body, nil
}

// IsAPIKey reports whether s has the shape of a raw API key token.
func IsAPIKey(s string) bool {
	return strings.HasPrefix(s, APIKeyPrefix) && len(s) > len(APIKeyPrefix)
}
