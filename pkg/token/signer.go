package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

// ErrBadSignature is returned when a signed value fails verification.
var ErrBadSignature = errors.New("token: bad signature")

// Signer signs and verifies short values such as session ids.
type Signer struct {
	secret []byte
}

// NewSigner returns a Signer keyed with secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign returns value followed by a dot and its MAC.
func (s *Signer) Sign(value string) string {
	return value + "." + s.mac(value)
}

// Unsign verifies signed and returns the original value.
func (s *Signer) Unsign(signed string) (string, error) {
	i := strings.LastIndexByte(signed, '.')
	if i <= 0 || i == len(signed)-1 {
		return "", ErrBadSignature
	}
	value, sig := signed[:i], signed[i+1:]
	if !hmac.Equal([]byte(sig), []byte(s.mac(value))) {
		return "", ErrBadSignature
	}
	return value, nil
}

func (s *Signer) mac(value string) string {
	m := hmac.New(sha256.New, s.secret)
	m.Write([]byte(value))
	return base64.RawURLEncoding.EncodeToString(m.Sum(nil))
}
