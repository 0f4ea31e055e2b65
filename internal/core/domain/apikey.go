package domain

import (
	"strings"

	"github.com/Talorix/panel/pkg/token"
)

// KeyStatus defines the status of an API key.
type KeyStatus string

const (
	// KeyStatusActive indicates the key can be used.
	KeyStatusActive KeyStatus = "active"

	// KeyStatusRevoked indicates the key was revoked and must be rejected.
	KeyStatusRevoked KeyStatus = "revoked"
)

// APIKey is a programmatic credential. Only the digest of the raw token is
// kept; the token itself is shown once at creation.
type APIKey struct {
	// ID is the public identifier, tlak-{ulid}.
	ID string `json:"id"`

	// Name is a human-readable label.
	Name string `json:"name"`

	// UserID is the account that created the key.
	UserID string `json:"user_id"`

	// TokenHash is the hex SHA-256 digest of the raw token.
	TokenHash string `json:"token_hash"`

	// Visible is false for keys hidden from use.
	Visible bool `json:"visible"`

	// Status is active or revoked.
	Status KeyStatus `json:"status"`

	// CreatedAt is the creation timestamp (Unix MS).
	CreatedAt int64 `json:"created_at"`

	// LastUsed is the last authentication timestamp (Unix MS).
	LastUsed int64 `json:"last_used,omitempty"`
}

// NewAPIKey creates a key for userID and returns it with the raw token.
func NewAPIKey(name, userID string) (*APIKey, string, error) {
	id, err := NewID(APIKeyIDPrefix)
	if err != nil {
		return nil, "", err
	}
	raw, err := token.GenerateAPIKey()
	if err != nil {
		return nil, "", ErrInternalServer.WithCause(err)
	}
	k := &APIKey{
		ID:        id,
		Name:      name,
		UserID:    userID,
		TokenHash: token.Hash(raw),
		Visible:   true,
		Status:    KeyStatusActive,
		CreatedAt: currentTimeMillis(),
	}
	return k, raw, nil
}

// IsUsable reports whether the key may authenticate. Hidden and revoked
// keys are rejected.
func (k *APIKey) IsUsable() bool {
	return k.Visible && k.Status != KeyStatusRevoked
}

// Revoke marks the key revoked.
func (k *APIKey) Revoke() {
	k.Status = KeyStatusRevoked
}

// Touch records a successful authentication at ms. LastUsed never moves
// backwards.
func (k *APIKey) Touch(ms int64) {
	if ms > k.LastUsed {
		k.LastUsed = ms
	}
}

// Validate checks required fields.
func (k *APIKey) Validate() error {
	var violations []string
	if k.ID == "" {
		violations = append(violations, "id is required")
	}
	if len(k.TokenHash) != 64 {
		violations = append(violations, "token_hash must be a hex sha256 digest")
	}
	if k.Status != KeyStatusActive && k.Status != KeyStatusRevoked {
		violations = append(violations, "status must be active or revoked")
	}
	if len(violations) > 0 {
		return ErrValidation.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// Clone returns a copy of the key.
func (k *APIKey) Clone() *APIKey {
	if k == nil {
		return nil
	}
	c := *k
	return &c
}
