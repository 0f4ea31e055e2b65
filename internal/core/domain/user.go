package domain

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/mail"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for password hashing.
const (
	Argon2Memory      uint32 = 16384 // KB
	Argon2Time        uint32 = 2
	Argon2Parallelism uint8  = 2
	Argon2KeyLen      uint32 = 32
	Argon2SaltLen            = 16
)

// ServerGrant gives a subuser access to a server it does not own.
type ServerGrant struct {
	ID string `json:"id"`
}

// User is a panel account.
type User struct {
	ID           string        `json:"id"`
	Email        string        `json:"email"`
	Username     string        `json:"username"`
	PasswordHash string        `json:"password_hash,omitempty"`
	Servers      []ServerGrant `json:"servers,omitempty"`
	CreatedAt    int64         `json:"created_at"`
	Version      uint64        `json:"version"`
}

// NewUser creates a user with a generated id and a hashed password.
func NewUser(email, username, password string) (*User, error) {
	id, err := NewID(UserIDPrefix)
	if err != nil {
		return nil, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, ErrInternalServer.WithCause(err)
	}
	u := &User{
		ID:           id,
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    currentTimeMillis(),
		Version:      1,
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

// HasGrant reports whether the user holds a subuser grant for serverID.
func (u *User) HasGrant(serverID string) bool {
	for _, g := range u.Servers {
		if g.ID == serverID {
			return true
		}
	}
	return false
}

// Grant adds a subuser grant. Granting twice is a no-op.
func (u *User) Grant(serverID string) {
	if u.HasGrant(serverID) {
		return
	}
	u.Servers = append(u.Servers, ServerGrant{ID: serverID})
	u.Version++
}

// Revoke removes a subuser grant if present.
func (u *User) Revoke(serverID string) {
	for i, g := range u.Servers {
		if g.ID == serverID {
			u.Servers = append(u.Servers[:i], u.Servers[i+1:]...)
			u.Version++
			return
		}
	}
}

// CheckPassword verifies password against the stored hash.
func (u *User) CheckPassword(password string) bool {
	return VerifyPassword(password, u.PasswordHash)
}

// Validate checks required fields.
func (u *User) Validate() error {
	var violations []string
	if u.ID == "" {
		violations = append(violations, "id is required")
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		violations = append(violations, "email is invalid")
	}
	if u.PasswordHash == "" {
		violations = append(violations, "password is required")
	}
	if len(violations) > 0 {
		return ErrValidation.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Servers != nil {
		c.Servers = make([]ServerGrant, len(u.Servers))
		copy(c.Servers, u.Servers)
	}
	return &c
}

// HashPassword returns an encoded Argon2id hash of password:
// $argon2id$v=19$m=16384,t=2,p=2$<salt>$<hash>
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("empty password")
	}
	salt := make([]byte, Argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(password), salt, Argon2Time, Argon2Memory, Argon2Parallelism, Argon2KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, Argon2Memory, Argon2Time, Argon2Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash)), nil
}

// VerifyPassword checks password against an encoded Argon2id hash.
func VerifyPassword(password, encoded string) bool {
	parts := strings.Split(encoded, "$")
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, hash
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}
	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}
