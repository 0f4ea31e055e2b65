package domain

import (
	"strings"
	"time"
)

// Session constraints.
const (
	MaxIPAddressLength = 45 // IPv6
	MaxUserAgentLength = 512
)

// Session is a server-side browser session. The signed cookie only carries
// the session id.
type Session struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	IPAddress  string `json:"ip_address"`
	UserAgent  string `json:"user_agent"`
	CreatedAt  int64  `json:"created_at"`
	ExpiresAt  int64  `json:"expires_at"`
	LastActive int64  `json:"last_active"`
}

// NewSession creates a session for userID valid for ttl.
func NewSession(userID string, ttl time.Duration) (*Session, error) {
	id, err := NewID(SessionIDPrefix)
	if err != nil {
		return nil, err
	}
	now := currentTimeMillis()
	s := &Session{
		ID:         id,
		UserID:     userID,
		CreatedAt:  now,
		LastActive: now,
	}
	if ttl > 0 {
		s.ExpiresAt = now + ttl.Milliseconds()
	}
	return s, nil
}

// IsExpired returns true if the session has expired. Zero means no expiry.
func (s *Session) IsExpired() bool {
	if s.ExpiresAt == 0 {
		return false
	}
	return currentTimeMillis() > s.ExpiresAt
}

// Touch updates LastActive.
func (s *Session) Touch() {
	s.LastActive = currentTimeMillis()
}

// Validate checks field constraints.
func (s *Session) Validate() error {
	var violations []string
	if s.UserID == "" {
		violations = append(violations, "user_id is required")
	}
	if len(s.IPAddress) > MaxIPAddressLength {
		violations = append(violations, "ip_address exceeds 45 characters")
	}
	if len(s.UserAgent) > MaxUserAgentLength {
		violations = append(violations, "user_agent exceeds 512 characters")
	}
	if len(violations) > 0 {
		return ErrValidation.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// Clone returns a copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
