package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Talorix/panel/internal/core/domain"
	"github.com/Talorix/panel/pkg/token"
)

// AccountConfig holds configuration for AccountService.
type AccountConfig struct {
	// SessionTTL is the lifetime of a new session (default: 7 days).
	SessionTTL time.Duration

	// LoginAttempts is the number of login attempts allowed per client ip
	// per minute (0 disables limiting).
	LoginAttempts int
}

// DefaultAccountConfig returns default configuration.
func DefaultAccountConfig() *AccountConfig {
	return &AccountConfig{
		SessionTTL:    7 * 24 * time.Hour,
		LoginAttempts: 10,
	}
}

// AccountService handles password login and logout.
type AccountService struct {
	users    IdentityStore
	sessions SessionStore
	signer   *token.Signer
	limiters *RateLimiterRegistry
	cfg      AccountConfig
}

// NewAccountService creates an AccountService.
func NewAccountService(users IdentityStore, sessions SessionStore, signer *token.Signer, cfg *AccountConfig) *AccountService {
	if cfg == nil {
		cfg = DefaultAccountConfig()
	}
	return &AccountService{
		users:    users,
		sessions: sessions,
		signer:   signer,
		limiters: NewRateLimiterRegistry(),
		cfg:      *cfg,
	}
}

// LoginRequest contains login parameters.
type LoginRequest struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// LoginResponse contains the new session and its signed cookie value.
type LoginResponse struct {
	Session     *domain.Session
	User        *domain.User
	CookieValue string
}

// Login verifies credentials and opens a session.
func (s *AccountService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	if s.cfg.LoginAttempts > 0 && req.IPAddress != "" {
		limit := rate.Every(time.Minute / time.Duration(s.cfg.LoginAttempts))
		if !s.limiters.Allow(req.IPAddress, limit, s.cfg.LoginAttempts) {
			return nil, domain.ErrRateLimited
		}
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, domain.ErrBadRequest.WithDetails("email and password are required")
	}

	user, err := s.users.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, domain.ErrStorage.WithCause(err)
	}
	if !user.CheckPassword(req.Password) {
		return nil, domain.ErrInvalidCredentials
	}

	sess, err := domain.NewSession(user.ID, s.cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	sess.IPAddress = truncate(req.IPAddress, domain.MaxIPAddressLength)
	sess.UserAgent = truncate(req.UserAgent, domain.MaxUserAgentLength)
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	if err := s.sessions.CreateSession(ctx, sess); err != nil {
		return nil, domain.ErrStorage.WithCause(err)
	}

	return &LoginResponse{
		Session:     sess,
		User:        user,
		CookieValue: s.signer.Sign(sess.ID),
	}, nil
}

// Logout deletes the session referenced by a signed cookie value.
// Unknown or badly signed values are ignored.
func (s *AccountService) Logout(ctx context.Context, cookieValue string) error {
	sid, err := s.signer.Unsign(cookieValue)
	if err != nil {
		return nil
	}
	if err := s.sessions.DeleteSession(ctx, sid); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.ErrStorage.WithCause(err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
