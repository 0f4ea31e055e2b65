package service

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Talorix/panel/internal/core/domain"
	"github.com/Talorix/panel/internal/telemetry/logger"
	"github.com/Talorix/panel/pkg/token"
)

// DefaultSessionCookie is the cookie carrying the signed session id.
const DefaultSessionCookie = "sid"

// apiKeyTouchInterval limits how often a key's LastUsed is written.
const apiKeyTouchInterval = time.Minute

// Authenticator decides the caller identity of an inbound request.
// Any failure is reported as domain.ErrUnauthorized.
type Authenticator interface {
	Authenticate(r *http.Request) (domain.Identity, error)
}

// SessionAuthenticator trusts a valid server-side session. It never
// re-checks passwords.
type SessionAuthenticator struct {
	sessions   SessionStore
	users      IdentityStore
	signer     *token.Signer
	cookieName string
}

// NewSessionAuthenticator creates a SessionAuthenticator. An empty
// cookieName selects DefaultSessionCookie.
func NewSessionAuthenticator(sessions SessionStore, users IdentityStore, signer *token.Signer, cookieName string) *SessionAuthenticator {
	if cookieName == "" {
		cookieName = DefaultSessionCookie
	}
	return &SessionAuthenticator{
		sessions:   sessions,
		users:      users,
		signer:     signer,
		cookieName: cookieName,
	}
}

// Authenticate resolves the session cookie to a SessionIdentity.
func (a *SessionAuthenticator) Authenticate(r *http.Request) (domain.Identity, error) {
	c, err := r.Cookie(a.cookieName)
	if err != nil || c.Value == "" {
		return nil, domain.ErrUnauthorized.WithDetails("no session cookie")
	}
	sid, err := a.signer.Unsign(c.Value)
	if err != nil {
		return nil, domain.ErrUnauthorized.WithCause(err)
	}

	ctx := r.Context()
	sess, err := a.sessions.GetSession(ctx, sid)
	if err != nil {
		return nil, domain.ErrUnauthorized.WithCause(err)
	}
	if sess.IsExpired() {
		return nil, domain.ErrUnauthorized.WithCause(domain.ErrSessionExpired)
	}
	if sess.UserID == "" {
		return nil, domain.ErrUnauthorized.WithDetails("session has no user")
	}

	user, err := a.users.GetUser(ctx, sess.UserID)
	if err != nil {
		return nil, domain.ErrUnauthorized.WithCause(err)
	}
	return domain.SessionIdentity{UserID: user.ID, SessionID: sess.ID}, nil
}

// APIKeyAuthenticator authenticates programmatic callers by the digest of
// their bearer token.
type APIKeyAuthenticator struct {
	keys     IdentityStore
	limiters *RateLimiterRegistry
	limit    rate.Limit
	burst    int
}

// NewAPIKeyAuthenticator creates an APIKeyAuthenticator. perSecond is the
// number of connections per second allowed for one key; 0 disables
// limiting. burst below 1 is raised to 1.
func NewAPIKeyAuthenticator(keys IdentityStore, perSecond float64, burst int) *APIKeyAuthenticator {
	if burst < 1 {
		burst = 1
	}
	return &APIKeyAuthenticator{
		keys:     keys,
		limiters: NewRateLimiterRegistry(),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

// Authenticate resolves the request's API key to an APIKeyIdentity.
// The raw token is hashed immediately and never leaves this function.
func (a *APIKeyAuthenticator) Authenticate(r *http.Request) (domain.Identity, error) {
	raw := ExtractAPIKey(r)
	if raw == "" {
		return nil, domain.ErrUnauthorized.WithDetails("no api key")
	}
	if !token.IsAPIKey(raw) {
		return nil, domain.ErrUnauthorized.WithDetails("malformed api key")
	}

	key, err := a.keys.FindAPIKeyByHash(r.Context(), token.Hash(raw))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnauthorized.WithDetails("unknown api key")
		}
		return nil, domain.ErrUnauthorized.WithCause(err)
	}
	if !key.IsUsable() {
		return nil, domain.ErrUnauthorized.WithCause(domain.ErrAPIKeyRevoked)
	}

	if a.limit > 0 && !a.limiters.Allow(key.ID, a.limit, a.burst) {
		return nil, domain.ErrUnauthorized.WithCause(domain.ErrRateLimited)
	}

	if now := domain.NowMillis(); now-key.LastUsed >= apiKeyTouchInterval.Milliseconds() {
		if err := a.keys.TouchAPIKey(r.Context(), key.ID, now); err != nil {
			logger.FromContext(r.Context()).Warn("failed to record api key use", "key_id", key.ID, "error", err)
		}
	}

	return domain.APIKeyIdentity{KeyID: key.ID, UserID: key.UserID}, nil
}

// ExtractAPIKey returns the token from "Authorization: Bearer <token>",
// falling back to the X-Api-Key header.
func ExtractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		if t := strings.TrimSpace(auth[len("Bearer "):]); t != "" {
			return t
		}
	}
	return strings.TrimSpace(r.Header.Get("X-Api-Key"))
}
