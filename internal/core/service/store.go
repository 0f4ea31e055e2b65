package service

import (
	"context"

	"github.com/Talorix/panel/internal/core/domain"
)

// Stores return domain.ErrNotFound when a record does not exist.

// IdentityStore looks up accounts and credentials.
type IdentityStore interface {
	// GetUser retrieves a user by id.
	GetUser(ctx context.Context, id string) (*domain.User, error)

	// FindUserByEmail retrieves a user by normalized email.
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)

	// FindAPIKeyByHash retrieves the key whose TokenHash equals hash.
	FindAPIKeyByHash(ctx context.Context, hash string) (*domain.APIKey, error)

	// TouchAPIKey advances the key's LastUsed to at (Unix ms). No other
	// field is written.
	TouchAPIKey(ctx context.Context, id string, at int64) error
}

// TopologyStore looks up servers and nodes.
type TopologyStore interface {
	// GetServer retrieves a server by id.
	GetServer(ctx context.Context, id string) (*domain.Server, error)

	// ListNodes returns every known node.
	ListNodes(ctx context.Context) ([]*domain.Node, error)
}

// SessionStore persists browser sessions.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	CreateSession(ctx context.Context, s *domain.Session) error
	DeleteSession(ctx context.Context, id string) error
}

// Repository is the full persistence surface: the lookups the relay needs
// plus the admin writes used by the CLI.
type Repository interface {
	IdentityStore
	TopologyStore
	SessionStore

	CreateUser(ctx context.Context, u *domain.User) error
	// UpdateUser replaces a stored user, keeping the email index current.
	UpdateUser(ctx context.Context, u *domain.User) error
	ListUsers(ctx context.Context) ([]*domain.User, error)

	CreateNode(ctx context.Context, n *domain.Node) error
	CreateServer(ctx context.Context, s *domain.Server) error
	ListServers(ctx context.Context) ([]*domain.Server, error)

	CreateAPIKey(ctx context.Context, k *domain.APIKey) error
	UpdateAPIKey(ctx context.Context, k *domain.APIKey) error
	// ListAPIKeys lists the keys of userID, or every key when userID is empty.
	ListAPIKeys(ctx context.Context, userID string) ([]*domain.APIKey, error)

	Close() error
}
