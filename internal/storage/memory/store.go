package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Talorix/panel/internal/core/domain"
	"github.com/Talorix/panel/internal/core/service"
	"github.com/Talorix/panel/pkg/cmap"
)

var _ service.Repository = (*Store)(nil)

// Store is the in-memory repository.
type Store struct {
	users    *cmap.Map[string, *domain.User]
	emails   *cmap.Map[string, string] // email -> user id
	servers  *cmap.Map[string, *domain.Server]
	nodes    *cmap.Map[string, *domain.Node]
	sessions *cmap.Map[string, *domain.Session]

	keys      *cmap.Map[string, *domain.APIKey]
	keyHashes *cmap.Map[string, string] // token hash -> key id
	userKeys  *OwnerIndex

	// mu serializes writes that touch more than one map.
	mu sync.Mutex
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users:     cmap.New[string, *domain.User](),
		emails:    cmap.New[string, string](),
		servers:   cmap.New[string, *domain.Server](),
		nodes:     cmap.New[string, *domain.Node](),
		sessions:  cmap.New[string, *domain.Session](),
		keys:      cmap.New[string, *domain.APIKey](),
		keyHashes: cmap.New[string, string](),
		userKeys:  NewOwnerIndex(),
	}
}

// GetUser retrieves a user by id.
func (s *Store) GetUser(_ context.Context, id string) (*domain.User, error) {
	u, ok := s.users.Get(id)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return u.Clone(), nil
}

// FindUserByEmail retrieves a user by email.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	id, ok := s.emails.Get(email)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.GetUser(ctx, id)
}

// CreateUser stores a new user.
func (s *Store) CreateUser(_ context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.users.Has(u.ID) || s.emails.Has(u.Email) {
		return domain.ErrAlreadyExists
	}
	s.users.Set(u.ID, u.Clone())
	s.emails.Set(u.Email, u.ID)
	return nil
}

// UpdateUser replaces an existing user.
func (s *Store) UpdateUser(_ context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.users.Get(u.ID)
	if !ok {
		return domain.ErrNotFound
	}
	if old.Email != u.Email {
		if s.emails.Has(u.Email) {
			return domain.ErrAlreadyExists
		}
		s.emails.Delete(old.Email)
		s.emails.Set(u.Email, u.ID)
	}
	s.users.Set(u.ID, u.Clone())
	return nil
}

// ListUsers returns every user ordered by creation time.
func (s *Store) ListUsers(_ context.Context) ([]*domain.User, error) {
	users := make([]*domain.User, 0, s.users.Count())
	s.users.Range(func(_ string, u *domain.User) bool {
		users = append(users, u.Clone())
		return true
	})
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt != users[j].CreatedAt {
			return users[i].CreatedAt < users[j].CreatedAt
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

// GetServer retrieves a server by id.
func (s *Store) GetServer(_ context.Context, id string) (*domain.Server, error) {
	srv, ok := s.servers.Get(id)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return srv.Clone(), nil
}

// CreateServer stores a new server.
func (s *Store) CreateServer(_ context.Context, srv *domain.Server) error {
	if err := srv.Validate(); err != nil {
		return err
	}
	if !s.servers.SetIfAbsent(srv.ID, srv.Clone()) {
		return domain.ErrAlreadyExists
	}
	return nil
}

// ListServers returns every server ordered by id.
func (s *Store) ListServers(_ context.Context) ([]*domain.Server, error) {
	servers := make([]*domain.Server, 0, s.servers.Count())
	s.servers.Range(func(_ string, srv *domain.Server) bool {
		servers = append(servers, srv.Clone())
		return true
	})
	sort.Slice(servers, func(i, j int) bool { return servers[i].ID < servers[j].ID })
	return servers, nil
}

// CreateNode stores a new node.
func (s *Store) CreateNode(_ context.Context, n *domain.Node) error {
	if err := n.Validate(); err != nil {
		return err
	}
	if !s.nodes.SetIfAbsent(n.ID, n.Clone()) {
		return domain.ErrAlreadyExists
	}
	return nil
}

// ListNodes returns every node ordered by id.
func (s *Store) ListNodes(_ context.Context) ([]*domain.Node, error) {
	nodes := make([]*domain.Node, 0, s.nodes.Count())
	s.nodes.Range(func(_ string, n *domain.Node) bool {
		nodes = append(nodes, n.Clone())
		return true
	})
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes, nil
}

// GetSession retrieves a session by id. Expired sessions are still
// returned; callers decide what expiry means.
func (s *Store) GetSession(_ context.Context, id string) (*domain.Session, error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return sess.Clone(), nil
}

// CreateSession stores a new session.
func (s *Store) CreateSession(_ context.Context, sess *domain.Session) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	if !s.sessions.SetIfAbsent(sess.ID, sess.Clone()) {
		return domain.ErrAlreadyExists
	}
	return nil
}

// DeleteSession removes a session. Deleting a missing session returns
// domain.ErrNotFound.
func (s *Store) DeleteSession(_ context.Context, id string) error {
	if _, ok := s.sessions.Pop(id); !ok {
		return domain.ErrNotFound
	}
	return nil
}

// PurgeExpiredSessions deletes sessions whose expiry is before now and
// returns how many were removed.
func (s *Store) PurgeExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	cutoff := now.UnixMilli()
	var expired []string
	s.sessions.Range(func(id string, sess *domain.Session) bool {
		if sess.ExpiresAt > 0 && sess.ExpiresAt < cutoff {
			expired = append(expired, id)
		}
		return true
	})
	var n int64
	for _, id := range expired {
		if _, ok := s.sessions.Pop(id); ok {
			n++
		}
	}
	return n, nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
