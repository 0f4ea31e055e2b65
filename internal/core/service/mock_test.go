package service

import (
	"context"
	"sync"

	"github.com/Talorix/panel/internal/core/domain"
)

// fakeStore is an in-memory IdentityStore, TopologyStore and SessionStore.
type fakeStore struct {
	mu       sync.RWMutex
	users    map[string]*domain.User
	keys     map[string]*domain.APIKey // by hash
	servers  map[string]*domain.Server
	nodes    []*domain.Node
	sessions map[string]*domain.Session
	touches  map[string]int // key id -> TouchAPIKey calls
	failWith error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]*domain.User),
		keys:     make(map[string]*domain.APIKey),
		servers:  make(map[string]*domain.Server),
		sessions: make(map[string]*domain.Session),
		touches:  make(map[string]int),
	}
}

func (f *fakeStore) TouchAPIKey(_ context.Context, id string, at int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range f.keys {
		if k.ID == id {
			k.Touch(at)
			f.touches[id]++
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeStore) touchCount(id string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.touches[id]
}

func (f *fakeStore) GetUser(_ context.Context, id string) (*domain.User, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	u, ok := f.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return u.Clone(), nil
}

func (f *fakeStore) FindUserByEmail(_ context.Context, email string) (*domain.User, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, u := range f.users {
		if u.Email == email {
			return u.Clone(), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeStore) FindAPIKeyByHash(_ context.Context, hash string) (*domain.APIKey, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	k, ok := f.keys[hash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return k.Clone(), nil
}

func (f *fakeStore) GetServer(_ context.Context, id string) (*domain.Server, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	s, ok := f.servers[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.Clone(), nil
}

func (f *fakeStore) ListNodes(context.Context) ([]*domain.Node, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*domain.Node, 0, len(f.nodes))
	for _, n := range f.nodes {
		out = append(out, n.Clone())
	}
	return out, nil
}

func (f *fakeStore) GetSession(_ context.Context, id string) (*domain.Session, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.Clone(), nil
}

func (f *fakeStore) CreateSession(_ context.Context, s *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = s.Clone()
	return nil
}

func (f *fakeStore) DeleteSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.sessions, id)
	return nil
}

// seed populates owner alice, subuser bob (granted srv-1), outsider carol,
// server srv-1 on node 10.0.0.5 and server srv-orphan on an unknown node.
func (f *fakeStore) seed() {
	f.users["alice"] = &domain.User{ID: "alice", Email: "alice@example.com"}
	f.users["bob"] = &domain.User{ID: "bob", Email: "bob@example.com", Servers: []domain.ServerGrant{{ID: "srv-1"}}}
	f.users["carol"] = &domain.User{ID: "carol", Email: "carol@example.com"}
	f.servers["srv-1"] = &domain.Server{ID: "srv-1", OwnerUserID: "alice", WorkloadID: "ctr-1", Node: domain.NodeRef{IP: "10.0.0.5"}}
	f.servers["srv-orphan"] = &domain.Server{ID: "srv-orphan", OwnerUserID: "alice", WorkloadID: "ctr-2", Node: domain.NodeRef{IP: "10.9.9.9"}}
	f.nodes = []*domain.Node{
		{ID: "n0", IP: "10.0.0.4", Port: 8080, Key: "other"},
		{ID: "n1", IP: "10.0.0.5", Port: 8080, Key: "node-secret"},
	}
}
