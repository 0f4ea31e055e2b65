package service

import (
	"context"
	"errors"

	"github.com/Talorix/panel/internal/core/domain"
)

// Target is the resolved destination of a relay.
type Target struct {
	Server *domain.Server
	Node   *domain.Node
}

// AccessPolicy decides whether an identity may reach a server.
type AccessPolicy interface {
	Authorize(ctx context.Context, id domain.Identity, server *domain.Server) error
}

// OwnerOrSubuserPolicy admits the server's owner and users holding a
// subuser grant on it. It only accepts session identities.
type OwnerOrSubuserPolicy struct {
	Users IdentityStore
}

// Authorize implements AccessPolicy.
func (p OwnerOrSubuserPolicy) Authorize(ctx context.Context, id domain.Identity, server *domain.Server) error {
	sid, ok := id.(domain.SessionIdentity)
	if !ok {
		return domain.ErrForbidden.WithDetails("session identity required")
	}
	user, err := p.Users.GetUser(ctx, sid.UserID)
	if err != nil {
		return domain.ErrForbidden.WithCause(err)
	}
	if server.OwnerUserID == user.ID || user.HasGrant(server.ID) {
		return nil
	}
	return domain.ErrForbidden
}

// KeyHolderPolicy admits any authenticated API key to any server.
// Keys are account-wide; there is no per-key server scoping.
type KeyHolderPolicy struct{}

// Authorize implements AccessPolicy.
func (KeyHolderPolicy) Authorize(_ context.Context, id domain.Identity, _ *domain.Server) error {
	if _, ok := id.(domain.APIKeyIdentity); !ok {
		return domain.ErrForbidden.WithDetails("api key identity required")
	}
	return nil
}

// AccessResolver turns a server id into a relay Target. It only reads from
// the stores and may be called any number of times.
type AccessResolver struct {
	topology TopologyStore
}

// NewAccessResolver creates an AccessResolver.
func NewAccessResolver(topology TopologyStore) *AccessResolver {
	return &AccessResolver{topology: topology}
}

// Resolve looks up the server, applies policy, then finds the server's node
// by ip.
func (r *AccessResolver) Resolve(ctx context.Context, policy AccessPolicy, id domain.Identity, serverID string) (*Target, error) {
	server, err := r.topology.GetServer(ctx, serverID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrServerNotFound.WithDetails(serverID)
		}
		return nil, domain.ErrStorage.WithCause(err)
	}

	if err := policy.Authorize(ctx, id, server); err != nil {
		return nil, err
	}

	node, err := r.findNode(ctx, server.Node.IP)
	if err != nil {
		return nil, err
	}
	return &Target{Server: server, Node: node}, nil
}

func (r *AccessResolver) findNode(ctx context.Context, ip string) (*domain.Node, error) {
	if ip == "" {
		return nil, domain.ErrNodeNotFound.WithDetails("server has no node")
	}
	nodes, err := r.topology.ListNodes(ctx)
	if err != nil {
		return nil, domain.ErrStorage.WithCause(err)
	}
	for _, n := range nodes {
		if n.IP == ip {
			return n, nil
		}
	}
	return nil, domain.ErrNodeNotFound.WithDetails(ip)
}
