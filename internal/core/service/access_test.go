package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Talorix/panel/internal/core/domain"
)

func TestAccessResolver_SessionPolicy(t *testing.T) {
	store := newFakeStore()
	store.seed()
	resolver := NewAccessResolver(store)
	policy := OwnerOrSubuserPolicy{Users: store}
	ctx := context.Background()

	tests := []struct {
		name     string
		user     string
		serverID string
		wantErr  error
	}{
		{"owner", "alice", "srv-1", nil},
		{"subuser with grant", "bob", "srv-1", nil},
		{"user without grant", "carol", "srv-1", domain.ErrForbidden},
		{"unknown server", "alice", "srv-missing", domain.ErrServerNotFound},
		{"unknown server checked before grant", "carol", "srv-missing", domain.ErrServerNotFound},
		{"node missing", "alice", "srv-orphan", domain.ErrNodeNotFound},
		{"forbidden checked before node", "carol", "srv-orphan", domain.ErrForbidden},
		{"user vanished", "dave", "srv-1", domain.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, err := resolver.Resolve(ctx, policy, domain.SessionIdentity{UserID: tt.user}, tt.serverID)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if target.Node.ID != "n1" || target.Node.Key != "node-secret" {
				t.Errorf("Resolve() node = %+v, want n1", target.Node)
			}
			if target.Server.WorkloadID != "ctr-1" {
				t.Errorf("Resolve() workload = %q, want ctr-1", target.Server.WorkloadID)
			}
		})
	}
}

func TestAccessResolver_KeyHolderPolicy(t *testing.T) {
	store := newFakeStore()
	store.seed()
	resolver := NewAccessResolver(store)
	ctx := context.Background()

	// An API key owned by carol still reaches alice's server.
	target, err := resolver.Resolve(ctx, KeyHolderPolicy{}, domain.APIKeyIdentity{KeyID: "tlak-1", UserID: "carol"}, "srv-1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if target.Server.ID != "srv-1" {
		t.Errorf("Resolve() server = %s", target.Server.ID)
	}

	if _, err := resolver.Resolve(ctx, KeyHolderPolicy{}, domain.APIKeyIdentity{KeyID: "tlak-1"}, "nope"); !errors.Is(err, domain.ErrServerNotFound) {
		t.Errorf("Resolve(missing) error = %v, want ErrServerNotFound", err)
	}
	if _, err := resolver.Resolve(ctx, KeyHolderPolicy{}, domain.APIKeyIdentity{KeyID: "tlak-1"}, "srv-orphan"); !errors.Is(err, domain.ErrNodeNotFound) {
		t.Errorf("Resolve(orphan) error = %v, want ErrNodeNotFound", err)
	}
}

func TestAccessPolicy_IdentityMismatch(t *testing.T) {
	store := newFakeStore()
	store.seed()
	server := store.servers["srv-1"]
	ctx := context.Background()

	if err := (KeyHolderPolicy{}).Authorize(ctx, domain.SessionIdentity{UserID: "alice"}, server); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("KeyHolderPolicy(session) error = %v, want ErrForbidden", err)
	}
	if err := (OwnerOrSubuserPolicy{Users: store}).Authorize(ctx, domain.APIKeyIdentity{KeyID: "k"}, server); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("OwnerOrSubuserPolicy(api key) error = %v, want ErrForbidden", err)
	}
}

func TestAccessResolver_StoreFailure(t *testing.T) {
	store := newFakeStore()
	store.seed()
	store.failWith = errors.New("disk on fire")
	resolver := NewAccessResolver(store)

	_, err := resolver.Resolve(context.Background(), KeyHolderPolicy{}, domain.APIKeyIdentity{KeyID: "k"}, "srv-1")
	if !errors.Is(err, domain.ErrStorage) {
		t.Errorf("Resolve() error = %v, want ErrStorage", err)
	}
	if domain.CloseReason(err) != "" {
		t.Errorf("storage failures must not produce a close reason, got %q", domain.CloseReason(err))
	}
}

func TestAccessResolver_Idempotent(t *testing.T) {
	store := newFakeStore()
	store.seed()
	resolver := NewAccessResolver(store)
	policy := OwnerOrSubuserPolicy{Users: store}

	for i := 0; i < 3; i++ {
		if _, err := resolver.Resolve(context.Background(), policy, domain.SessionIdentity{UserID: "bob"}, "srv-1"); err != nil {
			t.Fatalf("Resolve() #%d error = %v", i, err)
		}
	}
	if len(store.users["bob"].Servers) != 1 || len(store.nodes) != 2 {
		t.Error("Resolve() must not modify the stores")
	}
}
