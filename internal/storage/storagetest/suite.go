// Package storagetest holds the behavioural suite every service.Repository
// backend must pass.
package storagetest

import (
	"context"
	"errors"
	"testing"

	"github.com/Talorix/panel/internal/core/domain"
	"github.com/Talorix/panel/internal/core/service"
)

// Factory opens an empty repository. The suite closes it.
type Factory func(t *testing.T) service.Repository

// Run exercises every Repository operation against repositories from open.
func Run(t *testing.T, open Factory) {
	t.Helper()
	t.Run("Users", func(t *testing.T) { testUsers(t, open(t)) })
	t.Run("UserIsolation", func(t *testing.T) { testUserIsolation(t, open(t)) })
	t.Run("Topology", func(t *testing.T) { testTopology(t, open(t)) })
	t.Run("Sessions", func(t *testing.T) { testSessions(t, open(t)) })
	t.Run("APIKeys", func(t *testing.T) { testAPIKeys(t, open(t)) })
}

func mustUser(t *testing.T, email string) *domain.User {
	t.Helper()
	u, err := domain.NewUser(email, email, "hunter22")
	if err != nil {
		t.Fatalf("NewUser(%s): %v", email, err)
	}
	return u
}

func wantErr(t *testing.T, op string, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("%s error = %v, want %v", op, err, want)
	}
}

func testUsers(t *testing.T, r service.Repository) {
	defer r.Close()
	ctx := context.Background()

	alice := mustUser(t, "alice@example.com")
	if err := r.CreateUser(ctx, alice); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	wantErr(t, "CreateUser(same id)", r.CreateUser(ctx, alice), domain.ErrAlreadyExists)

	dup := mustUser(t, "alice@example.com")
	wantErr(t, "CreateUser(same email)", r.CreateUser(ctx, dup), domain.ErrAlreadyExists)

	got, err := r.GetUser(ctx, alice.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Email != alice.Email || got.PasswordHash != alice.PasswordHash {
		t.Errorf("GetUser = %+v, want %+v", got, alice)
	}
	if !got.CheckPassword("hunter22") {
		t.Error("stored password hash does not verify")
	}

	byEmail, err := r.FindUserByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("FindUserByEmail: %v", err)
	}
	if byEmail.ID != alice.ID {
		t.Errorf("FindUserByEmail ID = %s, want %s", byEmail.ID, alice.ID)
	}

	_, err = r.GetUser(ctx, "tlus-missing")
	wantErr(t, "GetUser(missing)", err, domain.ErrNotFound)
	_, err = r.FindUserByEmail(ctx, "nobody@example.com")
	wantErr(t, "FindUserByEmail(missing)", err, domain.ErrNotFound)

	got.Grant("tlsv-1")
	got.Email = "alice@new.example.com"
	if err := r.UpdateUser(ctx, got); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	updated, err := r.FindUserByEmail(ctx, "alice@new.example.com")
	if err != nil {
		t.Fatalf("FindUserByEmail(new): %v", err)
	}
	if !updated.HasGrant("tlsv-1") {
		t.Error("grant was not persisted")
	}
	_, err = r.FindUserByEmail(ctx, "alice@example.com")
	wantErr(t, "FindUserByEmail(old)", err, domain.ErrNotFound)

	wantErr(t, "UpdateUser(missing)", r.UpdateUser(ctx, mustUser(t, "ghost@example.com")), domain.ErrNotFound)

	bob := mustUser(t, "bob@example.com")
	if err := r.CreateUser(ctx, bob); err != nil {
		t.Fatalf("CreateUser(bob): %v", err)
	}
	users, err := r.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("ListUsers len = %d, want 2", len(users))
	}
}

func testUserIsolation(t *testing.T, r service.Repository) {
	defer r.Close()
	ctx := context.Background()

	u := mustUser(t, "carol@example.com")
	if err := r.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	u.Grant("tlsv-leak")

	got, err := r.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.HasGrant("tlsv-leak") {
		t.Error("caller mutation leaked into the store")
	}
	got.Grant("tlsv-leak")
	again, _ := r.GetUser(ctx, u.ID)
	if again.HasGrant("tlsv-leak") {
		t.Error("returned user shares state with the store")
	}
}

func testTopology(t *testing.T, r service.Repository) {
	defer r.Close()
	ctx := context.Background()

	nodes := []*domain.Node{
		{ID: "tlnd-a", Name: "a", IP: "10.0.0.4", Port: 8080, Key: "ka"},
		{ID: "tlnd-b", Name: "b", IP: "10.0.0.5", Port: 8081, Key: "kb"},
	}
	for _, n := range nodes {
		if err := r.CreateNode(ctx, n); err != nil {
			t.Fatalf("CreateNode(%s): %v", n.ID, err)
		}
	}
	wantErr(t, "CreateNode(dup)", r.CreateNode(ctx, nodes[0]), domain.ErrAlreadyExists)
	wantErr(t, "CreateNode(invalid)", r.CreateNode(ctx, &domain.Node{ID: "tlnd-x", IP: "1.2.3.4"}), domain.ErrValidation)

	list, err := r.ListNodes(ctx)
	if err != nil {
		t.Fatalf("ListNodes: %v", err)
	}
	if len(list) != 2 || list[0].ID != "tlnd-a" || list[1].Key != "kb" || list[1].Port != 8081 {
		t.Errorf("ListNodes = %+v", list)
	}

	srv := &domain.Server{ID: "tlsv-1", Name: "mc", OwnerUserID: "tlus-1", WorkloadID: "ctr-1", Node: domain.NodeRef{IP: "10.0.0.5"}}
	if err := r.CreateServer(ctx, srv); err != nil {
		t.Fatalf("CreateServer: %v", err)
	}
	wantErr(t, "CreateServer(dup)", r.CreateServer(ctx, srv), domain.ErrAlreadyExists)

	got, err := r.GetServer(ctx, "tlsv-1")
	if err != nil {
		t.Fatalf("GetServer: %v", err)
	}
	if got.WorkloadID != "ctr-1" || got.Node.IP != "10.0.0.5" || got.OwnerUserID != "tlus-1" {
		t.Errorf("GetServer = %+v", got)
	}
	_, err = r.GetServer(ctx, "tlsv-missing")
	wantErr(t, "GetServer(missing)", err, domain.ErrNotFound)

	servers, err := r.ListServers(ctx)
	if err != nil || len(servers) != 1 {
		t.Errorf("ListServers = %v, %v", servers, err)
	}
}

func testSessions(t *testing.T, r service.Repository) {
	defer r.Close()
	ctx := context.Background()

	s, err := domain.NewSession("tlus-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	s.IPAddress = "203.0.113.9"
	if err := r.CreateSession(ctx, s); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	wantErr(t, "CreateSession(dup)", r.CreateSession(ctx, s), domain.ErrAlreadyExists)

	got, err := r.GetSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.UserID != "tlus-1" || got.IPAddress != "203.0.113.9" {
		t.Errorf("GetSession = %+v", got)
	}

	if err := r.DeleteSession(ctx, s.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	_, err = r.GetSession(ctx, s.ID)
	wantErr(t, "GetSession(deleted)", err, domain.ErrNotFound)
	wantErr(t, "DeleteSession(missing)", r.DeleteSession(ctx, s.ID), domain.ErrNotFound)
}

func testAPIKeys(t *testing.T, r service.Repository) {
	defer r.Close()
	ctx := context.Background()

	k1, raw, err := domain.NewAPIKey("ci", "tlus-1")
	if err != nil {
		t.Fatal(err)
	}
	k2, _, _ := domain.NewAPIKey("deploy", "tlus-1")
	k3, _, _ := domain.NewAPIKey("other", "tlus-2")
	for _, k := range []*domain.APIKey{k1, k2, k3} {
		if err := r.CreateAPIKey(ctx, k); err != nil {
			t.Fatalf("CreateAPIKey(%s): %v", k.Name, err)
		}
	}
	wantErr(t, "CreateAPIKey(dup)", r.CreateAPIKey(ctx, k1), domain.ErrAlreadyExists)

	got, err := r.FindAPIKeyByHash(ctx, k1.TokenHash)
	if err != nil {
		t.Fatalf("FindAPIKeyByHash: %v", err)
	}
	if got.ID != k1.ID || !got.IsUsable() {
		t.Errorf("FindAPIKeyByHash = %+v", got)
	}
	_, err = r.FindAPIKeyByHash(ctx, raw)
	wantErr(t, "FindAPIKeyByHash(raw token)", err, domain.ErrNotFound)

	if err := r.TouchAPIKey(ctx, k1.ID, 5_000); err != nil {
		t.Fatalf("TouchAPIKey: %v", err)
	}
	if err := r.TouchAPIKey(ctx, k1.ID, 4_000); err != nil {
		t.Fatalf("TouchAPIKey(older): %v", err)
	}
	touched, _ := r.FindAPIKeyByHash(ctx, k1.TokenHash)
	if touched.LastUsed != 5_000 || touched.Name != "ci" || !touched.IsUsable() {
		t.Errorf("after TouchAPIKey = %+v, want last_used 5000 and other fields kept", touched)
	}
	wantErr(t, "TouchAPIKey(missing)", r.TouchAPIKey(ctx, "tlak-missing", 1), domain.ErrNotFound)

	got.Revoke()
	if err := r.UpdateAPIKey(ctx, got); err != nil {
		t.Fatalf("UpdateAPIKey: %v", err)
	}
	revoked, _ := r.FindAPIKeyByHash(ctx, k1.TokenHash)
	if revoked.IsUsable() {
		t.Error("revocation was not persisted")
	}

	got.TokenHash = k3.TokenHash
	wantErr(t, "UpdateAPIKey(hash change)", r.UpdateAPIKey(ctx, got), domain.ErrValidation)

	ghost, _, _ := domain.NewAPIKey("ghost", "tlus-1")
	wantErr(t, "UpdateAPIKey(missing)", r.UpdateAPIKey(ctx, ghost), domain.ErrNotFound)

	mine, err := r.ListAPIKeys(ctx, "tlus-1")
	if err != nil || len(mine) != 2 {
		t.Errorf("ListAPIKeys(tlus-1) = %d keys, %v; want 2", len(mine), err)
	}
	all, err := r.ListAPIKeys(ctx, "")
	if err != nil || len(all) != 3 {
		t.Errorf("ListAPIKeys(all) = %d keys, %v; want 3", len(all), err)
	}
}
