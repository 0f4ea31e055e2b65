package command

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/Talorix/panel/internal/core/domain"
	"github.com/Talorix/panel/internal/core/service"
	"github.com/Talorix/panel/internal/storage/memory"
	"github.com/Talorix/panel/pkg/token"
)

// runCLI runs talorix-cli with args against repo and returns stdout and
// stderr.
func runCLI(t *testing.T, repo service.Repository, args ...string) (string, string, error) {
	t.Helper()
	app := NewApp(func(*cli.Context) (service.Repository, error) { return repo, nil })
	var stdout, stderr bytes.Buffer
	app.Writer = &stdout
	app.ErrWriter = &stderr
	err := app.Run(append([]string{"talorix-cli"}, args...))
	return stdout.String(), stderr.String(), err
}

func mustRun(t *testing.T, repo service.Repository, args ...string) string {
	t.Helper()
	out, errOut, err := runCLI(t, repo, args...)
	if err != nil {
		t.Fatalf("%v: %v (stderr %q)", args, err, errOut)
	}
	return out
}

func decode[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("decode %q: %v", s, err)
	}
	return v
}

func TestUserAddAndList(t *testing.T) {
	repo := memory.New()

	out := mustRun(t, repo, "-o", "json", "user", "add", "--email", "Ada@Example.com", "--username", "ada", "--password", "pw-123456")
	u := decode[userView](t, out)
	if u.Email != "ada@example.com" || !strings.HasPrefix(u.ID, domain.UserIDPrefix) {
		t.Errorf("created user = %+v", u)
	}

	stored, err := repo.GetUser(context.Background(), u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.CheckPassword("pw-123456") {
		t.Error("stored password does not verify")
	}
	if strings.Contains(out, stored.PasswordHash) {
		t.Error("output leaks the password hash")
	}

	if _, _, err := runCLI(t, repo, "user", "add", "--email", "ada@example.com", "--username", "x", "--password", "y"); err == nil {
		t.Error("duplicate email accepted")
	}

	table := mustRun(t, repo, "user", "list")
	if !strings.Contains(table, "EMAIL") || !strings.Contains(table, "ada@example.com") {
		t.Errorf("user list = %q", table)
	}
}

func TestTopologyAndGrants(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	owner := decode[userView](t, mustRun(t, repo, "-o", "json", "user", "add", "--email", "o@example.com", "--username", "o", "--password", "p"))
	sub := decode[userView](t, mustRun(t, repo, "-o", "json", "user", "add", "--email", "s@example.com", "--username", "s", "--password", "p"))

	_, stderr, err := runCLI(t, repo, "-o", "json", "node", "add", "--name", "n1", "--ip", "10.0.0.5")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stderr, "agent key") {
		t.Errorf("generated key not announced: %q", stderr)
	}
	nodes, _ := repo.ListNodes(ctx)
	if len(nodes) != 1 || len(nodes[0].Key) != base64.RawURLEncoding.EncodedLen(nodeKeyLength) || nodes[0].Port != 3001 {
		t.Fatalf("nodes = %+v", nodes)
	}
	if out := mustRun(t, repo, "-o", "json", "node", "list"); strings.Contains(out, nodes[0].Key) {
		t.Error("node list leaks the agent key")
	}

	out, stderr, err := runCLI(t, repo, "-o", "json", "server", "add", "--id", "srv-1", "--owner", "o@example.com", "--workload", "ctr-1", "--node-ip", "10.0.0.5")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(stderr, "warning") {
		t.Errorf("unexpected warning: %q", stderr)
	}
	if s := decode[serverView](t, out); s.Owner != owner.ID || s.NodeIP != "10.0.0.5" {
		t.Errorf("server = %+v", s)
	}

	_, stderr, err = runCLI(t, repo, "server", "add", "--owner", owner.ID, "--workload", "ctr-2", "--node-ip", "10.9.9.9")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stderr, "no node registered") {
		t.Errorf("missing node warning: %q", stderr)
	}

	mustRun(t, repo, "user", "grant", sub.ID, "srv-1")
	u, _ := repo.GetUser(ctx, sub.ID)
	if !u.HasGrant("srv-1") {
		t.Fatal("grant not stored")
	}
	mustRun(t, repo, "user", "revoke", "s@example.com", "srv-1")
	u, _ = repo.GetUser(ctx, sub.ID)
	if u.HasGrant("srv-1") {
		t.Fatal("revoke not stored")
	}

	for _, args := range [][]string{
		{"user", "grant", sub.ID, "srv-missing"},
		{"user", "grant", "nobody@example.com", "srv-1"},
		{"user", "grant", sub.ID},
		{"server", "add", "--id", "srv-1", "--owner", owner.ID, "--workload", "w", "--node-ip", "10.0.0.5"},
	} {
		if _, _, err := runCLI(t, repo, args...); err == nil {
			t.Errorf("%v succeeded, want error", args)
		}
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	mustRun(t, repo, "user", "add", "--email", "k@example.com", "--username", "k", "--password", "p")

	out, stderr, err := runCLI(t, repo, "-o", "json", "apikey", "create", "--user", "k@example.com", "--name", "ci")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stderr, "cannot be shown again") {
		t.Errorf("stderr = %q", stderr)
	}
	created := decode[createdKey](t, out)
	if !token.IsAPIKey(created.Token) {
		t.Fatalf("token = %q", created.Token)
	}

	key, err := repo.FindAPIKeyByHash(ctx, token.Hash(created.Token))
	if err != nil || key.ID != created.ID || !key.IsUsable() {
		t.Fatalf("stored key = %+v, %v", key, err)
	}

	list := mustRun(t, repo, "apikey", "list", "--user", "k@example.com")
	if !strings.Contains(list, created.ID) || strings.Contains(list, created.Token) {
		t.Errorf("list = %q", list)
	}

	mustRun(t, repo, "apikey", "revoke", created.ID)
	key, _ = repo.FindAPIKeyByHash(ctx, token.Hash(created.Token))
	if key.IsUsable() {
		t.Error("revoked key still usable")
	}
	_, stderr, err = runCLI(t, repo, "apikey", "revoke", created.ID)
	if err != nil || !strings.Contains(stderr, "already revoked") {
		t.Errorf("second revoke: %v %q", err, stderr)
	}

	if _, _, err := runCLI(t, repo, "apikey", "revoke", "tlak-missing"); err == nil {
		t.Error("revoking an unknown key succeeded")
	}
}

func TestOutputFormatValidated(t *testing.T) {
	if _, _, err := runCLI(t, memory.New(), "-o", "xml", "user", "list"); err == nil {
		t.Error("unknown output format accepted")
	}
}

func TestOpenFromConfig_SQLiteOverride(t *testing.T) {
	dir := t.TempDir()
	app := App()
	var stdout, stderr bytes.Buffer
	app.Writer, app.ErrWriter = &stdout, &stderr

	args := []string{"talorix-cli", "--backend", "sqlite", "--data-dir", dir, "user", "add", "--email", "q@example.com", "--username", "q", "--password", "p"}
	if err := app.Run(args); err != nil {
		t.Fatalf("run: %v (%s)", err, stderr.String())
	}

	app = App()
	app.Writer, app.ErrWriter = &stdout, &stderr
	stdout.Reset()
	if err := app.Run([]string{"talorix-cli", "--backend", "sqlite", "--data-dir", dir, "user", "list"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout.String(), "q@example.com") {
		t.Errorf("user not persisted in %s: %q", filepath.Join(dir, "panel.db"), stdout.String())
	}
}
