package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func TestRelay_AuthFailureDialsNothing(t *testing.T) {
	e := newTestEnv(t)
	revoked := http.Header{"Authorization": {"Bearer tlx_not-a-real-key"}}
	forged := http.Header{"Cookie": {"sid=tlss-forged.deadbeef"}}

	tests := []struct {
		name   string
		path   string
		header http.Header
	}{
		{"console without cookie", "/console/srv-1", nil},
		{"stats with forged cookie", "/stats/srv-1", forged},
		{"api console without key", "/api/ws/console/srv-1", nil},
		{"api stats with unknown key", "/api/ws/stats/srv-1", revoked},
		{"session route ignores api key", "/console/srv-1", e.apiKeyHeader()},
		{"api route ignores session", "/api/ws/console/srv-1", e.sessionHeader(t, e.owner)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := e.dial(t, tt.path, tt.header)
			expectClose(t, conn, websocket.ClosePolicyViolation, "Unauthorized")
		})
	}
	if n := e.dialer.n.Load(); n != 0 {
		t.Errorf("agent dials = %d, want 0", n)
	}
}

func TestRelay_ResolveFailures(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name   string
		path   string
		header http.Header
		reason string
	}{
		{"outsider session", "/console/srv-1", e.sessionHeader(t, e.outsider), "Forbidden"},
		{"unknown server session", "/stats/srv-missing", e.sessionHeader(t, e.owner), "Server not found"},
		{"unknown server api key", "/api/ws/console/srv-missing", e.apiKeyHeader(), "Server not found"},
		{"server without node", "/console/srv-orphan", e.sessionHeader(t, e.owner), "Node not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := e.dial(t, tt.path, tt.header)
			expectClose(t, conn, websocket.ClosePolicyViolation, tt.reason)
		})
	}
	if n := e.dialer.n.Load(); n != 0 {
		t.Errorf("agent dials = %d, want 0", n)
	}
}

func TestRelay_ConsoleForOwnerAndSubuser(t *testing.T) {
	e := newTestEnv(t)

	for _, u := range []struct {
		name   string
		header http.Header
	}{
		{"owner", e.sessionHeader(t, e.owner)},
		{"subuser", e.sessionHeader(t, e.subuser)},
	} {
		t.Run(u.name, func(t *testing.T) {
			conn := e.dial(t, "/console/srv-1", u.header)
			if got := readText(t, conn); got != "console ready" {
				t.Fatalf("first frame = %q", got)
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte("say hi")); err != nil {
				t.Fatal(err)
			}
			if got := readText(t, conn); got != "say hi" {
				t.Errorf("echo = %q, want %q", got, "say hi")
			}
		})
	}

	frames := e.agent.received()
	if len(frames) < 2 {
		t.Fatalf("agent frames = %v", frames)
	}
	if !strings.Contains(frames[0], `"event":"auth"`) || !strings.Contains(frames[0], "agent-secret") {
		t.Errorf("first agent frame = %s, want auth with node key", frames[0])
	}
	if !strings.Contains(frames[1], `"event":"logs"`) || !strings.Contains(frames[1], `"containerId":"ctr-1"`) {
		t.Errorf("second agent frame = %s, want logs subscribe", frames[1])
	}
}

func TestRelay_StatsWithAPIKey(t *testing.T) {
	e := newTestEnv(t)

	for _, h := range []http.Header{
		e.apiKeyHeader(),
		{"X-Api-Key": {e.apiKey}},
	} {
		conn := e.dial(t, "/api/ws/stats/srv-1", h)
		if got := readText(t, conn); got != `{"cpu":5}` {
			t.Errorf("stats frame = %q, want only the stats payload", got)
		}
	}
	if n := e.dialer.n.Load(); n != 2 {
		t.Errorf("agent dials = %d, want 2", n)
	}

	keys, err := e.store.ListAPIKeys(context.Background(), e.outsider.ID)
	if err != nil || len(keys) != 1 || keys[0].LastUsed == 0 {
		t.Errorf("api key use not recorded: %+v, %v", keys, err)
	}
}

func TestHealthAndReady(t *testing.T) {
	e := newTestEnv(t)

	for _, path := range []string{"/health", "/ready"} {
		resp, err := http.Get(e.srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		var body struct {
			Code      string `json:"code"`
			RequestID string `json:"request_id"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK || body.Code != "OK" {
			t.Errorf("%s: status %d code %q", path, resp.StatusCode, body.Code)
		}
		if body.RequestID == "" || resp.Header.Get("X-Request-ID") != body.RequestID {
			t.Errorf("%s: request id %q, header %q", path, body.RequestID, resp.Header.Get("X-Request-ID"))
		}
	}
}

func TestLoginThenConsole(t *testing.T) {
	e := newTestEnv(t)

	body, _ := json.Marshal(map[string]string{"email": "owner@example.com", "password": "correct horse"})
	resp, err := http.Post(e.srv.URL+"/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}

	var sid *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "sid" {
			sid = c
		}
	}
	if sid == nil || !sid.HttpOnly {
		t.Fatalf("login cookie = %+v, want HttpOnly sid", sid)
	}

	conn := e.dial(t, "/console/srv-1", http.Header{"Cookie": {sid.Name + "=" + sid.Value}})
	if got := readText(t, conn); got != "console ready" {
		t.Errorf("first frame = %q", got)
	}
}

func TestRouter_NotFound(t *testing.T) {
	e := newTestEnv(t)
	resp, err := http.Get(e.srv.URL + "/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound || resp.Header.Get("X-Error-Code") != "TL-SYS-4040" {
		t.Errorf("status %d code %q", resp.StatusCode, resp.Header.Get("X-Error-Code"))
	}
}
