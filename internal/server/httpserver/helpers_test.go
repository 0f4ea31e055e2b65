package httpserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Talorix/panel/internal/core/domain"
	"github.com/Talorix/panel/internal/core/service"
	"github.com/Talorix/panel/internal/relay"
	"github.com/Talorix/panel/internal/server/config"
	"github.com/Talorix/panel/internal/server/httpserver/handler"
	"github.com/Talorix/panel/internal/storage/memory"
	"github.com/Talorix/panel/internal/telemetry/logger"
	"github.com/Talorix/panel/pkg/token"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// fakeAgent accepts agent connections, records the handshake and then
// plays a short script for the subscribed stream.
type fakeAgent struct {
	srv *httptest.Server

	mu     sync.Mutex
	frames []string
}

func newFakeAgent(t *testing.T) *fakeAgent {
	t.Helper()
	a := &fakeAgent{}
	up := websocket.Upgrader{}
	a.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		a.serve(conn)
	}))
	t.Cleanup(a.srv.Close)
	return a
}

func (a *fakeAgent) serve(conn *websocket.Conn) {
	var events []string
	for i := 0; i < 2; i++ {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env struct {
			Event string `json:"event"`
		}
		_ = json.Unmarshal(data, &env)
		events = append(events, env.Event)
		a.record(string(data))
	}

	switch events[1] {
	case "logs":
		_ = conn.WriteMessage(websocket.TextMessage, []byte("console ready"))
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			_ = conn.WriteMessage(mt, data)
		}
	case "stats":
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"console","payload":"noise"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"stats","payload":{"cpu":5}}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}

func (a *fakeAgent) record(frame string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.frames = append(a.frames, frame)
}

func (a *fakeAgent) received() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.frames...)
}

func (a *fakeAgent) node(t *testing.T) *domain.Node {
	t.Helper()
	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(a.srv.URL, "http://"))
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(portStr)
	return &domain.Node{ID: "node-1", Name: "n1", IP: host, Port: port, Key: "agent-secret"}
}

// countingDialer counts agent dials.
type countingDialer struct {
	inner relay.AgentDialer
	n     atomic.Int32
}

func (d *countingDialer) Connect(ctx context.Context, node *domain.Node, workloadID string, mode domain.Mode) (*websocket.Conn, error) {
	d.n.Add(1)
	return d.inner.Connect(ctx, node, workloadID, mode)
}

// testEnv is a running panel with an owner, a subuser, an outsider and one
// server on the fake agent's node.
type testEnv struct {
	store  *memory.Store
	signer *token.Signer
	agent  *fakeAgent
	dialer *countingDialer
	engine *relay.Engine
	srv    *httptest.Server

	owner, subuser, outsider *domain.User
	apiKey                   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	e := &testEnv{
		store:  memory.New(),
		signer: token.NewSigner(testSecret),
		agent:  newFakeAgent(t),
	}

	e.owner = mustUser(t, e.store, "owner@example.com")
	e.subuser = mustUser(t, e.store, "sub@example.com")
	e.outsider = mustUser(t, e.store, "out@example.com")

	node := e.agent.node(t)
	if err := e.store.CreateNode(ctx, node); err != nil {
		t.Fatal(err)
	}
	srv := &domain.Server{ID: "srv-1", Name: "mc", OwnerUserID: e.owner.ID, WorkloadID: "ctr-1", Node: domain.NodeRef{IP: node.IP}}
	if err := e.store.CreateServer(ctx, srv); err != nil {
		t.Fatal(err)
	}
	orphan := &domain.Server{ID: "srv-orphan", OwnerUserID: e.owner.ID, WorkloadID: "ctr-2", Node: domain.NodeRef{IP: "10.9.9.9"}}
	if err := e.store.CreateServer(ctx, orphan); err != nil {
		t.Fatal(err)
	}
	e.subuser.Grant(srv.ID)
	if err := e.store.UpdateUser(ctx, e.subuser); err != nil {
		t.Fatal(err)
	}

	key, raw, err := domain.NewAPIKey("ci", e.outsider.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.store.CreateAPIKey(ctx, key); err != nil {
		t.Fatal(err)
	}
	e.apiKey = raw

	e.dialer = &countingDialer{inner: relay.NewConnector(relay.ConnectorConfig{ConnectTimeout: 2 * time.Second})}
	e.engine = relay.NewEngine(e.dialer, relay.EngineConfig{WriteWait: time.Second}, logger.Discard(), nil)

	accounts := service.NewAccountService(e.store, e.store, e.signer, nil)
	h := handler.New(accounts, handler.CookieConfig{Name: "sid", TTL: time.Hour},
		handler.WithLogger(logger.Discard()),
		handler.WithActiveRelays(e.engine.Active),
	)
	router, err := NewRouter(RouterConfig{
		HTTP:        &config.HTTPConfig{},
		Handler:     h,
		Relay:       handler.RelayDeps{Resolver: service.NewAccessResolver(e.store), Engine: e.engine, WriteWait: time.Second},
		SessionAuth: service.NewSessionAuthenticator(e.store, e.store, e.signer, "sid"),
		APIKeyAuth:  service.NewAPIKeyAuthenticator(e.store, 0, 0),
		Users:       e.store,
		Metrics:     http.NotFoundHandler(),
		Logger:      logger.Discard(),
	})
	if err != nil {
		t.Fatal(err)
	}
	e.srv = httptest.NewServer(router)
	t.Cleanup(func() {
		e.engine.CloseAll()
		e.srv.Close()
	})
	return e
}

func mustUser(t *testing.T, s *memory.Store, email string) *domain.User {
	t.Helper()
	u, err := domain.NewUser(email, strings.Split(email, "@")[0], "correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return u
}

// sessionHeader opens a session for u and returns the cookie header.
func (e *testEnv) sessionHeader(t *testing.T, u *domain.User) http.Header {
	t.Helper()
	sess, err := domain.NewSession(u.ID, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.store.CreateSession(context.Background(), sess); err != nil {
		t.Fatal(err)
	}
	return http.Header{"Cookie": {"sid=" + e.signer.Sign(sess.ID)}}
}

func (e *testEnv) apiKeyHeader() http.Header {
	return http.Header{"Authorization": {"Bearer " + e.apiKey}}
}

func (e *testEnv) dial(t *testing.T, path string, h http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, h)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// expectClose reads until the connection closes and checks the close frame.
func expectClose(t *testing.T, conn *websocket.Conn, code int, reason string) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		ce, ok := err.(*websocket.CloseError)
		if !ok {
			t.Fatalf("read error = %v, want close frame %d %q", err, code, reason)
		}
		if ce.Code != code || ce.Text != reason {
			t.Fatalf("close = %d %q, want %d %q", ce.Code, ce.Text, code, reason)
		}
		return
	}
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(data)
}
