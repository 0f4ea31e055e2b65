package relay

import (
	"errors"
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
	"github.com/Talorix/panel/internal/telemetry/logger"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// fakeAgent is a node agent that records every frame it receives.
type fakeAgent struct {
	srv      *httptest.Server
	dials    atomic.Int32
	conns    chan *websocket.Conn
	received chan []byte
	closed   chan error

	// onAuth, if set, is sent back after the first frame arrives.
	onAuth []byte

	// gate, if set, holds every upgrade until it is closed.
	gate chan struct{}
}

func newFakeAgent(t *testing.T) *fakeAgent {
	t.Helper()
	return newGatedAgent(t, nil)
}

func newGatedAgent(t *testing.T, gate chan struct{}) *fakeAgent {
	t.Helper()
	a := &fakeAgent{
		conns:    make(chan *websocket.Conn, 8),
		received: make(chan []byte, 256),
		closed:   make(chan error, 8),
		gate:     gate,
	}
	a.srv = httptest.NewServer(http.HandlerFunc(a.serve))
	t.Cleanup(a.srv.Close)
	return a
}

func (a *fakeAgent) serve(w http.ResponseWriter, r *http.Request) {
	a.dials.Add(1)
	if a.gate != nil {
		<-a.gate
	}
	c, err := testUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	a.conns <- c
	first := true
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			a.closed <- err
			return
		}
		a.received <- data
		if first && a.onAuth != nil {
			_ = c.WriteMessage(websocket.TextMessage, a.onAuth)
		}
		first = false
	}
}

func (a *fakeAgent) node(t *testing.T) *domain.Node {
	t.Helper()
	host, port, err := net.SplitHostPort(strings.TrimPrefix(a.srv.URL, "http://"))
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}
	p, _ := strconv.Atoi(port)
	return &domain.Node{ID: "tlnd-test", IP: host, Port: p, Key: "node-secret"}
}

func (a *fakeAgent) conn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-a.conns:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("agent was never dialed")
		return nil
	}
}

func (a *fakeAgent) next(t *testing.T) string {
	t.Helper()
	select {
	case b := <-a.received:
		return string(b)
	case <-time.After(5 * time.Second):
		t.Fatal("agent received nothing")
		return ""
	}
}

func target(node *domain.Node) *service.Target {
	return &service.Target{
		Server: &domain.Server{ID: "tlsv-test", WorkloadID: "ctr-1", Node: domain.NodeRef{IP: node.IP}},
		Node:   node,
	}
}

// startRelay serves a caller endpoint that relays to tgt in mode.
func startRelay(t *testing.T, e *Engine, tgt *service.Target, mode domain.Mode) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = e.Run(r.Context(), c, tgt, mode)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialCaller(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial(%s): %v", url, err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func readFrame(t *testing.T, c *websocket.Conn) (int, string) {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	mt, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	return mt, string(data)
}

// expectClose reads until the connection closes and checks the close frame.
func expectClose(t *testing.T, c *websocket.Conn, code int, reason string) {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, data, err := c.ReadMessage()
		if err == nil {
			t.Fatalf("unexpected frame %q while waiting for close", data)
		}
		var ce *websocket.CloseError
		if !errors.As(err, &ce) {
			t.Fatalf("read error = %v, want close frame %d", err, code)
		}
		if ce.Code != code || ce.Text != reason {
			t.Fatalf("close = (%d, %q), want (%d, %q)", ce.Code, ce.Text, code, reason)
		}
		return
	}
}

// silentAgent accepts TCP connections and never answers the websocket
// handshake. It reports each accepted connection on the returned channel.
func silentAgent(t *testing.T) (*domain.Node, <-chan struct{}) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	accepted := make(chan struct{}, 8)
	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
			accepted <- struct{}{}
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})
	return &domain.Node{IP: "127.0.0.1", Port: ln.Addr().(*net.TCPAddr).Port, Key: "k"}, accepted
}

func waitAccepted(t *testing.T, accepted <-chan struct{}) {
	t.Helper()
	select {
	case <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("agent was never dialed")
	}
}

func newTestEngine(cfg ConnectorConfig) *Engine {
	return NewEngine(NewConnector(cfg), EngineConfig{WriteWait: time.Second}, logger.Discard(), nil)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
