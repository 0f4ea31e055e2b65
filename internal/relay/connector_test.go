package relay

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Talorix/panel/internal/core/domain"
)

func TestConnector_HandshakeOrder(t *testing.T) {
	tests := []struct {
		mode domain.Mode
		sub  string
	}{
		{domain.ModeRaw, `{"event":"logs","payload":{"containerId":"ctr-9"}}`},
		{domain.ModeFiltered, `{"event":"stats","payload":{"containerId":"ctr-9"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			agent := newFakeAgent(t)
			c := NewConnector(ConnectorConfig{})

			conn, err := c.Connect(context.Background(), agent.node(t), "ctr-9", tt.mode)
			if err != nil {
				t.Fatalf("Connect() error = %v", err)
			}
			defer conn.Close()

			if got := agent.next(t); got != `{"event":"auth","payload":{"key":"node-secret"}}` {
				t.Errorf("first frame = %s", got)
			}
			if got := agent.next(t); got != tt.sub {
				t.Errorf("second frame = %s, want %s", got, tt.sub)
			}
		})
	}
}

func TestConnector_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	c := NewConnector(ConnectorConfig{})
	_, err = c.Connect(context.Background(), &domain.Node{IP: "127.0.0.1", Port: addr.Port, Key: "k"}, "w", domain.ModeRaw)
	if !errors.Is(err, domain.ErrAgentUnavailable) {
		t.Errorf("Connect() error = %v, want ErrAgentUnavailable", err)
	}
}

func TestConnector_ConnectTimeout(t *testing.T) {
	node, _ := silentAgent(t)
	c := NewConnector(ConnectorConfig{ConnectTimeout: 100 * time.Millisecond})

	start := time.Now()
	_, err := c.Connect(context.Background(), node, "w", domain.ModeRaw)
	if !errors.Is(err, domain.ErrAgentUnavailable) {
		t.Fatalf("Connect() error = %v, want ErrAgentUnavailable", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Errorf("Connect() took %v, timeout not applied", time.Since(start))
	}
}

func TestConnector_ContextCancel(t *testing.T) {
	tests := []struct {
		name string
		cfg  ConnectorConfig
	}{
		{"unbounded dial", ConnectorConfig{}},
		{"bounded dial", ConnectorConfig{ConnectTimeout: time.Minute}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, accepted := silentAgent(t)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			errCh := make(chan error, 1)
			go func() {
				_, err := NewConnector(tt.cfg).Connect(ctx, node, "w", domain.ModeRaw)
				errCh <- err
			}()
			waitAccepted(t, accepted)
			cancel()

			select {
			case err := <-errCh:
				if !errors.Is(err, domain.ErrAgentUnavailable) {
					t.Errorf("Connect() error = %v, want ErrAgentUnavailable", err)
				}
			case <-time.After(3 * time.Second):
				t.Fatal("Connect() ignored cancellation during the upgrade")
			}
		})
	}
}

func TestConnector_CancelDuringAckWait(t *testing.T) {
	agent := newFakeAgent(t)
	c := NewConnector(ConnectorConfig{AckTimeout: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Connect(ctx, agent.node(t), "w", domain.ModeRaw)
		errCh <- err
	}()
	agent.next(t) // auth sent, connector now waits for the reply
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, domain.ErrAgentUnavailable) {
			t.Errorf("Connect() error = %v, want ErrAgentUnavailable", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Connect() ignored cancellation while waiting for the ack")
	}
}

func TestConnector_ConnectionOutlivesDial(t *testing.T) {
	// The dial context ends once Connect returns; the agent socket must not.
	agent := newFakeAgent(t)
	c := NewConnector(ConnectorConfig{ConnectTimeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())

	conn, err := c.Connect(ctx, agent.node(t), "w", domain.ModeRaw)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer conn.Close()
	cancel()
	agent.next(t)
	agent.next(t)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("after cancel")); err != nil {
		t.Fatalf("write after cancel: %v", err)
	}
	if got := agent.next(t); got != "after cancel" {
		t.Errorf("agent got %q", got)
	}
}

func TestConnector_AckWait(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		agent := newFakeAgent(t)
		agent.onAuth = []byte(`{"event":"auth","payload":{"ok":true}}`)
		c := NewConnector(ConnectorConfig{AckTimeout: 2 * time.Second})

		conn, err := c.Connect(context.Background(), agent.node(t), "ctr-1", domain.ModeRaw)
		if err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		defer conn.Close()
		agent.next(t)
		if got := agent.next(t); got != `{"event":"logs","payload":{"containerId":"ctr-1"}}` {
			t.Errorf("subscribe frame = %s", got)
		}
	})

	t.Run("rejected", func(t *testing.T) {
		agent := newFakeAgent(t)
		agent.onAuth = []byte(`{"event":"auth","payload":{"error":"bad key"}}`)
		c := NewConnector(ConnectorConfig{AckTimeout: 2 * time.Second})

		if _, err := c.Connect(context.Background(), agent.node(t), "ctr-1", domain.ModeRaw); !errors.Is(err, domain.ErrAgentUnavailable) {
			t.Errorf("Connect() error = %v, want ErrAgentUnavailable", err)
		}
	})

	t.Run("null error accepted", func(t *testing.T) {
		agent := newFakeAgent(t)
		agent.onAuth = []byte(`{"event":"auth","payload":{"error":null}}`)
		c := NewConnector(ConnectorConfig{AckTimeout: 2 * time.Second})

		conn, err := c.Connect(context.Background(), agent.node(t), "ctr-1", domain.ModeRaw)
		if err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		conn.Close()
	})

	t.Run("case-folded event ignored", func(t *testing.T) {
		agent := newFakeAgent(t)
		agent.onAuth = []byte(`{"Event":"auth","payload":{}}`)
		c := NewConnector(ConnectorConfig{AckTimeout: 200 * time.Millisecond})

		if _, err := c.Connect(context.Background(), agent.node(t), "ctr-1", domain.ModeRaw); !errors.Is(err, domain.ErrAgentUnavailable) {
			t.Errorf("Connect() error = %v, want ErrAgentUnavailable", err)
		}
	})

	t.Run("silent agent", func(t *testing.T) {
		agent := newFakeAgent(t)
		c := NewConnector(ConnectorConfig{AckTimeout: 100 * time.Millisecond})

		if _, err := c.Connect(context.Background(), agent.node(t), "ctr-1", domain.ModeRaw); !errors.Is(err, domain.ErrAgentUnavailable) {
			t.Errorf("Connect() error = %v, want ErrAgentUnavailable", err)
		}
		agent.next(t)
		select {
		case extra := <-agent.received:
			t.Errorf("subscribe sent without ack: %s", extra)
		case <-time.After(100 * time.Millisecond):
		}
	})
}
