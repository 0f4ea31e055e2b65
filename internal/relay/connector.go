package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Talorix/panel/internal/core/domain"
)

// ConnectorConfig configures agent connections.
type ConnectorConfig struct {
	// ConnectTimeout bounds dialing the agent. Zero waits as long as the
	// caller stays connected.
	ConnectTimeout time.Duration

	// AckTimeout, when positive, makes the connector wait for the agent to
	// answer the auth frame before subscribing. Zero sends auth and
	// subscribe back to back without waiting.
	AckTimeout time.Duration

	// WriteWait bounds each handshake write (default 10s).
	WriteWait time.Duration
}

// Connector opens agent connections.
type Connector struct {
	dialer    *websocket.Dialer
	netDialer net.Dialer
	cfg       ConnectorConfig
}

// NewConnector creates a Connector.
func NewConnector(cfg ConnectorConfig) *Connector {
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaultWriteWait
	}
	return &Connector{
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.ConnectTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
		cfg: cfg,
	}
}

// Connect dials node's agent and subscribes to workloadID's stream for
// mode. The agent's reply to auth is not awaited unless AckTimeout is set.
// Cancelling ctx aborts the dial and the handshake at any point.
func (c *Connector) Connect(ctx context.Context, node *domain.Node, workloadID string, mode domain.Mode) (*websocket.Conn, error) {
	if c.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		defer cancel()
	}

	// gorilla maps only context deadlines onto the socket, so a cancel would
	// not interrupt the upgrade read. Close the raw connection instead.
	var stop func() bool
	dialer := *c.dialer
	dialer.NetDialContext = func(dialCtx context.Context, network, addr string) (net.Conn, error) {
		raw, err := c.netDialer.DialContext(dialCtx, network, addr)
		if err != nil {
			return nil, err
		}
		stop = context.AfterFunc(ctx, func() { _ = raw.Close() })
		return raw, nil
	}
	release := func() bool {
		return stop == nil || stop()
	}

	conn, resp, err := dialer.DialContext(ctx, node.AgentURL(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		release()
		return nil, domain.ErrAgentUnavailable.WithCause(err)
	}

	if err := c.handshake(conn, node.Key, workloadID, mode); err != nil {
		release()
		_ = conn.Close()
		return nil, domain.ErrAgentUnavailable.WithCause(err)
	}
	if !release() {
		_ = conn.Close()
		return nil, domain.ErrAgentUnavailable.WithCause(ctx.Err())
	}
	return conn, nil
}

func (c *Connector) handshake(conn *websocket.Conn, key, workloadID string, mode domain.Mode) error {
	auth, err := encodeEnvelope(EventAuth, authPayload{Key: key})
	if err != nil {
		return err
	}
	if err := c.write(conn, auth); err != nil {
		return err
	}

	if c.cfg.AckTimeout > 0 {
		if err := awaitAck(conn, c.cfg.AckTimeout); err != nil {
			return err
		}
	}

	sub, err := encodeEnvelope(mode.SubscribeEvent(), subscribePayload{ContainerID: workloadID})
	if err != nil {
		return err
	}
	return c.write(conn, sub)
}

func (c *Connector) write(conn *websocket.Conn, data []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
	err := conn.WriteMessage(websocket.TextMessage, data)
	_ = conn.SetWriteDeadline(time.Time{})
	return err
}

// awaitAck reads until the agent sends an auth event without an error
// field. Other frames are discarded.
func awaitAck(conn *websocket.Conn, timeout time.Duration) error {
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		event, payload, ok := decodeEvent(data)
		if !ok || event != EventAuth {
			continue
		}
		var reply map[string]json.RawMessage
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &reply)
		}
		if rejected(reply["error"]) {
			return domain.ErrAgentUnavailable.WithDetails("agent rejected auth")
		}
		return nil
	}
}

// rejected reports whether an auth reply's error field carries a value.
func rejected(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "false", `""`:
		return false
	}
	return true
}
