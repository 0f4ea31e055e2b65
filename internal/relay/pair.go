package relay

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Talorix/panel/internal/core/domain"
	"github.com/Talorix/panel/internal/telemetry/logger"
	"github.com/Talorix/panel/internal/telemetry/metric"
)

// State is the lifecycle state of a Pair.
type State int32

const (
	StateConnecting State = iota
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	default:
		return "closed"
	}
}

// wsConn serializes data writes to one websocket.
type wsConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) write(messageType int, data []byte, wait time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(wait))
	return c.ws.WriteMessage(messageType, data)
}

// shut sends a close frame and closes the socket. Errors are ignored: the
// peer may already be gone.
func (c *wsConn) shut(code int, reason string, wait time.Duration) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wait))
	_ = c.ws.Close()
}

// Pair is one caller connection coupled with one agent connection.
type Pair struct {
	id     uint64
	mode   domain.Mode
	caller *wsConn

	mu    sync.Mutex // guards agent and state transitions
	agent *wsConn
	state atomic.Int32

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}

	writeWait time.Duration
	metrics   *metric.Relay
	log       logger.Logger
}

// ID returns the pair's id, unique within its engine.
func (p *Pair) ID() uint64 { return p.id }

// Mode returns the relay mode.
func (p *Pair) Mode() domain.Mode { return p.mode }

// State returns the current state.
func (p *Pair) State() State { return State(p.state.Load()) }

// Done is closed once the pair reaches StateClosed.
func (p *Pair) Done() <-chan struct{} { return p.done }

// attach installs the agent connection and moves to StateStreaming.
// It reports false if the pair closed while the agent was connecting.
func (p *Pair) attach(agent *websocket.Conn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.State() == StateClosed {
		return false
	}
	p.agent = &wsConn{ws: agent}
	p.state.Store(int32(StateStreaming))
	return true
}

func (p *Pair) agentConn() *wsConn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.agent
}

// Close tears down both sockets. The caller receives a close frame with
// code and reason. Only the first call has any effect.
func (p *Pair) Close(code int, reason string) {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.state.Store(int32(StateClosed))
		agent := p.agent
		p.mu.Unlock()

		p.cancel()
		p.caller.shut(code, reason, p.writeWait)
		if agent != nil {
			agent.shut(websocket.CloseNormalClosure, "", p.writeWait)
		}
		close(p.done)
		p.log.Debug("relay pair closed", "code", code, "reason", reason)
	})
}

func (p *Pair) fail() {
	p.Close(websocket.ClosePolicyViolation, "")
}

// pumpCaller forwards caller frames to the agent. Frames that arrive
// before the agent is attached are dropped.
func (p *Pair) pumpCaller() {
	mode := p.mode.String()
	for {
		mt, data, err := p.caller.ws.ReadMessage()
		if err != nil {
			p.fail()
			return
		}
		if p.State() != StateStreaming {
			p.metrics.Dropped(mode, "not_streaming")
			continue
		}
		agent := p.agentConn()
		if agent == nil {
			continue
		}
		if err := agent.write(mt, data, p.writeWait); err != nil {
			p.fail()
			return
		}
		p.metrics.Forwarded(mode, metric.DirectionToAgent)
	}
}

// pumpAgent forwards agent frames to the caller, filtering in ModeFiltered.
func (p *Pair) pumpAgent(agent *wsConn) {
	mode := p.mode.String()
	for {
		mt, data, err := agent.ws.ReadMessage()
		if err != nil {
			p.fail()
			return
		}
		if p.State() == StateClosed {
			return
		}
		if p.mode == domain.ModeFiltered {
			out, ok := FilterStats(data)
			if !ok {
				p.metrics.Dropped(mode, "filtered")
				continue
			}
			mt, data = websocket.TextMessage, out
		}
		if err := p.caller.write(mt, data, p.writeWait); err != nil {
			p.fail()
			return
		}
		p.metrics.Forwarded(mode, metric.DirectionToCaller)
	}
}

// armKeepalive installs the caller read deadline and pong handler. It must
// run before the caller pump starts reading.
func (p *Pair) armKeepalive(period time.Duration) {
	pongWait := 2 * period
	_ = p.caller.ws.SetReadDeadline(time.Now().Add(pongWait))
	p.caller.ws.SetPongHandler(func(string) error {
		return p.caller.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// pinger pings the caller every period. Missing pongs end the pair through
// the caller's read deadline.
func (p *Pair) pinger(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			if err := p.caller.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(p.writeWait)); err != nil {
				p.fail()
				return
			}
		}
	}
}
