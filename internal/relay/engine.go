package relay

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Talorix/panel/internal/core/domain"
	"github.com/Talorix/panel/internal/core/service"
	"github.com/Talorix/panel/internal/telemetry/logger"
	"github.com/Talorix/panel/internal/telemetry/metric"
	"github.com/Talorix/panel/pkg/cmap"
)

const defaultWriteWait = 10 * time.Second

// AgentDialer opens a handshaken agent connection.
type AgentDialer interface {
	Connect(ctx context.Context, node *domain.Node, workloadID string, mode domain.Mode) (*websocket.Conn, error)
}

// EngineConfig configures relay pairs.
type EngineConfig struct {
	// WriteWait bounds every write to either socket (default 10s).
	WriteWait time.Duration

	// PingPeriod enables caller keepalive pings when positive.
	PingPeriod time.Duration

	// MaxMessageSize limits caller frames in bytes (0 = unlimited).
	MaxMessageSize int64
}

// Engine runs relay pairs and tracks the live ones.
type Engine struct {
	dialer  AgentDialer
	cfg     EngineConfig
	log     logger.Logger
	metrics *metric.Relay

	nextID atomic.Uint64
	pairs  *cmap.Map[uint64, *Pair]
}

// NewEngine creates an Engine. metrics may be nil.
func NewEngine(dialer AgentDialer, cfg EngineConfig, log logger.Logger, metrics *metric.Relay) *Engine {
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaultWriteWait
	}
	if log == nil {
		log = logger.Default()
	}
	return &Engine{
		dialer:  dialer,
		cfg:     cfg,
		log:     log.With("component", "relay"),
		metrics: metrics,
		pairs:   cmap.New[uint64, *Pair](),
	}
}

// Run relays between caller and target's agent until either side ends.
// It owns caller: the socket is closed when Run returns. The returned
// error is the agent connect failure, if any. A connect abandoned because
// the caller left is not an error.
func (e *Engine) Run(ctx context.Context, caller *websocket.Conn, target *service.Target, mode domain.Mode) error {
	p := e.newPair(ctx, caller, mode, target)
	e.pairs.Set(p.id, p)
	e.metrics.PairOpened(mode.String())
	defer func() {
		e.pairs.Delete(p.id)
		e.metrics.PairClosed(mode.String())
	}()

	if e.cfg.MaxMessageSize > 0 {
		caller.SetReadLimit(e.cfg.MaxMessageSize)
	}
	if e.cfg.PingPeriod > 0 {
		p.armKeepalive(e.cfg.PingPeriod)
		go p.pinger(e.cfg.PingPeriod)
	}
	go p.pumpCaller()
	go func() {
		select {
		case <-ctx.Done():
			p.Close(websocket.CloseGoingAway, "")
		case <-p.done:
		}
	}()

	start := time.Now()
	agent, err := e.dialer.Connect(p.ctx, target.Node, target.Server.WorkloadID, mode)
	if err != nil {
		if p.ctx.Err() != nil {
			// The caller left or the engine is shutting down.
			p.log.Debug("agent connect abandoned", "error", err)
			p.fail()
			return nil
		}
		e.metrics.ObserveDial(time.Since(start))
		p.log.Warn("agent connect failed", "error", err)
		e.metrics.Rejected("")
		p.fail()
		return err
	}
	e.metrics.ObserveDial(time.Since(start))
	if !p.attach(agent) {
		_ = agent.Close()
		return nil
	}
	p.log.Debug("relay streaming")

	p.pumpAgent(p.agentConn())
	<-p.done
	return nil
}

func (e *Engine) newPair(ctx context.Context, caller *websocket.Conn, mode domain.Mode, target *service.Target) *Pair {
	id := e.nextID.Add(1)
	pctx, cancel := context.WithCancel(ctx)
	return &Pair{
		id:        id,
		mode:      mode,
		caller:    &wsConn{ws: caller},
		ctx:       pctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		writeWait: e.cfg.WriteWait,
		metrics:   e.metrics,
		log: e.log.With(
			"pair", id,
			"mode", mode.String(),
			"server_id", target.Server.ID,
			"node_ip", target.Node.IP,
		),
	}
}

// Active returns the number of live pairs.
func (e *Engine) Active() int {
	return e.pairs.Count()
}

// CloseAll closes every live pair with a going-away frame.
func (e *Engine) CloseAll() {
	for _, p := range e.pairs.Values() {
		p.Close(websocket.CloseGoingAway, "server shutting down")
	}
}

// Reject closes a caller that never reached a pair with a policy-violation
// frame carrying reason.
func Reject(caller *websocket.Conn, reason string, wait time.Duration) {
	if wait <= 0 {
		wait = defaultWriteWait
	}
	(&wsConn{ws: caller}).shut(websocket.ClosePolicyViolation, reason, wait)
}
