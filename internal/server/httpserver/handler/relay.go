package handler

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/Talorix/panel/internal/core/domain"
	"github.com/Talorix/panel/internal/core/service"
	"github.com/Talorix/panel/internal/relay"
	"github.com/Talorix/panel/internal/telemetry/logger"
	"github.com/Talorix/panel/internal/telemetry/metric"
)

// Resolver turns a server id into a relay target under a policy.
type Resolver interface {
	Resolve(ctx context.Context, policy service.AccessPolicy, id domain.Identity, serverID string) (*service.Target, error)
}

// RelayRunner relays between an upgraded caller and a target agent.
type RelayRunner interface {
	Run(ctx context.Context, caller *websocket.Conn, target *service.Target, mode domain.Mode) error
}

// RelayDeps are shared by every relay endpoint.
type RelayDeps struct {
	Resolver  Resolver
	Engine    RelayRunner
	Upgrader  *websocket.Upgrader
	Metrics   *metric.Relay
	WriteWait time.Duration
}

// RelayEndpoint serves one relay route: it upgrades, authenticates,
// resolves the target and hands the caller to the engine.
type RelayEndpoint struct {
	deps   RelayDeps
	auth   service.Authenticator
	policy service.AccessPolicy
	mode   domain.Mode
}

// NewRelayEndpoint creates a RelayEndpoint.
func NewRelayEndpoint(deps RelayDeps, auth service.Authenticator, policy service.AccessPolicy, mode domain.Mode) *RelayEndpoint {
	if deps.Upgrader == nil {
		deps.Upgrader = NewUpgrader(nil)
	}
	return &RelayEndpoint{deps: deps, auth: auth, policy: policy, mode: mode}
}

// ServeHTTP implements http.Handler.
func (e *RelayEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	serverID := chi.URLParam(r, "id")
	log := logger.L(r.Context()).With("mode", e.mode.String(), "server_id", serverID)

	caller, err := e.deps.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered with an HTTP error.
		log.Debug("websocket upgrade failed", "error", err)
		return
	}

	id, err := e.auth.Authenticate(r)
	if err != nil {
		log.Info("relay rejected", "reason", domain.ReasonUnauthorized, "error", err)
		e.reject(caller, domain.ReasonUnauthorized)
		return
	}

	target, err := e.deps.Resolver.Resolve(r.Context(), e.policy, id, serverID)
	if err != nil {
		reason := domain.CloseReason(err)
		log.Info("relay rejected", "reason", reason, "identity", id.Subject(), "error", err)
		e.reject(caller, reason)
		return
	}

	log.Debug("relay accepted", "identity", id.Subject(), "node_ip", target.Node.IP)
	if err := e.deps.Engine.Run(r.Context(), caller, target, e.mode); err != nil {
		log.Warn("relay ended with agent failure", "error", err)
	}
}

func (e *RelayEndpoint) reject(caller *websocket.Conn, reason string) {
	e.deps.Metrics.Rejected(reason)
	relay.Reject(caller, reason, e.deps.WriteWait)
}

// NewUpgrader creates the websocket upgrader for relay endpoints. With no
// allowed origins only same-host browser origins are accepted; "*" accepts
// any origin. Requests without an Origin header, such as API clients, are
// always accepted.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	u := &websocket.Upgrader{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}
	if len(allowedOrigins) > 0 {
		u.CheckOrigin = originChecker(allowedOrigins)
	}
	return u
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	_, wildcard := set["*"]
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || wildcard {
			return true
		}
		if _, ok := set[strings.ToLower(origin)]; ok {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}
