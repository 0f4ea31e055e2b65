package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Talorix/panel/internal/core/domain"
	"github.com/Talorix/panel/internal/core/service"
	"github.com/Talorix/panel/internal/server/config"
	"github.com/Talorix/panel/internal/server/httpserver/handler"
	"github.com/Talorix/panel/internal/telemetry/logger"
)

// RouterConfig holds everything the router wires together.
type RouterConfig struct {
	HTTP *config.HTTPConfig

	// Handler serves the JSON endpoints.
	Handler *handler.Handler

	// Relay is shared by the four relay endpoints.
	Relay handler.RelayDeps

	SessionAuth service.Authenticator
	APIKeyAuth  service.Authenticator

	// Users backs the owner-or-subuser policy of the session routes.
	Users service.IdentityStore

	// Metrics serves /metrics. Nil leaves the route unregistered.
	Metrics http.Handler

	Logger logger.Logger
}

// NewRouter builds the panel's HTTP handler.
func NewRouter(cfg RouterConfig) (http.Handler, error) {
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	acl, err := NetworkACL(cfg.HTTP.AllowList)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	if cfg.HTTP.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(
		RequestID(log.With("component", "http")),
		Recover(),
		Audit(),
		acl,
		CORS(cfg.HTTP.AllowedOrigins),
	)

	r.Get("/health", cfg.Handler.HandleHealth)
	r.Get("/ready", cfg.Handler.HandleReady)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", cfg.Handler.HandleLogin)
		r.Post("/logout", cfg.Handler.HandleLogout)
	})

	sessionPolicy := service.OwnerOrSubuserPolicy{Users: cfg.Users}
	r.Method(http.MethodGet, "/console/{id}",
		handler.NewRelayEndpoint(cfg.Relay, cfg.SessionAuth, sessionPolicy, domain.ModeRaw))
	r.Method(http.MethodGet, "/stats/{id}",
		handler.NewRelayEndpoint(cfg.Relay, cfg.SessionAuth, sessionPolicy, domain.ModeFiltered))

	r.Route("/api/ws", func(r chi.Router) {
		r.Method(http.MethodGet, "/console/{id}",
			handler.NewRelayEndpoint(cfg.Relay, cfg.APIKeyAuth, service.KeyHolderPolicy{}, domain.ModeRaw))
		r.Method(http.MethodGet, "/stats/{id}",
			handler.NewRelayEndpoint(cfg.Relay, cfg.APIKeyAuth, service.KeyHolderPolicy{}, domain.ModeFiltered))
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handler.WriteError(w, r, http.StatusNotFound, "TL-SYS-4040", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		handler.WriteError(w, r, http.StatusMethodNotAllowed, "TL-SYS-4050", "method not allowed", nil)
	})

	return r, nil
}
