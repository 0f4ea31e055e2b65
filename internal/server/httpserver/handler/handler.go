package handler

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/Talorix/panel/internal/core/domain"
	"github.com/Talorix/panel/internal/telemetry/logger"
)

// Handler serves the panel's JSON endpoints.
type Handler struct {
	accounts AccountService
	cookie   CookieConfig
	ready    ReadyFunc
	active   func() int
	log      logger.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithReadyCheck sets the readiness check used by GET /ready.
func WithReadyCheck(fn ReadyFunc) Option {
	return func(h *Handler) { h.ready = fn }
}

// WithActiveRelays reports the live relay count in health responses.
func WithActiveRelays(fn func() int) Option {
	return func(h *Handler) { h.active = fn }
}

// WithLogger sets the handler logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// New creates a Handler.
func New(accounts AccountService, cookie CookieConfig, opts ...Option) *Handler {
	if cookie.Name == "" {
		cookie.Name = "sid"
	}
	h := &Handler{
		accounts: accounts,
		cookie:   cookie,
		log:      logger.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.With("component", "http")
	return h
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := logger.RequestIDFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(NewResponse(requestID, data)); err != nil {
		h.log.Error("failed to encode response", "error", err)
	}
}

// handleServiceError converts service errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.DomainError
	if errors.As(err, &de) {
		status := StatusForCode(de.Code)
		if status >= http.StatusInternalServerError {
			logger.L(r.Context()).Error("request failed", "error", err)
		}
		WriteError(w, r, status, de.Code, de.Message, nonEmpty(de.Details))
		return
	}

	logger.L(r.Context()).Error("internal error", "error", err)
	WriteError(w, r, http.StatusInternalServerError, domain.ErrInternalServer.Code, domain.ErrInternalServer.Message, nil)
}

// WriteError writes an error response with standard envelope format.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := logger.RequestIDFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(NewErrorResponse(requestID, code, message, details))
}

// WriteDomainError writes err using its code and the matching status.
func WriteDomainError(w http.ResponseWriter, r *http.Request, err *domain.DomainError) {
	WriteError(w, r, StatusForCode(err.Code), err.Code, err.Message, nonEmpty(err.Details))
}

// StatusForCode maps an error code to an HTTP status. The numeric part of
// a code is the status followed by one discriminator digit, so
// TL-RELAY-4041 maps to 404.
func StatusForCode(code string) int {
	i := strings.LastIndexByte(code, '-')
	if i < 0 || len(code)-i-1 != 4 {
		return http.StatusInternalServerError
	}
	n, err := strconv.Atoi(code[i+1:])
	if err != nil {
		return http.StatusInternalServerError
	}
	status := n / 10
	if status < 400 || status > 599 || http.StatusText(status) == "" {
		return http.StatusInternalServerError
	}
	return status
}

// ClientIP returns the host part of the request's remote address.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func nonEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
