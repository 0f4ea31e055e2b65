package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/Talorix/panel/internal/core/domain"
	"github.com/Talorix/panel/internal/core/service"
	"github.com/Talorix/panel/internal/telemetry/logger"
)

const maxLoginBody = 4 << 10

// AccountService opens and closes browser sessions.
type AccountService interface {
	Login(ctx context.Context, req *service.LoginRequest) (*service.LoginResponse, error)
	Logout(ctx context.Context, cookieValue string) error
}

// CookieConfig describes the session cookie.
type CookieConfig struct {
	Name   string
	TTL    time.Duration
	Secure bool
}

// HandleLogin handles POST /auth/login.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxLoginBody))
	if err := dec.Decode(&req); err != nil {
		WriteDomainError(w, r, domain.ErrBadRequest.WithDetails("invalid JSON body"))
		return
	}

	resp, err := h.accounts.Login(r.Context(), &service.LoginRequest{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		logger.L(r.Context()).Info("login rejected", "code", domain.GetErrorCode(err), "client_ip", ClientIP(r))
		h.handleServiceError(w, r, err)
		return
	}

	http.SetCookie(w, h.sessionCookie(resp.CookieValue, int(h.cookie.TTL.Seconds())))
	logger.L(r.Context()).Info("login succeeded", "user_id", resp.User.ID, "session_id", resp.Session.ID)

	out := LoginResponse{
		User: UserResponse{
			ID:       resp.User.ID,
			Email:    resp.User.Email,
			Username: resp.User.Username,
		},
	}
	if resp.Session.ExpiresAt > 0 {
		out.ExpiresAt = time.UnixMilli(resp.Session.ExpiresAt).UTC()
	}
	h.writeJSON(w, r, http.StatusOK, out)
}

// HandleLogout handles POST /auth/logout. It succeeds whether or not the
// request carried a live session.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(h.cookie.Name); err == nil && c.Value != "" {
		if err := h.accounts.Logout(r.Context(), c.Value); err != nil {
			h.handleServiceError(w, r, err)
			return
		}
	}
	http.SetCookie(w, h.sessionCookie("", -1))
	h.writeJSON(w, r, http.StatusOK, nil)
}

func (h *Handler) sessionCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     h.cookie.Name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
