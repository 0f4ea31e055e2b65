package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Talorix/panel/internal/core/domain"
	"github.com/Talorix/panel/internal/core/service"
	"github.com/Talorix/panel/internal/telemetry/logger"
)

type fakeAccounts struct {
	loginErr  error
	lastLogin *service.LoginRequest
	loggedOut []string
	expiresAt int64
}

func (f *fakeAccounts) Login(_ context.Context, req *service.LoginRequest) (*service.LoginResponse, error) {
	f.lastLogin = req
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &service.LoginResponse{
		Session:     &domain.Session{ID: "tlss-1", UserID: "tlus-1", ExpiresAt: f.expiresAt},
		User:        &domain.User{ID: "tlus-1", Email: "a@example.com", Username: "a"},
		CookieValue: "tlss-1.sig",
	}, nil
}

func (f *fakeAccounts) Logout(_ context.Context, cookieValue string) error {
	f.loggedOut = append(f.loggedOut, cookieValue)
	return nil
}

func newTestHandler(acc AccountService, opts ...Option) *Handler {
	opts = append([]Option{WithLogger(logger.Discard())}, opts...)
	return New(acc, CookieConfig{Name: "sid", TTL: time.Hour, Secure: true}, opts...)
}

func TestStatusForCode(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{domain.ErrUnauthorized.Code, http.StatusUnauthorized},
		{domain.ErrForbidden.Code, http.StatusForbidden},
		{domain.ErrServerNotFound.Code, http.StatusNotFound},
		{domain.ErrAlreadyExists.Code, http.StatusConflict},
		{domain.ErrRateLimited.Code, http.StatusTooManyRequests},
		{domain.ErrBadRequest.Code, http.StatusBadRequest},
		{domain.ErrAgentUnavailable.Code, http.StatusBadGateway},
		{domain.ErrStorage.Code, http.StatusInternalServerError},
		{"TL-X-0990", http.StatusInternalServerError},
		{"nonsense", http.StatusInternalServerError},
		{"TL-X-abcd", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := StatusForCode(tt.code); got != tt.want {
				t.Errorf("StatusForCode(%q) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}

func TestHandleLogin(t *testing.T) {
	t.Run("success sets cookie", func(t *testing.T) {
		acc := &fakeAccounts{expiresAt: time.Now().Add(time.Hour).UnixMilli()}
		h := newTestHandler(acc)

		r := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@example.com","password":"pw"}`))
		r.RemoteAddr = "203.0.113.7:4000"
		r.Header.Set("User-Agent", "test-agent")
		w := httptest.NewRecorder()
		h.HandleLogin(w, r)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", w.Code, w.Body)
		}
		if acc.lastLogin.IPAddress != "203.0.113.7" || acc.lastLogin.UserAgent != "test-agent" {
			t.Errorf("login request = %+v", acc.lastLogin)
		}
		cookies := w.Result().Cookies()
		if len(cookies) != 1 {
			t.Fatalf("cookies = %v", cookies)
		}
		c := cookies[0]
		if c.Name != "sid" || c.Value != "tlss-1.sig" || !c.HttpOnly || !c.Secure || c.MaxAge != 3600 {
			t.Errorf("cookie = %+v", c)
		}

		var resp struct {
			Data LoginResponse `json:"data"`
		}
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		if resp.Data.User.ID != "tlus-1" || resp.Data.ExpiresAt.IsZero() {
			t.Errorf("response = %+v", resp.Data)
		}
		if strings.Contains(w.Body.String(), "password") {
			t.Error("response leaks password field")
		}
	})

	errCases := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"malformed body", `{`, nil, http.StatusBadRequest},
		{"bad credentials", `{}`, domain.ErrInvalidCredentials, http.StatusUnauthorized},
		{"rate limited", `{}`, domain.ErrRateLimited, http.StatusTooManyRequests},
		{"plain error", `{}`, errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range errCases {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(&fakeAccounts{loginErr: tt.err})
			w := httptest.NewRecorder()
			h.HandleLogin(w, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(tt.body)))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if len(w.Result().Cookies()) != 0 {
				t.Error("failed login set a cookie")
			}
		})
	}
}

func TestHandleLogout(t *testing.T) {
	acc := &fakeAccounts{}
	h := newTestHandler(acc)

	r := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	r.AddCookie(&http.Cookie{Name: "sid", Value: "tlss-1.sig"})
	w := httptest.NewRecorder()
	h.HandleLogout(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(acc.loggedOut) != 1 || acc.loggedOut[0] != "tlss-1.sig" {
		t.Errorf("logged out = %v", acc.loggedOut)
	}
	c := w.Result().Cookies()
	if len(c) != 1 || c[0].MaxAge >= 0 || c[0].Value != "" {
		t.Errorf("clearing cookie = %+v", c)
	}

	w = httptest.NewRecorder()
	h.HandleLogout(w, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	if w.Code != http.StatusOK || len(acc.loggedOut) != 1 {
		t.Errorf("logout without cookie: status %d, calls %d", w.Code, len(acc.loggedOut))
	}
}

func TestHandleReady(t *testing.T) {
	down := newTestHandler(&fakeAccounts{}, WithReadyCheck(func(context.Context) error {
		return errors.New("store closed")
	}))
	w := httptest.NewRecorder()
	down.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "store closed") {
		t.Errorf("status %d body %s", w.Code, w.Body)
	}

	up := newTestHandler(&fakeAccounts{}, WithActiveRelays(func() int { return 3 }))
	w = httptest.NewRecorder()
	up.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if !strings.Contains(w.Body.String(), `"active_relays":3`) {
		t.Errorf("body %s", w.Body)
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://panel.example.com/"})

	tests := []struct {
		name   string
		origin string
		host   string
		want   bool
	}{
		{"no origin", "", "panel.local", true},
		{"listed", "https://panel.example.com", "x", true},
		{"listed case insensitive", "https://PANEL.example.com", "x", true},
		{"same host", "http://panel.local:3000", "panel.local:3000", true},
		{"foreign", "https://evil.example.com", "panel.local:3000", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/console/x", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := check(r); got != tt.want {
				t.Errorf("check = %v, want %v", got, tt.want)
			}
		})
	}

	if !originChecker([]string{"*"})(func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Origin", "https://anything")
		return r
	}()) {
		t.Error("wildcard rejected an origin")
	}
}
