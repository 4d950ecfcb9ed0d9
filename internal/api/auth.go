package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"linkoraadmin/internal/auth"
	"linkoraadmin/internal/identity"
	"linkoraadmin/internal/middleware"
	"linkoraadmin/internal/models"
	"linkoraadmin/internal/util"
	"linkoraadmin/internal/web"
)

const maxJSONBody = 64 << 10

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handlers) retryPolicy() identity.RetryPolicy {
	return identity.RetryPolicy{
		Attempts: h.Config.TokenRetryAttempts,
		Delay:    h.Config.TokenRetryDelay(),
		OnRetry: func(attempt int, err error) {
			h.Metrics.TokenRetry()
			h.logger.Warn("token acquisition retry", zap.Int("attempt", attempt), zap.Error(err))
		},
	}
}

// Login signs in with email and password, acquires a fresh token and relays it into
// the session cookie.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	rid := middleware.RequestID(r.Context())
	var req loginRequest
	if err := util.DecodeJSON(r, maxJSONBody, &req); err != nil {
		util.WriteError(w, 400, "bad_request", "invalid json", rid)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		util.WriteError(w, 400, "bad_request", "email and password are required", rid)
		return
	}

	creds, err := identity.Authenticate(r.Context(), h.Identity, req.Email, req.Password, h.retryPolicy())
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidCredentials):
			util.WriteError(w, 401, "invalid_credentials", "Invalid email or password", rid)
		case errors.Is(err, identity.ErrUnavailable):
			h.logger.Warn("identity provider unavailable", zap.String("request_id", rid), zap.Error(err))
			util.WriteError(w, 503, "identity_unavailable", "Sign-in is temporarily unavailable. Please try again.", rid)
		default:
			h.logger.Error("login failed", zap.String("request_id", rid), zap.Error(err))
			util.WriteError(w, 500, "internal_error", "Internal server error", rid)
		}
		return
	}

	if err := h.Relay.Issue(w, r, creds.IDToken, "login"); err != nil {
		util.WriteErrorDetails(w, 500, "session_failed", "Internal server error", err.Error(), rid)
		return
	}
	h.limiter.Reset("login:" + middleware.ClientIP(r, h.Config.TrustProxy))
	if h.Service != nil {
		if _, err := h.Service.Profile(r.Context(), creds.Identity); err != nil {
			h.logger.Warn("profile bootstrap failed", zap.String("email", creds.Identity.Email), zap.Error(err))
		}
	}
	csrf := h.issueCSRF(w, r)
	util.NoStore(w)
	util.WriteJSON(w, 200, map[string]any{"success": true, "identity": creds.Identity, "csrf_token": csrf})
}

// Logout clears the session even when the token no longer verifies.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if token := h.Relay.Token(r); token != "" {
		if id, err := h.Identity.Verify(r.Context(), token); err == nil {
			h.dropConsoleState(r, id)
		}
		if err := h.Identity.SignOut(r.Context(), token); err != nil {
			h.logger.Warn("provider sign-out failed", zap.Error(err))
		}
	}
	h.Relay.Clear(w, r)
	h.clearCSRF(w, r)
	util.WriteJSON(w, 200, map[string]bool{"success": true})
}

func (h *Handlers) dropConsoleState(r *http.Request, id models.Identity) {
	if h.Views != nil {
		h.Views.Drop(id.UID)
	}
	if h.Profiles != nil && h.Service != nil {
		if a, err := h.Service.Profile(r.Context(), id); err == nil {
			h.Profiles.Discard(a.ID)
		}
	}
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.Identity(r.Context())
	out := map[string]any{"identity": id, "csrf_token": h.ensureCSRF(w, r)}
	if h.Service != nil {
		if a, err := h.Service.Profile(r.Context(), id); err == nil {
			out["profile"] = a
		}
	}
	util.WriteJSON(w, 200, out)
}

func (h *Handlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	data := web.LoginData{Error: strings.TrimSpace(r.URL.Query().Get("error"))}
	if err := h.Pages.RenderLogin(w, data); err != nil {
		h.logger.Error("render login", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// ConsolePage renders a protected page shell. Loading a page refreshes the session cookie
// and resets the admin's list views so filters and selection start empty.
func (h *Handlers) ConsolePage(p web.Page) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := middleware.Identity(r.Context())
		if err := h.Relay.Issue(w, r, middleware.Token(r.Context()), "page"); err != nil {
			h.logger.Warn("session refresh failed", zap.Error(err))
		}
		if h.Views != nil {
			h.Views.Drop(id.UID)
		}
		data := web.ConsoleData{Page: p, Email: id.Email, AdminName: id.DisplayName, CSRFToken: h.ensureCSRF(w, r)}
		if h.Service != nil {
			if a, err := h.Service.Profile(r.Context(), id); err == nil {
				data.AdminName = a.DisplayName
				if pending, ok := h.pendingName(a.ID); ok {
					data.AdminName = pending
				}
			}
		}
		if err := h.Pages.RenderConsole(w, data); err != nil {
			h.logger.Error("render console", zap.String("page", p.Path), zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
	}
}

func (h *Handlers) pendingName(adminID string) (string, bool) {
	if h.Profiles == nil {
		return "", false
	}
	return h.Profiles.Pending(adminID)
}

func (h *Handlers) ensureCSRF(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(h.Config.CSRFCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return h.issueCSRF(w, r)
}

func (h *Handlers) issueCSRF(w http.ResponseWriter, r *http.Request) string {
	token, err := auth.RandomToken(32)
	if err != nil {
		h.logger.Error("csrf token", zap.Error(err))
		return ""
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.Config.CSRFCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false,
		Secure:   h.Config.ResolveCookieSecure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   h.Config.SessionMaxAgeSec,
	})
	return token
}

func (h *Handlers) clearCSRF(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.Config.CSRFCookieName,
		Value:    "",
		Path:     "/",
		Secure:   h.Config.ResolveCookieSecure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(1, 0),
	})
}
