// Package session relays identity tokens obtained by the browser into the HttpOnly
// session cookie the console uses for every later request.
package session

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"linkoraadmin/internal/config"
	"linkoraadmin/internal/logging"
	"linkoraadmin/internal/metrics"
	"linkoraadmin/internal/util"
)

var ErrTokenRequired = errors.New("Token is required")

const maxBodyBytes = 64 << 10

type tokenRequest struct {
	Token json.RawMessage `json:"token"`
}

// token returns the token string. Any other JSON type counts as no token.
func (t tokenRequest) token() string {
	var v string
	if len(t.Token) == 0 || json.Unmarshal(t.Token, &v) != nil {
		return ""
	}
	return v
}

// Relay owns the session cookie: issuing, overwriting and clearing it.
type Relay struct {
	cfg     config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewRelay(cfg config.Config, logger *zap.Logger, m *metrics.Metrics) *Relay {
	return &Relay{cfg: cfg, logger: logging.OrNop(logger).Named("session"), metrics: m}
}

func (s *Relay) CookieName() string { return s.cfg.SessionCookieName }

// Token returns the raw session cookie value of r, or "".
func (s *Relay) Token(r *http.Request) string {
	c, err := r.Cookie(s.cfg.SessionCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

// Issue writes token as the session cookie. An empty token is rejected without
// touching any cookie.
func (s *Relay) Issue(w http.ResponseWriter, r *http.Request, token, source string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrTokenRequired
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.ResolveCookieSecure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   s.cfg.SessionMaxAgeSec,
		Expires:  time.Now().Add(s.cfg.SessionMaxAge()),
	})
	s.metrics.SessionIssued(source)
	return nil
}

func (s *Relay) Clear(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.ResolveCookieSecure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(1, 0),
	})
}

// Create handles POST /api/session.
func (s *Relay) Create(w http.ResponseWriter, r *http.Request) {
	s.relay(w, r, "create", true)
}

// Verify handles POST /api/verify-session. It overwrites the cookie unconditionally;
// concurrent refreshes resolve to whichever response the browser applies last.
func (s *Relay) Verify(w http.ResponseWriter, r *http.Request) {
	s.relay(w, r, "verify", false)
}

func (s *Relay) relay(w http.ResponseWriter, r *http.Request, source string, withDetails bool) {
	util.NoStore(w)
	var req tokenRequest
	if err := util.DecodeJSON(r, maxBodyBytes, &req); err != nil {
		s.logger.Error("session relay failed", zap.String("source", source), zap.Error(err))
		if withDetails {
			util.WriteJSON(w, http.StatusInternalServerError, util.APIError{Error: "Internal server error", Details: err.Error()})
			return
		}
		util.WriteJSON(w, http.StatusInternalServerError, util.APIError{Error: "Internal server error"})
		return
	}
	if err := s.Issue(w, r, req.token(), source); err != nil {
		util.WriteJSON(w, http.StatusBadRequest, util.APIError{Error: err.Error()})
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Preflight answers OPTIONS for the relay endpoints after CORS headers are applied.
func Preflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
