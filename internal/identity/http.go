package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"linkoraadmin/internal/logging"
	"linkoraadmin/internal/models"
)

// HTTPProvider talks to a Firebase-compatible Identity Toolkit REST API.
type HTTPProvider struct {
	baseURL    string
	refreshURL string
	apiKey     string
	client     *http.Client
	logger     *zap.Logger
}

func NewHTTPProvider(baseURL, refreshURL, apiKey string, logger *zap.Logger) *HTTPProvider {
	return &HTTPProvider{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		refreshURL: strings.TrimRight(strings.TrimSpace(refreshURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		client:     &http.Client{Timeout: 8 * time.Second},
		logger:     logging.OrNop(logger).Named("identity"),
	}
}

type providerError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *HTTPProvider) SignIn(ctx context.Context, email, password string) (Credentials, error) {
	var out struct {
		IDToken      string `json:"idToken"`
		RefreshToken string `json:"refreshToken"`
		LocalID      string `json:"localId"`
		Email        string `json:"email"`
		DisplayName  string `json:"displayName"`
	}
	body := map[string]any{"email": email, "password": password, "returnSecureToken": true}
	if err := p.postJSON(ctx, p.baseURL+"/accounts:signInWithPassword", body, &out); err != nil {
		return Credentials{}, err
	}
	id := models.Identity{UID: out.LocalID, Email: out.Email, DisplayName: out.DisplayName, ExpiresAt: tokenExpiry(out.IDToken)}
	return Credentials{IDToken: out.IDToken, RefreshToken: out.RefreshToken, Identity: id}, nil
}

func (p *HTTPProvider) RefreshToken(ctx context.Context, creds Credentials) (string, error) {
	if strings.TrimSpace(creds.RefreshToken) == "" {
		return "", ErrInvalidCredentials
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", creds.RefreshToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(p.refreshURL+"/token"), strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	var out struct {
		IDToken string `json:"id_token"`
	}
	if err := p.do(req, &out); err != nil {
		return "", err
	}
	if out.IDToken == "" {
		return "", fmt.Errorf("%w: empty id_token in refresh response", ErrUnavailable)
	}
	return out.IDToken, nil
}

func (p *HTTPProvider) Verify(ctx context.Context, token string) (models.Identity, error) {
	exp := tokenExpiry(token)
	if exp.IsZero() {
		return models.Identity{}, ErrInvalidToken
	}
	if time.Now().After(exp) {
		return models.Identity{}, ErrInvalidToken
	}
	var out struct {
		Users []struct {
			LocalID     string `json:"localId"`
			Email       string `json:"email"`
			DisplayName string `json:"displayName"`
			Disabled    bool   `json:"disabled"`
		} `json:"users"`
	}
	if err := p.postJSON(ctx, p.baseURL+"/accounts:lookup", map[string]string{"idToken": token}, &out); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return models.Identity{}, ErrInvalidToken
		}
		return models.Identity{}, err
	}
	if len(out.Users) == 0 || out.Users[0].Disabled {
		return models.Identity{}, ErrInvalidToken
	}
	u := out.Users[0]
	return models.Identity{UID: u.LocalID, Email: u.Email, DisplayName: u.DisplayName, ExpiresAt: exp}, nil
}

// SignOut is client-side only for this provider; tokens lapse at expiry.
func (p *HTTPProvider) SignOut(ctx context.Context, token string) error { return nil }

func (p *HTTPProvider) endpoint(u string) string {
	if p.apiKey == "" {
		return u
	}
	return u + "?key=" + url.QueryEscape(p.apiKey)
}

func (p *HTTPProvider) postJSON(ctx context.Context, u string, payload, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(u), bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return p.do(req, out)
}

func (p *HTTPProvider) do(req *http.Request, out any) error {
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("identity request failed", zap.String("path", req.URL.Path), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: identity HTTP %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var pe providerError
		_ = json.Unmarshal(body, &pe)
		p.logger.Info("identity request rejected", zap.Int("status", resp.StatusCode), zap.String("reason", pe.Error.Message))
		return classifyProviderMessage(pe.Error.Message)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return nil
}

func classifyProviderMessage(msg string) error {
	msg = strings.ToUpper(strings.TrimSpace(msg))
	switch {
	case strings.HasPrefix(msg, "INVALID_ID_TOKEN"), strings.HasPrefix(msg, "TOKEN_EXPIRED"), strings.HasPrefix(msg, "USER_NOT_FOUND"):
		return ErrInvalidToken
	case strings.HasPrefix(msg, "TOO_MANY_ATTEMPTS"):
		return fmt.Errorf("%w: %s", ErrUnavailable, msg)
	}
	return ErrInvalidCredentials
}

// tokenExpiry reads exp from a JWT without checking its signature.
// Signature trust comes from the provider lookup.
func tokenExpiry(token string) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
