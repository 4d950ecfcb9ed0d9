package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"linkoraadmin/internal/auth"
	"linkoraadmin/internal/models"
	"linkoraadmin/internal/store"
)

const localIssuer = "linkora-console"

type localClaims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// LocalProvider authenticates against the admins table and mints HS256 ID tokens.
type LocalProvider struct {
	st  AdminStore
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewLocalProvider(st AdminStore, key []byte, ttl time.Duration) *LocalProvider {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &LocalProvider{st: st, key: key, ttl: ttl, now: time.Now}
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (Credentials, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Credentials{}, ErrInvalidCredentials
	}
	a, err := p.st.GetAdminByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return Credentials{}, ErrInvalidCredentials
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !auth.VerifyPassword(a.PasswordHash, password) {
		return Credentials{}, ErrInvalidCredentials
	}
	_ = p.st.TouchAdminLastLogin(ctx, a.ID, p.now().UTC())
	if auth.NeedsRehash(a.PasswordHash) {
		// A failed upgrade keeps the old hash.
		if hash, err := auth.HashPassword(password); err == nil {
			_ = p.st.UpdateAdminPasswordHash(ctx, a.ID, hash)
		}
	}

	id := models.Identity{UID: a.ID, Email: a.Email, DisplayName: a.DisplayName}
	token, exp, err := p.mint(id)
	if err != nil {
		return Credentials{}, err
	}
	id.ExpiresAt = exp
	return Credentials{IDToken: token, Identity: id}, nil
}

func (p *LocalProvider) RefreshToken(ctx context.Context, creds Credentials) (string, error) {
	a, err := p.st.GetAdminByEmail(ctx, creds.Identity.Email)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	token, _, err := p.mint(models.Identity{UID: a.ID, Email: a.Email, DisplayName: a.DisplayName})
	return token, err
}

func (p *LocalProvider) Verify(ctx context.Context, token string) (models.Identity, error) {
	claims := &localClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return p.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(localIssuer),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil || !parsed.Valid {
		return models.Identity{}, ErrInvalidToken
	}
	a, err := p.st.GetAdminByEmail(ctx, claims.Email)
	if errors.Is(err, store.ErrNotFound) || (err == nil && a.ID != claims.Subject) {
		return models.Identity{}, ErrInvalidToken
	}
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	id := models.Identity{UID: a.ID, Email: a.Email, DisplayName: a.DisplayName}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

func (p *LocalProvider) SignOut(ctx context.Context, token string) error { return nil }

func (p *LocalProvider) mint(id models.Identity) (string, time.Time, error) {
	now := p.now().UTC()
	exp := now.Add(p.ttl)
	claims := localClaims{
		Email: id.Email,
		Name:  id.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    localIssuer,
			Subject:   id.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        fmt.Sprintf("%d", now.UnixNano()),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}
