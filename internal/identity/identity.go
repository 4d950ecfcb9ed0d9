// Package identity authenticates console administrators and validates their ID tokens.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"linkoraadmin/internal/config"
	"linkoraadmin/internal/models"
	"linkoraadmin/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidToken       = errors.New("invalid_token")
	// ErrUnavailable marks transient provider or network failures. Only these are retried.
	ErrUnavailable = errors.New("identity_unavailable")
)

// Credentials is the result of a password sign-in.
type Credentials struct {
	IDToken      string
	RefreshToken string
	Identity     models.Identity
}

type Provider interface {
	SignIn(ctx context.Context, email, password string) (Credentials, error)
	// RefreshToken returns a freshly minted ID token for creds.
	RefreshToken(ctx context.Context, creds Credentials) (string, error)
	Verify(ctx context.Context, token string) (models.Identity, error)
	SignOut(ctx context.Context, token string) error
}

// AdminStore is the slice of the store the local provider needs.
type AdminStore interface {
	GetAdminByEmail(ctx context.Context, email string) (models.Admin, error)
	TouchAdminLastLogin(ctx context.Context, id string, at time.Time) error
	UpdateAdminPasswordHash(ctx context.Context, id, passwordHash string) error
}

var _ AdminStore = (*store.Store)(nil)

func NewProvider(cfg config.Config, st AdminStore, logger *zap.Logger) (Provider, error) {
	switch cfg.IdentityProvider {
	case "local":
		return NewLocalProvider(st, []byte(cfg.IdentitySigningKey), cfg.IdentityTokenTTL()), nil
	case "firebase":
		return NewHTTPProvider(cfg.IdentityBaseURL, cfg.IdentityRefreshURL, cfg.IdentityAPIKey, logger), nil
	}
	return nil, fmt.Errorf("unsupported identity provider %q", cfg.IdentityProvider)
}

type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
	// OnRetry is called before each wait with the attempt that just failed.
	OnRetry func(attempt int, err error)
}

// AcquireToken force-refreshes the ID token for creds, retrying transient failures
// with a fixed delay. Non-transient errors are returned immediately.
func AcquireToken(ctx context.Context, p Provider, creds Credentials, policy RetryPolicy) (string, error) {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		token, err := p.RefreshToken(ctx, creds)
		if err == nil {
			return token, nil
		}
		lastErr = err
		if !errors.Is(err, ErrUnavailable) || attempt == attempts {
			break
		}
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, err)
		}
		select {
		case <-time.After(policy.Delay):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		}
	}
	return "", lastErr
}

// Authenticate signs in with a password and then acquires a fresh token under policy.
func Authenticate(ctx context.Context, p Provider, email, password string, policy RetryPolicy) (Credentials, error) {
	creds, err := p.SignIn(ctx, email, password)
	if err != nil {
		return Credentials{}, err
	}
	token, err := AcquireToken(ctx, p, creds, policy)
	if err != nil {
		return Credentials{}, err
	}
	creds.IDToken = token
	return creds, nil
}
