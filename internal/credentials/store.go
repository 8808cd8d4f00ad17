// Package credentials reads and writes per-site OAuth credentials in the secret store.
package credentials

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Netsync-Automation/PracticeTools-sub004/internal/apperrors"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/models"
)

// SecretStore is the secret store interface: Get(path) / Put(path, value).
type SecretStore interface {
	Get(ctx context.Context, path string) (string, error)
	Put(ctx context.Context, path, value string) error
}

// Credentials are the OAuth values for one site.
type Credentials struct {
	ClientID     string
	ClientSecret string
	AccessToken  string
	RefreshToken string
}

// Store resolves a site's secret references.
type Store struct {
	secrets SecretStore
	logger  *zap.Logger
}

// NewStore creates a credential store adapter.
func NewStore(secrets SecretStore, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{secrets: secrets, logger: logger}
}

// Load reads client id/secret and refresh token (required) plus the last access token (optional).
func (s *Store) Load(ctx context.Context, site models.SiteConfig) (Credentials, error) {
	var c Credentials
	required := []struct {
		name string
		ref  string
		dst  *string
	}{
		{"client_id", site.ClientIDRef, &c.ClientID},
		{"client_secret", site.ClientSecretRef, &c.ClientSecret},
		{"refresh_token", site.RefreshTokenRef, &c.RefreshToken},
	}
	for _, r := range required {
		if r.ref == "" {
			return Credentials{}, fmt.Errorf("site %s: %s reference not configured", site.SiteURL, r.name)
		}
		v, err := s.secrets.Get(ctx, r.ref)
		if err != nil {
			return Credentials{}, fmt.Errorf("site %s: read %s: %w", site.SiteURL, r.name, err)
		}
		*r.dst = v
	}
	if site.AccessTokenRef != "" {
		v, err := s.secrets.Get(ctx, site.AccessTokenRef)
		switch {
		case err == nil:
			c.AccessToken = v
		case errors.Is(err, apperrors.ErrNotFound):
		default:
			s.logger.Warn("read access token failed", zap.String("site_url", site.SiteURL), zap.Error(err))
		}
	}
	return c, nil
}

// SaveTokens persists a rotated refresh token and the latest access token.
// The refresh token write is the one that matters; the access token is a convenience copy.
func (s *Store) SaveTokens(ctx context.Context, site models.SiteConfig, accessToken, refreshToken string) error {
	if refreshToken != "" && site.RefreshTokenRef != "" {
		if err := s.secrets.Put(ctx, site.RefreshTokenRef, refreshToken); err != nil {
			return fmt.Errorf("site %s: write refresh token: %w", site.SiteURL, err)
		}
	}
	if accessToken != "" && site.AccessTokenRef != "" {
		if err := s.secrets.Put(ctx, site.AccessTokenRef, accessToken); err != nil {
			s.logger.Warn("write access token failed", zap.String("site_url", site.SiteURL), zap.Error(err))
		}
	}
	return nil
}
