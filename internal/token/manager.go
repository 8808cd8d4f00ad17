// Package token hands out valid platform access tokens per site, refreshing them on demand.
package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/Netsync-Automation/PracticeTools-sub004/internal/apperrors"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/credentials"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/models"
)

const (
	defaultSkew           = 5 * time.Minute
	defaultRefreshTimeout = 30 * time.Second
	defaultLifetime       = time.Hour
)

// SiteLookup finds the configuration for a site URL.
type SiteLookup interface {
	Site(siteURL string) (models.SiteConfig, bool)
}

// CredentialStore loads site credentials and persists rotated tokens.
type CredentialStore interface {
	Load(ctx context.Context, site models.SiteConfig) (credentials.Credentials, error)
	SaveTokens(ctx context.Context, site models.SiteConfig, accessToken, refreshToken string) error
}

// Token is a cached access token for one site.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Options configures a Manager.
type Options struct {
	TokenURL       string
	HTTPClient     *http.Client
	Skew           time.Duration // refresh this long before expiry
	RefreshTimeout time.Duration
}

// Manager owns the per-site token cache. Refreshes are single-flight per site.
type Manager struct {
	sites          SiteLookup
	creds          CredentialStore
	tokenURL       string
	httpClient     *http.Client
	skew           time.Duration
	refreshTimeout time.Duration
	logger         *zap.Logger
	now            func() time.Time

	mu    sync.RWMutex
	cache map[string]Token
	group singleflight.Group
}

// NewManager creates a token manager.
func NewManager(sites SiteLookup, creds CredentialStore, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Skew <= 0 {
		opts.Skew = defaultSkew
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = defaultRefreshTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.RefreshTimeout}
	}
	return &Manager{
		sites:          sites,
		creds:          creds,
		tokenURL:       opts.TokenURL,
		httpClient:     opts.HTTPClient,
		skew:           opts.Skew,
		refreshTimeout: opts.RefreshTimeout,
		logger:         logger,
		now:            time.Now,
		cache:          make(map[string]Token),
	}
}

// GetValidToken returns a non-expired access token for siteURL, refreshing it if needed.
// Concurrent callers for the same site share a single refresh.
func (m *Manager) GetValidToken(ctx context.Context, siteURL string) (string, error) {
	key := models.NormalizeSiteURL(siteURL)
	if tok, ok := m.cached(key); ok {
		return tok, nil
	}

	ch := m.group.DoChan(key, func() (interface{}, error) {
		if tok, ok := m.cached(key); ok {
			return tok, nil
		}
		// Detached from the first caller so its cancellation does not fail the waiters.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
		defer cancel()
		return m.refresh(rctx, key)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Invalidate drops the cached access token for a site (e.g. after a 401), keeping the refresh token.
func (m *Manager) Invalidate(siteURL string) {
	key := models.NormalizeSiteURL(siteURL)
	m.mu.Lock()
	defer m.mu.Unlock()
	if tok, ok := m.cache[key]; ok {
		tok.AccessToken = ""
		tok.ExpiresAt = time.Time{}
		m.cache[key] = tok
	}
}

func (m *Manager) cached(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tok, ok := m.cache[key]
	if !ok || tok.AccessToken == "" {
		return "", false
	}
	if !m.now().Before(tok.ExpiresAt.Add(-m.skew)) {
		return "", false
	}
	return tok.AccessToken, true
}

func (m *Manager) refresh(ctx context.Context, key string) (string, error) {
	site, ok := m.sites.Site(key)
	if !ok {
		return "", &apperrors.NotConfiguredError{SiteURL: key}
	}
	creds, err := m.creds.Load(ctx, site)
	if err != nil {
		return "", &apperrors.AuthError{SiteURL: key, Err: fmt.Errorf("load credentials: %w", err)}
	}

	refreshToken := creds.RefreshToken
	m.mu.RLock()
	if prev, ok := m.cache[key]; ok && prev.RefreshToken != "" {
		refreshToken = prev.RefreshToken
	}
	m.mu.RUnlock()

	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  m.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	hctx := context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	start := m.now()
	t, err := conf.TokenSource(hctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return "", m.classify(key, err)
	}

	expiresAt := t.Expiry
	if expiresAt.IsZero() {
		expiresAt = start.Add(defaultLifetime)
	}
	newRefresh := t.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}

	m.mu.Lock()
	m.cache[key] = Token{AccessToken: t.AccessToken, RefreshToken: newRefresh, ExpiresAt: expiresAt}
	m.mu.Unlock()

	if err := m.creds.SaveTokens(ctx, site, t.AccessToken, newRefresh); err != nil {
		m.logger.Error("persist rotated refresh token failed", zap.String("site_url", key), zap.Error(err))
	}
	m.logger.Info("access token refreshed",
		zap.String("site_url", key),
		zap.Time("expires_at", expiresAt),
		zap.Bool("refresh_rotated", newRefresh != refreshToken),
	)
	return t.AccessToken, nil
}

func (m *Manager) classify(key string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		if status >= http.StatusInternalServerError {
			return &apperrors.TransientNetworkError{Op: "token refresh " + key, Status: status, Err: err}
		}
		m.logger.Error("token refresh rejected", zap.String("site_url", key), zap.Int("status", status), zap.ByteString("body", re.Body))
		return &apperrors.AuthError{SiteURL: key, Status: status, Body: string(re.Body), Err: err}
	}
	return &apperrors.TransientNetworkError{Op: "token refresh " + key, Err: err}
}
