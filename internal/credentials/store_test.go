package credentials

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Netsync-Automation/PracticeTools-sub004/internal/apperrors"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/models"
)

type memSecrets struct {
	mu     sync.Mutex
	values map[string]string
}

func (m *memSecrets) Get(_ context.Context, path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[path]
	if !ok {
		return "", fmt.Errorf("get %s: %w", path, apperrors.ErrNotFound)
	}
	return v, nil
}

func (m *memSecrets) Put(_ context.Context, path, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[path] = value
	return nil
}

var site = models.SiteConfig{
	SiteURL:         "acme.webex.com",
	ClientIDRef:     "acme/client_id",
	ClientSecretRef: "acme/client_secret",
	AccessTokenRef:  "acme/access_token",
	RefreshTokenRef: "acme/refresh_token",
}

func TestLoad(t *testing.T) {
	secrets := &memSecrets{values: map[string]string{
		"acme/client_id":     "cid",
		"acme/client_secret": "csecret",
		"acme/refresh_token": "rt",
	}}
	c, err := NewStore(secrets, nil).Load(context.Background(), site)
	require.NoError(t, err)
	assert.Equal(t, Credentials{ClientID: "cid", ClientSecret: "csecret", RefreshToken: "rt"}, c)
}

func TestLoad_MissingRefreshToken(t *testing.T) {
	secrets := &memSecrets{values: map[string]string{
		"acme/client_id":     "cid",
		"acme/client_secret": "csecret",
	}}
	_, err := NewStore(secrets, nil).Load(context.Background(), site)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestLoad_MissingReference(t *testing.T) {
	s := site
	s.ClientIDRef = ""
	_, err := NewStore(&memSecrets{values: map[string]string{}}, nil).Load(context.Background(), s)
	require.ErrorContains(t, err, "client_id reference not configured")
}

func TestSaveTokens(t *testing.T) {
	secrets := &memSecrets{values: map[string]string{}}
	require.NoError(t, NewStore(secrets, nil).SaveTokens(context.Background(), site, "at-2", "rt-2"))
	assert.Equal(t, "rt-2", secrets.values["acme/refresh_token"])
	assert.Equal(t, "at-2", secrets.values["acme/access_token"])
}
