package token

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Netsync-Automation/PracticeTools-sub004/internal/apperrors"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/credentials"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/models"
)

type staticSites map[string]models.SiteConfig

func (s staticSites) Site(siteURL string) (models.SiteConfig, bool) {
	c, ok := s[models.NormalizeSiteURL(siteURL)]
	return c, ok
}

type memCreds struct {
	mu       sync.Mutex
	creds    credentials.Credentials
	loadErr  error
	saved    []string
	loadHits int
}

func (m *memCreds) Load(_ context.Context, _ models.SiteConfig) (credentials.Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadHits++
	return m.creds, m.loadErr
}

func (m *memCreds) SaveTokens(_ context.Context, _ models.SiteConfig, _, refreshToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, refreshToken)
	return nil
}

type tokenServer struct {
	*httptest.Server
	calls     atomic.Int32
	expiresIn int
	delay     time.Duration
	status    int
	body      string
	mu        sync.Mutex
	lastForm  map[string]string
}

func newTokenServer(t *testing.T) *tokenServer {
	ts := &tokenServer{expiresIn: 3600}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := ts.calls.Add(1)
		_ = r.ParseForm()
		ts.mu.Lock()
		ts.lastForm = map[string]string{
			"grant_type":    r.PostForm.Get("grant_type"),
			"refresh_token": r.PostForm.Get("refresh_token"),
			"client_id":     r.PostForm.Get("client_id"),
		}
		ts.mu.Unlock()
		if ts.delay > 0 {
			time.Sleep(ts.delay)
		}
		w.Header().Set("Content-Type", "application/json")
		if ts.status != 0 {
			w.WriteHeader(ts.status)
			_, _ = w.Write([]byte(ts.body))
			return
		}
		fmt.Fprintf(w, `{"access_token":"at-%d","refresh_token":"rt-%d","expires_in":%d,"token_type":"Bearer"}`, n, n+1, ts.expiresIn)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) form(key string) string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.lastForm[key]
}

func newTestManager(ts *tokenServer, creds *memCreds) *Manager {
	sites := staticSites{"s1.webex.com": {SiteURL: "s1.webex.com", RefreshTokenRef: "s1/rt"}}
	return NewManager(sites, creds, Options{TokenURL: ts.URL, HTTPClient: ts.Client()}, nil)
}

func defaultCreds() *memCreds {
	return &memCreds{creds: credentials.Credentials{ClientID: "cid", ClientSecret: "cs", RefreshToken: "rt-0"}}
}

func TestGetValidToken_RefreshesAndCaches(t *testing.T) {
	ts := newTokenServer(t)
	creds := defaultCreds()
	m := newTestManager(ts, creds)
	ctx := context.Background()

	tok, err := m.GetValidToken(ctx, "https://s1.webex.com/")
	require.NoError(t, err)
	assert.Equal(t, "at-1", tok)
	assert.Equal(t, "refresh_token", ts.form("grant_type"))
	assert.Equal(t, "rt-0", ts.form("refresh_token"))
	assert.Equal(t, "cid", ts.form("client_id"))

	tok, err = m.GetValidToken(ctx, "s1.webex.com")
	require.NoError(t, err)
	assert.Equal(t, "at-1", tok)
	assert.Equal(t, int32(1), ts.calls.Load(), "cached token must not hit the network")

	creds.mu.Lock()
	assert.Equal(t, []string{"rt-2"}, creds.saved, "rotated refresh token is persisted")
	creds.mu.Unlock()
}

func TestGetValidToken_RefreshesInsideSkew(t *testing.T) {
	ts := newTokenServer(t)
	ts.expiresIn = 120 // inside the 5 minute skew
	m := newTestManager(ts, defaultCreds())

	_, err := m.GetValidToken(context.Background(), "s1.webex.com")
	require.NoError(t, err)
	tok, err := m.GetValidToken(context.Background(), "s1.webex.com")
	require.NoError(t, err)
	assert.Equal(t, "at-2", tok)
	assert.Equal(t, int32(2), ts.calls.Load())
	assert.Equal(t, "rt-2", ts.form("refresh_token"), "second refresh uses the rotated token")
}

func TestGetValidToken_ExpiryFromClock(t *testing.T) {
	ts := newTokenServer(t)
	m := newTestManager(ts, defaultCreds())
	_, err := m.GetValidToken(context.Background(), "s1.webex.com")
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(56 * time.Minute) }
	_, err = m.GetValidToken(context.Background(), "s1.webex.com")
	require.NoError(t, err)
	assert.Equal(t, int32(2), ts.calls.Load())
}

func TestGetValidToken_SingleFlight(t *testing.T) {
	ts := newTokenServer(t)
	ts.delay = 100 * time.Millisecond
	m := newTestManager(ts, defaultCreds())

	const n = 25
	var (
		wg     sync.WaitGroup
		start  = make(chan struct{})
		tokens = make([]string, n)
		errs   = make([]error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			tokens[i], errs[i] = m.GetValidToken(context.Background(), "s1.webex.com")
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), ts.calls.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "at-1", tokens[i])
	}
}

func TestGetValidToken_RejectedRefreshIsAuthError(t *testing.T) {
	ts := newTokenServer(t)
	ts.status = http.StatusBadRequest
	ts.body = `{"error":"invalid_grant","error_description":"refresh token expired"}`
	m := newTestManager(ts, defaultCreds())

	_, err := m.GetValidToken(context.Background(), "s1.webex.com")
	require.Error(t, err)
	var ae *apperrors.AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusBadRequest, ae.Status)
	assert.Contains(t, ae.Body, "invalid_grant")
}

func TestGetValidToken_ServerErrorIsTransient(t *testing.T) {
	ts := newTokenServer(t)
	ts.status = http.StatusBadGateway
	ts.body = `{"error":"upstream"}`
	m := newTestManager(ts, defaultCreds())

	_, err := m.GetValidToken(context.Background(), "s1.webex.com")
	assert.True(t, apperrors.IsTransient(err))
}

func TestGetValidToken_MissingCredentials(t *testing.T) {
	ts := newTokenServer(t)
	creds := defaultCreds()
	creds.loadErr = apperrors.ErrNotFound
	m := newTestManager(ts, creds)

	_, err := m.GetValidToken(context.Background(), "s1.webex.com")
	assert.True(t, apperrors.IsAuth(err))
	assert.Equal(t, int32(0), ts.calls.Load())
}

func TestGetValidToken_UnknownSite(t *testing.T) {
	ts := newTokenServer(t)
	m := newTestManager(ts, defaultCreds())
	_, err := m.GetValidToken(context.Background(), "other.webex.com")
	assert.True(t, apperrors.IsNotConfigured(err))
}

func TestInvalidate(t *testing.T) {
	ts := newTokenServer(t)
	m := newTestManager(ts, defaultCreds())
	_, err := m.GetValidToken(context.Background(), "s1.webex.com")
	require.NoError(t, err)

	m.Invalidate("s1.webex.com")
	tok, err := m.GetValidToken(context.Background(), "s1.webex.com")
	require.NoError(t, err)
	assert.Equal(t, "at-2", tok)
	assert.Equal(t, "rt-2", ts.form("refresh_token"))
}

func TestGetValidToken_CallerCancelled(t *testing.T) {
	ts := newTokenServer(t)
	ts.delay = 200 * time.Millisecond
	m := newTestManager(ts, defaultCreds())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.GetValidToken(ctx, "s1.webex.com")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// the detached refresh still completes and populates the cache
	require.Eventually(t, func() bool {
		_, ok := m.cached("s1.webex.com")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}
