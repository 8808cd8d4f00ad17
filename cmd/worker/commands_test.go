package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Netsync-Automation/PracticeTools-sub004/internal/auth"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestIssueToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")

	out, err := execute(t, "issue-token", "--email", "ops@example.com", "--role", "admin")
	require.NoError(t, err)

	claims, err := auth.NewJWTService("cli-secret", 1).Validate(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims.Email)
	assert.Equal(t, "ops@example.com", claims.Subject)
	assert.Equal(t, auth.RoleAdmin, claims.Role)
}

func TestIssueToken_Errors(t *testing.T) {
	_, err := execute(t, "issue-token")
	assert.ErrorContains(t, err, "--email")

	_, err = execute(t, "issue-token", "--email", "a@b", "--role", "viewer")
	assert.ErrorIs(t, err, auth.ErrUnknownRole)
}

func TestSitesValidate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "sites.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`
sites:
  - site_url: https://acme.webex.com
    client_id_ref: acme/client_id
    client_secret_ref: acme/client_secret
    refresh_token_ref: acme/refresh_token
    recording_hosts:
      - email: alice@acme.com
    monitored_rooms:
      - room_id: room-1
        display_name: Recordings
`), 0o600))

	out, err := execute(t, "sites", "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "hosts=1")
	assert.Contains(t, out, "1 site(s) OK")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("sites:\n  - site_url: acme.webex.com\n"), 0o600))
	_, err = execute(t, "sites", "validate", bad)
	assert.Error(t, err)
}

func TestRun_RejectsZeroInterval(t *testing.T) {
	_, err := execute(t, "run", "--interval", "0s")
	assert.ErrorContains(t, err, "--interval")
}
