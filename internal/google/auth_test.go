package google

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const credentialsJSON = `{"installed":{"client_id":"id.apps.googleusercontent.com","client_secret":"secret",
"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token",
"redirect_uris":["http://localhost"]}}`

func newTestAuth(t *testing.T) *Auth {
	t.Helper()
	dir := t.TempDir()
	creds := filepath.Join(dir, "credentials.json")
	require.NoError(t, os.WriteFile(creds, []byte(credentialsJSON), 0600))

	a, err := NewAuth(creds, filepath.Join(dir, "google", "token.json"), "http://localhost:8080/callback", nil)
	require.NoError(t, err)
	return a
}

func TestNewAuth(t *testing.T) {
	a := newTestAuth(t)
	assert.Equal(t, "id.apps.googleusercontent.com", a.config.ClientID)
	assert.Equal(t, "http://localhost:8080/callback", a.config.RedirectURL)

	_, err := NewAuth(filepath.Join(t.TempDir(), "missing.json"), "token.json", "", nil)
	assert.Error(t, err)
}

func TestTokenCache(t *testing.T) {
	a := newTestAuth(t)

	_, err := a.tokenFromFile()
	require.Error(t, err)

	tok := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour).Round(time.Second),
	}
	require.NoError(t, a.saveToken(tok))

	info, err := os.Stat(a.tokenPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := a.tokenFromFile()
	require.NoError(t, err)
	assert.Equal(t, "refresh", got.RefreshToken)
	assert.True(t, tok.Expiry.Equal(got.Expiry))

	// a cached token skips the browser flow
	client, err := a.GetClient(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestCodeFromRedirect(t *testing.T) {
	code, err := codeFromRedirect("http://localhost:8080/callback?state=s&code=4/abc&scope=x")
	require.NoError(t, err)
	assert.Equal(t, "4/abc", code)

	_, err = codeFromRedirect("http://localhost:8080/callback?error=access_denied")
	assert.ErrorContains(t, err, "access_denied")

	_, err = codeFromRedirect("http://localhost:8080/callback")
	assert.Error(t, err)
}
