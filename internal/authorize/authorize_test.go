package authorize

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitaldrywood/stravaexport/internal/config"
	"github.com/digitaldrywood/stravaexport/internal/strava"
)

func testConfig(redirect string) *config.Config {
	return &config.Config{
		API: config.APIInfo{
			ClientID:     33892,
			ClientSecret: "secret",
			RedirectURI:  redirect,
			Scope:        "read,activity:read_all",
			AuthURL:      config.DefaultAuthURL,
			TokenURL:     config.DefaultTokenURL,
		},
		Login: config.LoginInfo{PasswordEnv: "TEST_AUTHORIZE_PW"},
	}
}

func freeRedirect(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return "http://" + addr + "/authorization"
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"auto", "browser", "callback", "manual"} {
		m, err := ParseMode(s)
		require.NoError(t, err)
		assert.Equal(t, Mode(s), m)
	}

	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeAuto, m)

	_, err = ParseMode("telepathy")
	assert.Error(t, err)
}

func TestCode_AutoFallsBackToManual(t *testing.T) {
	t.Setenv("TEST_AUTHORIZE_PW", "")
	cfg := testConfig("http://127.0.0.1:8000/authorization")

	var out strings.Builder
	cb, err := Code(context.Background(), Options{
		Config: cfg,
		OAuth:  strava.NewOAuth(cfg.API),
		In:     strings.NewReader("http://127.0.0.1:8000/authorization?code=abc123&scope=read,activity:read_all\n"),
		Out:    &out,
	})
	require.NoError(t, err)
	assert.Equal(t, "abc123", cb.Code)
	assert.Equal(t, []string{"read", "activity:read_all"}, cb.Scopes)
	assert.Contains(t, out.String(), "https://www.strava.com/oauth/authorize?")
}

func TestCode_ManualBareCode(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:8000/authorization")

	cb, err := Code(context.Background(), Options{
		Mode:   ModeManual,
		Config: cfg,
		OAuth:  strava.NewOAuth(cfg.API),
		In:     strings.NewReader("abc123\n"),
		Out:    io.Discard,
	})
	require.NoError(t, err)
	assert.Equal(t, "abc123", cb.Code)
}

func TestCode_ManualStateMismatch(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:8000/authorization")

	_, err := Code(context.Background(), Options{
		Mode:   ModeManual,
		Config: cfg,
		OAuth:  strava.NewOAuth(cfg.API),
		In:     strings.NewReader("http://127.0.0.1:8000/authorization?state=forged&code=abc123\n"),
		Out:    io.Discard,
	})
	assert.ErrorIs(t, err, ErrStateMismatch)
}

func TestCode_Callback(t *testing.T) {
	redirect := freeRedirect(t)
	cfg := testConfig(redirect)

	open := func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		state := u.Query().Get("state")
		go func() {
			resp, err := http.Get(fmt.Sprintf("%s?state=%s&code=cb-code&scope=read", redirect, state))
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cb, err := Code(ctx, Options{
		Mode:   ModeCallback,
		Config: cfg,
		OAuth:  strava.NewOAuth(cfg.API),
		Out:    io.Discard,
		Open:   open,
	})
	require.NoError(t, err)
	assert.Equal(t, "cb-code", cb.Code)
	assert.Equal(t, []string{"read"}, cb.Scopes)
}

func TestCode_BrowserNeedsLogin(t *testing.T) {
	t.Setenv("TEST_AUTHORIZE_PW", "")
	cfg := testConfig("http://127.0.0.1:8000/authorization")

	_, err := Code(context.Background(), Options{
		Mode:   ModeBrowser,
		Config: cfg,
		OAuth:  strava.NewOAuth(cfg.API),
		Out:    io.Discard,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "browser mode needs")
}
