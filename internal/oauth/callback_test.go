package oauth

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startServer(t *testing.T, state string) *CallbackServer {
	t.Helper()
	s, err := NewCallbackServer("http://127.0.0.1:0/authorization", state, nil)
	require.NoError(t, err)
	s.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})
	return s
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestCallbackServer(t *testing.T) {
	s := startServer(t, "xyz")
	assert.True(t, strings.HasSuffix(s.URL(), "/authorization"))

	status, body := get(t, s.URL()+"?state=xyz&code=abc123&scope=read,activity:read_all")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Authentication Successful")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	raw, err := s.Wait(ctx)
	require.NoError(t, err)
	assert.Contains(t, raw, "code=abc123")
	assert.True(t, strings.HasPrefix(raw, "http://127.0.0.1:"))
}

func TestCallbackServer_StateMismatch(t *testing.T) {
	s := startServer(t, "expected")

	status, _ := get(t, s.URL()+"?state=other&code=abc123")
	assert.Equal(t, http.StatusBadRequest, status)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := s.Wait(ctx)
	assert.ErrorIs(t, err, ErrStateMismatch)
}

func TestCallbackServer_ErrorParam(t *testing.T) {
	s := startServer(t, "")

	status, _ := get(t, s.URL()+"?error=access_denied")
	assert.Equal(t, http.StatusBadRequest, status)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	raw, err := s.Wait(ctx)
	require.NoError(t, err)
	assert.Contains(t, raw, "error=access_denied")
}

func TestCallbackServer_MissingCodeKeepsWaiting(t *testing.T) {
	s := startServer(t, "")

	status, _ := get(t, s.URL())
	assert.Equal(t, http.StatusBadRequest, status)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCallbackServer_WrongPath(t *testing.T) {
	s := startServer(t, "")
	base := strings.TrimSuffix(s.URL(), "/authorization")

	status, _ := get(t, base+"/other?code=abc")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestNewCallbackServer_RejectsHTTPS(t *testing.T) {
	_, err := NewCallbackServer("https://127.0.0.1:0/cb", "", nil)
	assert.Error(t, err)
}

func TestPromptCode(t *testing.T) {
	var out strings.Builder
	code, err := PromptCode(strings.NewReader("  abc123\n"), &out, "https://www.strava.com/oauth/authorize?client_id=1")
	require.NoError(t, err)
	assert.Equal(t, "abc123", code)
	assert.Contains(t, out.String(), "client_id=1")

	_, err = PromptCode(strings.NewReader("\n"), io.Discard, "u")
	assert.Error(t, err)
}
