//go:build integration

package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitaldrywood/stravaexport/internal/browser"
)

const redirectURI = "http://127.0.0.1:8000/authorization"

const loginPage = `<html><body>
<form onsubmit="return false">
  <input name="email" type="email">
  <input name="password" type="password">
  <button id="login-button" onclick="login()">Log In</button>
</form>
<script>
function login() {
  var email = document.querySelector('[name=email]').value;
  document.body.innerHTML = '<button id="authorize" onclick="grant()">Authorize</button>';
  window.grant = function() {
    window.location = '%s?state=s1&code=abc123&scope=read,activity:read_all&email=' + encodeURIComponent(email);
  };
}
</script>
</body></html>`

func newBrowser(t *testing.T) *browser.Browser {
	t.Helper()
	b := browser.New(browser.Config{Headless: true, Timeout: 20 * time.Second}, nil)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestAuthorize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, loginPage, redirectURI)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	got, err := newBrowser(t).Authorize(ctx, browser.AuthRequest{
		URL:         srv.URL + "/oauth/authorize",
		RedirectURI: redirectURI,
		Username:    "rider@example.com",
		Password:    "secret",
	})
	require.NoError(t, err)
	assert.Contains(t, got, "code=abc123")
	assert.Contains(t, got, "email=rider%40example.com")
}

func TestRunScript(t *testing.T) {
	var mu sync.Mutex
	var submitted string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			r.ParseForm()
			mu.Lock()
			submitted = r.Form.Get("username") + "/" + r.Form.Get("securityQuestion")
			mu.Unlock()
			fmt.Fprint(w, "<html><body>done</body></html>")
			return
		}
		fmt.Fprint(w, `<html><body><form method="post">
			<input name="username"><input name="securityQuestion">
			<button type="submit">Submit</button>
		</form></body></html>`)
	}))
	defer srv.Close()

	s, err := browser.ParseScript([]byte(fmt.Sprintf(`
url: %s
steps:
  - fill: {field: username, value: webgoat}
  - fill: {field: securityQuestion, value: red}
  - click_text: Submit
  - wait: 500ms
`, srv.URL)))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	require.NoError(t, newBrowser(t).RunScript(ctx, s))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "webgoat/red", submitted)
}
