// Package oauth holds the pieces of an authorization-code flow that do not
// depend on the provider: the loopback redirect receiver, opening the system
// browser and reading a code pasted by hand.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

var ErrStateMismatch = errors.New("oauth state mismatch")

const successPage = `
<html>
	<head><title>Authentication Successful</title></head>
	<body>
		<h1>Authentication Successful!</h1>
		<p>You can close this window and return to the terminal.</p>
		<script>window.setTimeout(function(){window.close();}, 2000);</script>
	</body>
</html>
`

// CallbackServer receives the authorization redirect on the host, port and
// path of a loopback redirect URL.
type CallbackServer struct {
	server   *http.Server
	listener net.Listener
	path     string
	state    string
	results  chan callbackResult
	logger   *zap.Logger
}

type callbackResult struct {
	rawURL string
	err    error
}

// NewCallbackServer binds the address of redirectURL. state, when not empty,
// must come back unchanged on the redirect.
func NewCallbackServer(redirectURL, state string, logger *zap.Logger) (*CallbackServer, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect url %q: %w", redirectURL, err)
	}
	if u.Scheme != "http" {
		return nil, fmt.Errorf("redirect url %q is not a loopback http url", redirectURL)
	}

	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "80")
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := &CallbackServer{
		listener: ln,
		path:     path,
		state:    state,
		results:  make(chan callbackResult, 1),
		logger:   logger,
	}

	router := mux.NewRouter()
	router.HandleFunc(path, s.handleCallback).Methods(http.MethodGet)
	s.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Start serves in the background until Shutdown.
func (s *CallbackServer) Start() {
	go func() {
		if err := s.server.Serve(s.listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("callback server error", zap.Error(err))
			s.deliver(callbackResult{err: err})
		}
	}()
}

// URL is the redirect URL the server actually listens on.
func (s *CallbackServer) URL() string {
	return "http://" + s.listener.Addr().String() + s.path
}

// Wait blocks until the redirect arrives and returns its full URL, so the
// caller can parse it with its provider's rules.
func (s *CallbackServer) Wait(ctx context.Context) (string, error) {
	select {
	case res := <-s.results:
		return res.rawURL, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *CallbackServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.logger.Debug("received oauth callback", zap.String("path", r.URL.Path), zap.Bool("has_code", q.Get("code") != ""))

	if s.state != "" && q.Get("state") != s.state {
		http.Error(w, "Error: state mismatch", http.StatusBadRequest)
		s.deliver(callbackResult{err: ErrStateMismatch})
		return
	}
	if e := q.Get("error"); e != "" {
		http.Error(w, "Error: "+e, http.StatusBadRequest)
		s.deliver(callbackResult{rawURL: s.absolute(r)})
		return
	}
	if q.Get("code") == "" {
		http.Error(w, "Error: No authorization code received", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, successPage)
	s.deliver(callbackResult{rawURL: s.absolute(r)})
}

func (s *CallbackServer) absolute(r *http.Request) string {
	u := *r.URL
	u.Scheme = "http"
	u.Host = r.Host
	return u.String()
}

// deliver keeps the first result only; later redirects are answered but
// ignored.
func (s *CallbackServer) deliver(res callbackResult) {
	select {
	case s.results <- res:
	default:
	}
}
