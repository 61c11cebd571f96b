package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

const (
	emailField      = `input[name="email"]`
	passwordField   = `input[name="password"]`
	loginButton     = `#login-button`
	authorizeButton = `#authorize`

	// The authorize button is only shown the first time a scope is granted.
	authorizeWait = 5 * time.Second
)

var ErrNoRedirect = errors.New("browser never reached the redirect uri")

const capturedPage = `<html><body><p>Authorization captured. You can close this window.</p></body></html>`

type AuthRequest struct {
	// URL is the provider's authorize URL, state and scope included.
	URL         string
	RedirectURI string
	Username    string
	Password    string
}

// Authorize logs in on the authorize page, approves the grant and returns
// the URL the provider redirected to. The redirect is intercepted, so
// nothing needs to listen on RedirectURI.
func (b *Browser) Authorize(ctx context.Context, req AuthRequest) (string, error) {
	if req.Username == "" || req.Password == "" {
		return "", errors.New("browser login needs a username and password")
	}

	page, err := b.newPage(ctx)
	if err != nil {
		return "", err
	}
	defer page.Close()

	redirects := make(chan string, 1)
	router := page.HijackRequests()
	err = router.Add(req.RedirectURI+"*", "", func(h *rod.Hijack) {
		u := h.Request.URL().String()
		b.logger.Debug("captured redirect", zap.String("url", u))
		select {
		case redirects <- u:
		default:
		}
		h.Response.SetHeader("Content-Type", "text/html; charset=utf-8")
		h.Response.SetBody(capturedPage)
	})
	if err != nil {
		return "", fmt.Errorf("intercept redirect: %w", err)
	}
	go router.Run()
	defer router.Stop()

	if err := b.visit(page, req.URL); err != nil {
		return "", err
	}
	if err := b.fill(page, emailField, req.Username); err != nil {
		return "", err
	}
	if err := b.fill(page, passwordField, req.Password); err != nil {
		return "", err
	}
	if err := b.click(page, loginButton); err != nil {
		return "", err
	}
	b.logger.Debug("login submitted", zap.String("username", req.Username))

	select {
	case u := <-redirects:
		return u, nil
	default:
	}

	if el, err := page.Timeout(authorizeWait).Element(authorizeButton); err == nil {
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			b.logger.Warn("authorize click failed", zap.Error(err))
		}
	} else {
		b.logger.Debug("no authorize button, grant already approved")
	}

	timer := time.NewTimer(b.cfg.Timeout)
	defer timer.Stop()

	select {
	case u := <-redirects:
		return u, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		info, err := page.Info()
		if err == nil && strings.HasPrefix(info.URL, req.RedirectURI) {
			return info.URL, nil
		}
		return "", ErrNoRedirect
	}
}
