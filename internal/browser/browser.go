// Package browser drives a Chromium instance through the DevTools protocol
// for the Strava login and for scripted form filling.
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Config controls how Chromium is found or launched.
type Config struct {
	// Bin is the browser executable. Empty lets the launcher find or
	// download one.
	Bin string
	// ControlURL connects to an already running browser instead of
	// launching one.
	ControlURL string
	Headless   bool
	// Timeout bounds each navigation and element lookup.
	Timeout time.Duration
}

type Browser struct {
	cfg      Config
	logger   *zap.Logger
	launcher *launcher.Launcher
	browser  *rod.Browser
}

func New(cfg Config, logger *zap.Logger) *Browser {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Browser{cfg: cfg, logger: logger}
}

// Start connects to ControlURL or launches a new browser.
func (b *Browser) Start(ctx context.Context) error {
	if b.browser != nil {
		return nil
	}

	controlURL := b.cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(b.cfg.Headless)
		if b.cfg.Bin != "" {
			l = l.Bin(b.cfg.Bin)
		}
		url, err := l.Launch()
		if err != nil {
			return fmt.Errorf("launch browser: %w", err)
		}
		b.launcher = l
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		b.kill()
		return fmt.Errorf("connect to browser: %w", err)
	}

	b.browser = browser
	b.logger.Debug("browser connected", zap.String("control_url", controlURL), zap.Bool("headless", b.cfg.Headless))
	return nil
}

func (b *Browser) Close() error {
	var err error
	if b.browser != nil {
		err = b.browser.Close()
		b.browser = nil
	}
	b.kill()
	return err
}

func (b *Browser) kill() {
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher = nil
	}
}

func (b *Browser) newPage(ctx context.Context) (*rod.Page, error) {
	if err := b.Start(ctx); err != nil {
		return nil, err
	}
	page, err := b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	return page.Context(ctx), nil
}

func (b *Browser) visit(page *rod.Page, url string) error {
	b.logger.Debug("visit", zap.String("url", url))
	p := page.Timeout(b.cfg.Timeout)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait for %s: %w", url, err)
	}
	return nil
}

func (b *Browser) fill(page *rod.Page, selector, value string) error {
	el, err := page.Timeout(b.cfg.Timeout).Element(selector)
	if err != nil {
		return fmt.Errorf("element %s not found: %w", selector, err)
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("select %s: %w", selector, err)
	}
	return el.Input(value)
}

func (b *Browser) click(page *rod.Page, selector string) error {
	el, err := page.Timeout(b.cfg.Timeout).Element(selector)
	if err != nil {
		return fmt.Errorf("element %s not found: %w", selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (b *Browser) clickText(page *rod.Page, text string) error {
	el, err := page.Timeout(b.cfg.Timeout).ElementX(textXPath(text))
	if err != nil {
		return fmt.Errorf("no element with text %q: %w", text, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// textXPath matches the innermost element whose normalized text is exactly
// text, or a button-like input whose value is.
func textXPath(text string) string {
	lit := xpathLiteral(text)
	return fmt.Sprintf(`(//*[normalize-space(text())=%s] | //input[@value=%s])[1]`, lit, lit)
}

func xpathLiteral(s string) string {
	switch {
	case !strings.ContainsRune(s, '\''):
		return "'" + s + "'"
	case !strings.ContainsRune(s, '"'):
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	for i, p := range parts {
		parts[i] = "'" + p + "'"
	}
	return "concat(" + strings.Join(parts, `, "'", `) + ")"
}
