// Package authorize obtains a Strava authorization code using a scripted
// browser login, the system browser with a loopback redirect, or a code
// pasted by hand.
package authorize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/digitaldrywood/stravaexport/internal/browser"
	"github.com/digitaldrywood/stravaexport/internal/config"
	"github.com/digitaldrywood/stravaexport/internal/oauth"
	"github.com/digitaldrywood/stravaexport/internal/strava"
)

type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeBrowser  Mode = "browser"
	ModeCallback Mode = "callback"
	ModeManual   Mode = "manual"
)

var ErrStateMismatch = errors.New("state returned by strava does not match the request")

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeAuto, ModeBrowser, ModeCallback, ModeManual:
		return m, nil
	case "":
		return ModeAuto, nil
	}
	return "", fmt.Errorf("unknown mode %q (want auto, browser, callback or manual)", s)
}

type Options struct {
	Mode   Mode
	Config *config.Config
	OAuth  *strava.OAuth
	Logger *zap.Logger

	In  io.Reader
	Out io.Writer
	// Open shows a URL to the user in callback mode.
	Open func(url string) error
}

func (o *Options) defaults() {
	if o.Mode == "" {
		o.Mode = ModeAuto
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.In == nil {
		o.In = os.Stdin
	}
	if o.Out == nil {
		o.Out = os.Stdout
	}
	if o.Open == nil {
		o.Open = oauth.OpenBrowser
	}
}

// Code runs the selected flow and returns the parsed redirect.
func Code(ctx context.Context, opts Options) (strava.Callback, error) {
	opts.defaults()
	state := uuid.NewString()
	authURL := opts.OAuth.AuthCodeURL(state)

	mode := opts.Mode
	var password string
	if mode == ModeAuto || mode == ModeBrowser {
		pw, err := opts.Config.ResolvePassword(opts.Out)
		if err != nil {
			return strava.Callback{}, err
		}
		password = pw
	}
	if mode == ModeAuto {
		mode = ModeManual
		if opts.Config.Login.Username != "" && password != "" {
			mode = ModeBrowser
		}
	}
	opts.Logger.Info("requesting authorization code", zap.String("mode", string(mode)))

	var raw string
	var err error
	switch mode {
	case ModeBrowser:
		raw, err = viaBrowser(ctx, opts, authURL, password)
	case ModeCallback:
		raw, err = viaCallback(ctx, opts, authURL, state)
	case ModeManual:
		raw, err = oauth.PromptCode(opts.In, opts.Out, authURL)
	default:
		err = fmt.Errorf("unknown mode %q", mode)
	}
	if err != nil {
		return strava.Callback{}, err
	}

	cb, err := strava.ParseCode(raw)
	if err != nil {
		return strava.Callback{}, err
	}
	// a bare pasted code carries no state
	if cb.State != "" && cb.State != state {
		return strava.Callback{}, ErrStateMismatch
	}

	opts.Logger.Debug("authorization code received", zap.Strings("scopes", cb.Scopes))
	return cb, nil
}

func viaBrowser(ctx context.Context, opts Options, authURL, password string) (string, error) {
	if opts.Config.Login.Username == "" || password == "" {
		return "", errors.New("browser mode needs [Login] username and a password")
	}

	bc := opts.Config.Browser
	b := browser.New(browser.Config{
		Bin:        bc.Bin,
		ControlURL: bc.ControlURL,
		Headless:   bc.Headless,
		Timeout:    bc.Timeout,
	}, opts.Logger)
	defer b.Close()

	return b.Authorize(ctx, browser.AuthRequest{
		URL:         authURL,
		RedirectURI: opts.OAuth.RedirectURL(),
		Username:    opts.Config.Login.Username,
		Password:    password,
	})
}

func viaCallback(ctx context.Context, opts Options, authURL, state string) (string, error) {
	srv, err := oauth.NewCallbackServer(opts.OAuth.RedirectURL(), state, opts.Logger)
	if err != nil {
		return "", err
	}
	srv.Start()
	defer srv.Shutdown(context.Background())

	fmt.Fprintf(opts.Out, "Opening browser for authentication...\n")
	if err := opts.Open(authURL); err != nil {
		fmt.Fprintf(opts.Out, "Please open the following URL in your browser:\n%s\n", authURL)
	}
	fmt.Fprintf(opts.Out, "Waiting for the redirect on %s\n", srv.URL())

	return srv.Wait(ctx)
}
