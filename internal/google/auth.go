package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/digitaldrywood/stravaexport/internal/oauth"
)

type Auth struct {
	config    *oauth2.Config
	client    *http.Client
	tokenPath string
	logger    *zap.Logger
}

func NewAuth(credentialsPath, tokenPath, redirectURL string, logger *zap.Logger) (*Auth, error) {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}

	// Set redirect URL from config
	config.RedirectURL = redirectURL

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Auth{
		config:    config,
		tokenPath: tokenPath,
		logger:    logger,
	}, nil
}

func (a *Auth) GetClient(ctx context.Context) (*http.Client, error) {
	if a.client != nil {
		return a.client, nil
	}

	tok, err := a.tokenFromFile()
	if err != nil {
		a.logger.Debug("no cached google token", zap.String("path", a.tokenPath), zap.Error(err))
		tok, err = a.getTokenFromWeb(ctx)
		if err != nil {
			return nil, err
		}
		if err := a.saveToken(tok); err != nil {
			return nil, err
		}
	}

	a.client = a.config.Client(context.Background(), tok)
	return a.client, nil
}

func (a *Auth) GetSheetsService(ctx context.Context) (*sheets.Service, error) {
	client, err := a.GetClient(ctx)
	if err != nil {
		return nil, err
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Sheets client: %w", err)
	}

	return srv, nil
}

func (a *Auth) getTokenFromWeb(ctx context.Context) (*oauth2.Token, error) {
	state := uuid.NewString()

	// Start local server to handle OAuth callback
	server, err := oauth.NewCallbackServer(a.config.RedirectURL, state, a.logger)
	if err != nil {
		return nil, err
	}
	server.Start()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(sctx)
	}()

	// Generate auth URL and open in browser
	authURL := a.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
	fmt.Printf("Opening browser for Google authentication...\n")
	fmt.Printf("If browser doesn't open automatically, visit:\n%v\n", authURL)

	if err := oauth.OpenBrowser(authURL); err != nil {
		a.logger.Warn("could not open browser", zap.Error(err))
	}

	fmt.Println("Waiting for authentication...")
	raw, err := server.Wait(ctx)
	if err != nil {
		return nil, err
	}

	code, err := codeFromRedirect(raw)
	if err != nil {
		return nil, err
	}

	tok, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve token from web: %w", err)
	}

	return tok, nil
}

func (a *Auth) tokenFromFile() (*oauth2.Token, error) {
	f, err := os.Open(a.tokenPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

func (a *Auth) saveToken(token *oauth2.Token) error {
	fmt.Printf("Saving credential file to: %s\n", a.tokenPath)
	if err := os.MkdirAll(filepath.Dir(a.tokenPath), 0755); err != nil {
		return fmt.Errorf("unable to create token directory: %w", err)
	}
	f, err := os.OpenFile(a.tokenPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

func codeFromRedirect(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid redirect: %w", err)
	}
	q := u.Query()
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("google authorization failed: %s", e)
	}
	code := q.Get("code")
	if code == "" {
		return "", errors.New("no authorization code in redirect")
	}
	return code, nil
}
