package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/digitaldrywood/stravaexport/internal/config"
	"github.com/digitaldrywood/stravaexport/internal/logging"
	"github.com/digitaldrywood/stravaexport/internal/strava"
)

const dateLayout = "2006-01-02"

var (
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger

	rootCmd = &cobra.Command{
		Use:          "stravaexport",
		Short:        "Authorize against Strava and export activity data",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup()
		},
	}

	newLogger = logging.New
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		stop()
		os.Exit(1)
	}
}

// run executes the command line and flushes the logger whether or not the
// command failed.
func run(ctx context.Context, args []string) error {
	defer func() {
		if logger != nil {
			_ = logger.Sync()
		}
	}()

	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default config.ini or $STRAVA_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
}

func setup() error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = c

	logger, err = newLogger(logging.Options{
		File:       cfg.Log.File,
		Level:      cfg.Log.Level,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Verbose:    verbose,
	})
	if err != nil {
		return err
	}
	logger.Debug("config loaded", zap.String("path", cfg.Path))
	return nil
}

// tokenSource refreshes the stored tokens as needed and writes every new
// pair back to the config file.
func tokenSource(ctx context.Context, o *strava.OAuth) (oauth2.TokenSource, error) {
	if cfg.Tokens.RefreshToken == "" {
		return nil, errors.New("no tokens stored, run \"stravaexport token\" first")
	}

	return o.TokenSource(ctx, strava.OAuth2Token(cfg.Tokens), func(tok *oauth2.Token) {
		saveTokens(tok)
	}), nil
}

func saveTokens(tok *oauth2.Token) {
	cfg.Tokens = strava.ConfigTokens(tok)
	if err := config.SaveTokens(cfg.Path, cfg.Tokens); err != nil {
		logger.Error("failed to save tokens", zap.Error(err))
		return
	}
	logger.Info("tokens saved", zap.Time("expires_at", tok.Expiry))
}

func stravaClient(ctx context.Context) (*strava.Client, error) {
	o := strava.NewOAuth(cfg.API)
	ts, err := tokenSource(ctx, o)
	if err != nil {
		return nil, err
	}
	return strava.NewClient(o.Client(ctx, ts), cfg.API.APIURL, strava.WithLogger(logger)), nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}
