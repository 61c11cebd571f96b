package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/digitaldrywood/stravaexport/internal/authorize"
	"github.com/digitaldrywood/stravaexport/internal/strava"
)

var (
	mode string
	code string

	urlCmd = &cobra.Command{
		Use:   "url",
		Short: "Print the Strava authorization URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			o := strava.NewOAuth(cfg.API)
			fmt.Println(o.AuthCodeURL(uuid.NewString()))
			return nil
		},
	}

	codeCmd = &cobra.Command{
		Use:   "code",
		Short: "Obtain an authorization code and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cb, err := acquire(cmd)
			if err != nil {
				return err
			}
			fmt.Println(cb.Code)
			return nil
		},
	}

	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Exchange an authorization code for tokens and save them",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cb strava.Callback
			var err error
			if code != "" {
				cb, err = strava.ParseCode(code)
			} else {
				cb, err = acquire(cmd)
			}
			if err != nil {
				return err
			}

			tok, err := strava.NewOAuth(cfg.API).Exchange(cmd.Context(), cb.Code)
			if err != nil {
				return err
			}
			saveTokens(tok.Token)

			fmt.Println("✅ Authentication successful!")
			if tok.Athlete != nil {
				fmt.Printf("Authorized athlete: %s (%d)\n", tok.Athlete.Name(), tok.Athlete.ID)
			}
			fmt.Printf("Tokens saved to %s, access token expires %s\n", cfg.Path, tok.Expiry.Local().Format("2006-01-02 15:04"))
			return nil
		},
	}

	refreshCmd = &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the stored access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := strava.NewOAuth(cfg.API).Refresh(cmd.Context(), strava.OAuth2Token(cfg.Tokens))
			if err != nil {
				return err
			}
			saveTokens(tok)
			fmt.Printf("✅ Access token refreshed, expires %s\n", tok.Expiry.Local().Format("2006-01-02 15:04"))
			return nil
		},
	}

	athleteCmd = &cobra.Command{
		Use:   "athlete",
		Short: "Show the authorized athlete",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := stravaClient(cmd.Context())
			if err != nil {
				return err
			}
			a, err := client.Athlete(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("%s (%d)\n", a.Name(), a.ID)
			return nil
		},
	}
)

func init() {
	for _, c := range []*cobra.Command{codeCmd, tokenCmd} {
		c.Flags().StringVarP(&mode, "mode", "m", string(authorize.ModeAuto), "how to obtain the code: auto, browser, callback or manual")
	}
	tokenCmd.Flags().StringVar(&code, "code", "", "authorization code or redirect URL to exchange instead of authorizing")

	rootCmd.AddCommand(urlCmd, codeCmd, tokenCmd, refreshCmd, athleteCmd)
}

func acquire(cmd *cobra.Command) (strava.Callback, error) {
	m, err := authorize.ParseMode(mode)
	if err != nil {
		return strava.Callback{}, err
	}

	cb, err := authorize.Code(cmd.Context(), authorize.Options{
		Mode:   m,
		Config: cfg,
		OAuth:  strava.NewOAuth(cfg.API),
		Logger: logger,
		In:     cmd.InOrStdin(),
		Out:    cmd.OutOrStdout(),
	})
	if err != nil {
		logger.Error("authorization failed", zap.Error(err))
		return strava.Callback{}, err
	}
	return cb, nil
}
