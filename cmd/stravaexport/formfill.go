package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/digitaldrywood/stravaexport/internal/browser"
	"github.com/digitaldrywood/stravaexport/internal/logging"
)

var (
	headful bool

	formfillCmd = &cobra.Command{
		Use:   "formfill <script.yaml>",
		Short: "Fill a web form by running a YAML step script in a browser",
		Args:  cobra.ExactArgs(1),
		// Runs without a Strava config.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			logger, err = newLogger(logging.Options{File: "browser.log", Level: "debug", Verbose: verbose})
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := browser.LoadScript(args[0])
			if err != nil {
				return err
			}

			b := browser.New(browser.Config{Headless: !headful}, logger)
			defer b.Close()

			logger.Info("running form script", zap.String("script", args[0]), zap.Int("steps", len(script.Steps)))
			if err := b.RunScript(cmd.Context(), script); err != nil {
				return err
			}
			fmt.Printf("✅ Ran %d steps from %s\n", len(script.Steps), args[0])
			return nil
		},
	}
)

func init() {
	formfillCmd.Flags().BoolVar(&headful, "show", false, "show the browser window")
	rootCmd.AddCommand(formfillCmd)
}
