package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/digitaldrywood/stravaexport/internal/authorize"
	"github.com/digitaldrywood/stravaexport/internal/config"
	"github.com/digitaldrywood/stravaexport/internal/google"
	"github.com/digitaldrywood/stravaexport/internal/strava"
)

func main() {
	var (
		configPath = flag.String("config", "", "config file (default config.ini or $STRAVA_CONFIG)")
		modeFlag   = flag.String("mode", "auto", "how to obtain the code: auto, browser, callback or manual")
	)
	flag.Parse()

	fmt.Println("=== Strava Export Authentication ===")
	fmt.Println()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	mode, err := authorize.ParseMode(*modeFlag)
	if err != nil {
		log.Fatalf("Invalid mode: %v", err)
	}

	ctx := context.Background()
	o := strava.NewOAuth(cfg.API)

	cb, err := authorize.Code(ctx, authorize.Options{Mode: mode, Config: cfg, OAuth: o})
	if err != nil {
		log.Fatalf("Failed to get authorization code: %v", err)
	}

	tok, err := o.Exchange(ctx, cb.Code)
	if err != nil {
		log.Fatalf("Failed to authenticate: %v", err)
	}

	if err := config.SaveTokens(cfg.Path, strava.ConfigTokens(tok.Token)); err != nil {
		log.Fatalf("Failed to save tokens: %v", err)
	}

	fmt.Println("✅ Authentication successful!")
	if tok.Athlete != nil {
		fmt.Printf("🚴 Authorized athlete: %s\n", tok.Athlete.Name())
	}

	// Authorize Google Sheets as well when a spreadsheet is configured
	if cfg.Export.SpreadsheetID != "" {
		auth, err := google.NewAuth(cfg.Export.GoogleCredentials, cfg.Export.GoogleToken, cfg.Export.GoogleRedirectURL, nil)
		if err != nil {
			log.Fatalf("Failed to create auth client: %v", err)
		}

		service, err := auth.GetSheetsService(ctx)
		if err != nil {
			log.Fatalf("Failed to authenticate with Google: %v", err)
		}

		spreadsheet, err := service.Spreadsheets.Get(cfg.Export.SpreadsheetID).Do()
		if err != nil {
			log.Fatalf("Failed to access spreadsheet: %v", err)
		}
		fmt.Printf("📊 Connected to spreadsheet: %s\n", spreadsheet.Properties.Title)
	}

	fmt.Println()
	fmt.Println("You can now use the stravaexport commands:")
	fmt.Println("  stravaexport download  - Download activities and streams")
	fmt.Println("  stravaexport export    - Write the workbook")
	fmt.Println("  stravaexport athlete   - Show the authorized athlete")
}
