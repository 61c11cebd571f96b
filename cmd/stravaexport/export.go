package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/digitaldrywood/stravaexport/internal/database"
	"github.com/digitaldrywood/stravaexport/internal/export"
	"github.com/digitaldrywood/stravaexport/internal/google"
	"github.com/digitaldrywood/stravaexport/internal/strava"
)

var (
	exportOutput string
	exportAfter  string
	exportBefore string
	toSheets     bool

	exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Write downloaded activities to a workbook and optionally Google Sheets",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			after, err := parseDate(exportAfter)
			if err != nil {
				return err
			}
			before, err := parseDate(exportBefore)
			if err != nil {
				return err
			}

			db, err := database.New(cfg.Export.DataDir)
			if err != nil {
				return err
			}
			defer db.Close()

			acts, err := db.ListActivities(ctx, after, before)
			if err != nil {
				return err
			}
			if len(acts) == 0 {
				fmt.Println("No activities stored, run \"stravaexport download\" first")
				return nil
			}

			data := export.Data{Activities: acts, Streams: make(map[int64]strava.StreamSet, len(acts))}
			samples := make(map[int64]int, len(acts))
			var distance float64
			for _, a := range acts {
				set, err := db.GetStreams(ctx, a.ID)
				if err != nil {
					return err
				}
				data.Streams[a.ID] = set
				samples[a.ID] = set.Len()
				distance += a.Distance
			}

			output := exportOutput
			if output == "" {
				output = cfg.Export.Workbook
			}
			if err := export.WriteWorkbook(output, data); err != nil {
				return err
			}

			size := "unknown size"
			if info, err := os.Stat(output); err == nil {
				size = humanize.Bytes(uint64(info.Size()))
			}
			abs, _ := filepath.Abs(output)
			fmt.Printf("✅ Wrote %s activities (%s km) to %s (%s)\n",
				humanize.Comma(int64(len(acts))),
				humanize.CommafWithDigits(distance/1000, 1),
				abs, size)
			logger.Info("workbook written", zap.String("path", abs), zap.Int("activities", len(acts)))

			if !toSheets {
				return nil
			}
			return appendToSheets(cmd, acts, samples)
		},
	}
)

func init() {
	f := exportCmd.Flags()
	f.StringVarP(&exportOutput, "output", "o", "", "workbook path (default [Export] workbook)")
	f.StringVar(&exportAfter, "after", "", "only activities starting after this date (YYYY-MM-DD)")
	f.StringVar(&exportBefore, "before", "", "only activities starting before this date (YYYY-MM-DD)")
	f.BoolVar(&toSheets, "sheets", false, "also append new activities to the configured Google spreadsheet")

	rootCmd.AddCommand(exportCmd)
}

func appendToSheets(cmd *cobra.Command, acts []strava.Activity, samples map[int64]int) error {
	if cfg.Export.SpreadsheetID == "" {
		return fmt.Errorf("no spreadsheet_id configured in [Export]")
	}

	auth, err := google.NewAuth(cfg.Export.GoogleCredentials, cfg.Export.GoogleToken, cfg.Export.GoogleRedirectURL, logger)
	if err != nil {
		return err
	}
	service, err := auth.GetSheetsService(cmd.Context())
	if err != nil {
		return err
	}

	n, err := google.NewSheetsClient(service, cfg.Export.SpreadsheetID).AppendActivities(cmd.Context(), acts, samples)
	if err != nil {
		return err
	}
	fmt.Printf("✅ Appended %s new activities to Google Sheets\n", humanize.Comma(int64(n)))
	return nil
}
