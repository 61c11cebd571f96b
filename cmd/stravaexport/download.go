package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/digitaldrywood/stravaexport/internal/database"
	"github.com/digitaldrywood/stravaexport/internal/downloader"
	"github.com/digitaldrywood/stravaexport/internal/strava"
)

var (
	downloadAfter  string
	downloadBefore string
	downloadOpts   downloader.Options
	skipStreams    bool

	downloadCmd = &cobra.Command{
		Use:   "download",
		Short: "Download activities and their streams into the local database",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := downloadOpts
			var err error
			if opts.After, err = parseDate(downloadAfter); err != nil {
				return err
			}
			if opts.Before, err = parseDate(downloadBefore); err != nil {
				return err
			}
			opts.Streams = !skipStreams

			client, err := stravaClient(cmd.Context())
			if err != nil {
				return err
			}

			db, err := database.New(cfg.Export.DataDir)
			if err != nil {
				return err
			}
			defer db.Close()

			summary, err := downloader.NewDownloader(client, db, logger).Sync(cmd.Context(), opts)
			if err != nil {
				return err
			}

			total, err := db.CountActivities(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("✅ Downloaded %s activities and %s stream sets (%s stored)\n",
				humanize.Comma(int64(summary.Activities)),
				humanize.Comma(int64(summary.Streams)),
				humanize.Comma(int64(total)))
			if !summary.Newest.IsZero() {
				fmt.Printf("Newest activity started %s\n", humanize.Time(summary.Newest))
			}
			return nil
		},
	}
)

func init() {
	f := downloadCmd.Flags()
	f.StringVar(&downloadAfter, "after", "", "only activities starting after this date (YYYY-MM-DD)")
	f.StringVar(&downloadBefore, "before", "", "only activities starting before this date (YYYY-MM-DD)")
	f.BoolVar(&downloadOpts.Full, "full", false, "ignore the previous sync and list every activity")
	f.IntVar(&downloadOpts.PerPage, "per-page", strava.MaxPerPage, "activities per API page")
	f.IntVar(&downloadOpts.Limit, "limit", 0, "stop after this many activities (0 for all)")
	f.IntVar(&downloadOpts.Concurrency, "concurrency", 4, "parallel stream downloads")
	f.StringSliceVar(&downloadOpts.StreamTypes, "streams", strava.StreamTypes, "stream types to fetch")
	f.BoolVar(&skipStreams, "no-streams", false, "skip downloading streams")

	rootCmd.AddCommand(downloadCmd)
}
