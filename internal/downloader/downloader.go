package downloader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/digitaldrywood/stravaexport/internal/strava"
)

type API interface {
	ListActivities(ctx context.Context, opts strava.ListOptions) ([]strava.Activity, error)
	Streams(ctx context.Context, activityID int64, keys []string) (strava.StreamSet, error)
}

type Store interface {
	UpsertActivity(ctx context.Context, a strava.Activity) error
	ActivitiesWithoutStreams(ctx context.Context) ([]int64, error)
	SaveStreams(ctx context.Context, activityID int64, set strava.StreamSet) error
	LastStartDate(ctx context.Context) (time.Time, error)
	SetLastStartDate(ctx context.Context, t time.Time) error
}

type Downloader struct {
	api    API
	store  Store
	logger *zap.Logger
}

type Options struct {
	// After and Before bound the activity start dates. A zero After resumes
	// from the newest activity of the previous sync unless Full is set.
	After  time.Time
	Before time.Time
	Full   bool

	PerPage int
	// Limit stops paging once this many activities were fetched; 0 means all.
	Limit int

	Streams     bool
	StreamTypes []string
	Concurrency int
}

type Summary struct {
	Activities int
	Streams    int
	Newest     time.Time
}

func NewDownloader(api API, store Store, logger *zap.Logger) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{
		api:    api,
		store:  store,
		logger: logger,
	}
}

// Sync pages through the athlete's activities, stores them, and then
// fetches the streams of every stored activity that has none yet.
func (d *Downloader) Sync(ctx context.Context, opts Options) (*Summary, error) {
	last, err := d.store.LastStartDate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read sync state: %w", err)
	}

	after := opts.After
	if after.IsZero() && !opts.Full {
		after = last
	}
	// The cursor may only move when nothing between it and the first
	// activity listed was skipped.
	contiguous := !after.After(last)
	// Strava lists newest first without an after bound; the epoch keeps the
	// order oldest first so a limited run stores a prefix.
	if after.IsZero() {
		after = time.Unix(0, 0)
	}

	perPage := opts.PerPage
	if perPage <= 0 {
		perPage = strava.MaxPerPage
	}

	summary := &Summary{}
	d.logger.Info("syncing activities", zap.Time("after", after), zap.Time("before", opts.Before))

	for page := 1; ; page++ {
		acts, err := d.api.ListActivities(ctx, strava.ListOptions{
			Page:    page,
			PerPage: perPage,
			After:   after,
			Before:  opts.Before,
		})
		if err != nil {
			return summary, err
		}
		if len(acts) == 0 {
			break
		}

		for _, a := range acts {
			if err := d.store.UpsertActivity(ctx, a); err != nil {
				return summary, err
			}
			summary.Activities++
			if a.StartDate.After(summary.Newest) {
				summary.Newest = a.StartDate
			}
			if opts.Limit > 0 && summary.Activities >= opts.Limit {
				break
			}
		}
		d.logger.Debug("fetched activity page", zap.Int("page", page), zap.Int("count", len(acts)))

		if opts.Limit > 0 && summary.Activities >= opts.Limit {
			break
		}
		if len(acts) < perPage {
			break
		}
	}

	if contiguous && summary.Newest.After(last) {
		if err := d.store.SetLastStartDate(ctx, summary.Newest); err != nil {
			return summary, fmt.Errorf("failed to save sync state: %w", err)
		}
	} else if !summary.Newest.IsZero() && !contiguous {
		d.logger.Info("sync cursor kept, requested range skips activities", zap.Time("cursor", last), zap.Time("after", opts.After))
	}

	if !opts.Streams {
		return summary, nil
	}

	n, err := d.syncStreams(ctx, opts)
	summary.Streams = n
	return summary, err
}

func (d *Downloader) syncStreams(ctx context.Context, opts Options) (int, error) {
	ids, err := d.store.ActivitiesWithoutStreams(ctx)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	d.logger.Info("fetching streams", zap.Int("activities", len(ids)), zap.Int("concurrency", concurrency))

	var done atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, id := range ids {
		g.Go(func() error {
			set, err := d.api.Streams(ctx, id, opts.StreamTypes)
			if err != nil {
				var apiErr *strava.APIError
				if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
					return err
				}
				d.logger.Debug("activity has no streams", zap.Int64("activity", id))
				set = strava.StreamSet{}
			}
			if err := d.store.SaveStreams(ctx, id, set); err != nil {
				return err
			}
			done.Add(1)
			return nil
		})
	}

	err = g.Wait()
	return int(done.Load()), err
}
