package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitaldrywood/stravaexport/internal/strava"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func activity(id int64, start time.Time) strava.Activity {
	return strava.Activity{
		ID:          id,
		Name:        "Run",
		SportType:   "Run",
		StartDate:   start,
		Distance:    5000,
		MovingTime:  1500,
		ElapsedTime: 1600,
	}
}

func TestActivities(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	day := time.Date(2019, 3, 27, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.UpsertActivity(ctx, activity(2, day.Add(24*time.Hour))))
	require.NoError(t, db.UpsertActivity(ctx, activity(1, day)))

	updated := activity(1, day)
	updated.Name = "Renamed"
	require.NoError(t, db.UpsertActivity(ctx, updated))

	n, err := db.CountActivities(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := db.GetActivity(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Renamed", got.Name)
	assert.True(t, got.StartDate.Equal(day))

	missing, err := db.GetActivity(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := db.ListActivities(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(1), all[0].ID)
	assert.Equal(t, int64(2), all[1].ID)

	later, err := db.ListActivities(ctx, day, time.Time{})
	require.NoError(t, err)
	require.Len(t, later, 1)
	assert.Equal(t, int64(2), later[0].ID)
}

func TestStreams(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	require.NoError(t, db.UpsertActivity(ctx, activity(1, time.Now())))
	require.NoError(t, db.UpsertActivity(ctx, activity(2, time.Now())))

	pending, err := db.ActivitiesWithoutStreams(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2}, pending)

	set := strava.StreamSet{
		"time":   {Type: "time", SeriesType: "distance", OriginalSize: 2, Resolution: "high", Data: []any{0.0, 1.0}},
		"latlng": {Type: "latlng", SeriesType: "distance", OriginalSize: 2, Resolution: "high", Data: []any{[]any{40.1, -75.2}, []any{40.2, -75.3}}},
	}
	require.NoError(t, db.SaveStreams(ctx, 1, set))
	require.NoError(t, db.SaveStreams(ctx, 2, strava.StreamSet{}))

	pending, err = db.ActivitiesWithoutStreams(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	got, err := db.GetStreams(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, set, got)

	empty, err := db.GetStreams(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLastStartDate(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	last, err := db.LastStartDate(ctx)
	require.NoError(t, err)
	assert.True(t, last.IsZero())

	want := time.Date(2019, 3, 27, 12, 12, 0, 0, time.UTC)
	require.NoError(t, db.SetLastStartDate(ctx, want))
	require.NoError(t, db.SetLastStartDate(ctx, want))

	last, err = db.LastStartDate(ctx)
	require.NoError(t, err)
	assert.True(t, want.Equal(last))
}
