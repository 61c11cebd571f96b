package strava

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.Client(), srv.URL+"/", WithRetry(time.Millisecond, 3))
}

func TestListActivities(t *testing.T) {
	after := time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/athlete/activities", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "200", r.URL.Query().Get("per_page"))
		assert.Equal(t, fmt.Sprint(after.Unix()), r.URL.Query().Get("after"))
		assert.Empty(t, r.URL.Query().Get("before"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[
			{"id": 1, "name": "Morning Run", "sport_type": "Run", "start_date": "2019-03-27T12:12:00Z", "distance": 5012.3, "moving_time": 1500, "elapsed_time": 1600},
			{"id": 2, "name": "Evening Ride", "sport_type": "Ride", "start_date": "2019-03-28T18:00:00Z", "distance": 20000, "has_heartrate": true, "average_heartrate": 141.5}
		]`)
	})

	acts, err := c.ListActivities(context.Background(), ListOptions{Page: 2, PerPage: 500, After: after})
	require.NoError(t, err)
	require.Len(t, acts, 2)

	assert.Equal(t, int64(1), acts[0].ID)
	assert.Equal(t, "Morning Run", acts[0].Name)
	assert.Equal(t, 5012.3, acts[0].Distance)
	assert.Equal(t, time.Date(2019, 3, 27, 12, 12, 0, 0, time.UTC), acts[0].StartDate)
	assert.True(t, acts[1].HasHeartrate)
	assert.Equal(t, 141.5, acts[1].AverageHeartrate)
}

func TestStreams(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/activities/42/streams", r.URL.Path)
		assert.Equal(t, "time,heartrate,latlng", r.URL.Query().Get("keys"))
		assert.Equal(t, "true", r.URL.Query().Get("key_by_type"))

		fmt.Fprint(w, `{
			"time": {"data": [0, 1, 2], "series_type": "distance", "original_size": 3, "resolution": "high"},
			"heartrate": {"data": [120, 121, 125], "series_type": "distance", "original_size": 3, "resolution": "high"},
			"latlng": {"data": [[40.1, -75.2], [40.2, -75.3], [40.3, -75.4]], "series_type": "distance", "original_size": 3, "resolution": "high"}
		}`)
	})

	set, err := c.Streams(context.Background(), 42, []string{"time", "heartrate", "latlng"})
	require.NoError(t, err)

	assert.Equal(t, 3, set.Len())
	assert.Equal(t, []string{"time", "latlng", "heartrate"}, set.Ordered())
	assert.Equal(t, "heartrate", set["heartrate"].Type)
	assert.Equal(t, float64(125), set["heartrate"].Data[2])
	assert.Equal(t, []any{40.1, -75.2}, set["latlng"].Data[0])
}

func TestRetryOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"message":"Rate Limit Exceeded"}`)
			return
		}
		fmt.Fprint(w, `{"id": 7, "firstname": "Ada", "lastname": "Lovelace"}`)
	})

	a, err := c.Athlete(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), a.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryExhausted(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.Athlete(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, int32(4), calls.Load())
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"Authorization Error","errors":[{"resource":"Athlete","field":"access_token","code":"invalid"}]}`)
	})

	_, err := c.ListActivities(context.Background(), ListOptions{})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Authorization Error", apiErr.Message)
	require.Len(t, apiErr.Errors, 1)
	assert.Equal(t, "access_token", apiErr.Errors[0].Field)
	assert.Equal(t, int32(1), calls.Load())
}
