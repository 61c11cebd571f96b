package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const MaxPerPage = 200

// Client is a minimal Strava v3 REST client. Authorization is left to the
// supplied http.Client, normally one built by OAuth.Client.
type Client struct {
	http       *http.Client
	baseURL    string
	logger     *zap.Logger
	retryBase  time.Duration
	maxRetries uint64
}

type Option func(*Client)

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRetry sets the first backoff interval and how many times a throttled
// or failed request is retried.
func WithRetry(base time.Duration, maxRetries uint64) Option {
	return func(c *Client) {
		c.retryBase = base
		c.maxRetries = maxRetries
	}
}

func NewClient(httpClient *http.Client, baseURL string, opts ...Option) *Client {
	c := &Client{
		http:       httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     zap.NewNop(),
		retryBase:  time.Second,
		maxRetries: 4,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type ListOptions struct {
	Page    int
	PerPage int
	After   time.Time
	Before  time.Time
}

func (c *Client) Athlete(ctx context.Context) (*Athlete, error) {
	var a Athlete
	if err := c.get(ctx, "/athlete", nil, &a); err != nil {
		return nil, fmt.Errorf("failed to get athlete: %w", err)
	}
	return &a, nil
}

// ListActivities returns one page of the authenticated athlete's activities.
func (c *Client) ListActivities(ctx context.Context, opts ListOptions) ([]Activity, error) {
	q := url.Values{}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PerPage > 0 {
		perPage := opts.PerPage
		if perPage > MaxPerPage {
			perPage = MaxPerPage
		}
		q.Set("per_page", strconv.Itoa(perPage))
	}
	if !opts.After.IsZero() {
		q.Set("after", strconv.FormatInt(opts.After.Unix(), 10))
	}
	if !opts.Before.IsZero() {
		q.Set("before", strconv.FormatInt(opts.Before.Unix(), 10))
	}

	var acts []Activity
	if err := c.get(ctx, "/athlete/activities", q, &acts); err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	return acts, nil
}

// Streams fetches the requested time series of one activity. Types the
// activity has no data for are simply absent from the result.
func (c *Client) Streams(ctx context.Context, activityID int64, keys []string) (StreamSet, error) {
	if len(keys) == 0 {
		keys = StreamTypes
	}
	q := url.Values{}
	q.Set("keys", strings.Join(keys, ","))
	q.Set("key_by_type", "true")

	set := StreamSet{}
	path := fmt.Sprintf("/activities/%d/streams", activityID)
	if err := c.get(ctx, path, q, &set); err != nil {
		return nil, fmt.Errorf("failed to get streams for activity %d: %w", activityID, err)
	}
	for typ, st := range set {
		st.Type = typ
		set[typ] = st
	}
	return set, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	backoff := retry.WithMaxRetries(c.maxRetries, retry.WithCappedDuration(time.Minute, retry.NewExponential(c.retryBase)))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			var rerr *oauth2.RetrieveError
			if ctx.Err() != nil || errors.As(err, &rerr) {
				return err
			}
			c.logger.Warn("request failed, retrying", zap.String("path", path), zap.Error(err))
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		c.logger.Debug("strava request",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("rate_usage", resp.Header.Get("X-RateLimit-Usage")),
			zap.String("rate_limit", resp.Header.Get("X-RateLimit-Limit")),
		)

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			apiErr := decodeError(resp)
			c.logger.Warn("strava throttled or unavailable, retrying", zap.String("path", path), zap.Int("status", resp.StatusCode))
			return retry.RetryableError(apiErr)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return decodeError(resp)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	})
}

func decodeError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(body, apiErr); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
