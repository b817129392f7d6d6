// Package fetcher retrieves OpenGraph metadata from the provider API with
// exponential backoff between failed attempts.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/ogfetch/internal/apperr"
	"github.com/starford/ogfetch/internal/metadata"
)

const maxResponseBytes = 4 << 20

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options configures a Client.
type Options struct {
	APIURL     string
	APIKey     string
	Retries    int
	Backoff    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
	Sleep      SleepFunc
	Now        func() time.Time
}

// Client fetches metadata for one URL at a time. It holds no mutable state
// and is safe for concurrent use.
type Client struct {
	apiURL  string
	apiKey  string
	retries int
	backoff time.Duration
	http    *http.Client
	logger  *slog.Logger
	sleep   SleepFunc
	now     func() time.Time
}

// ExhaustedError is returned after every attempt failed.
type ExhaustedError struct {
	URL      string
	Attempts int
	// Last is the final attempt's failure, kept for logging.
	Last error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed to fetch metadata for %s after %d attempts", e.URL, e.Attempts)
}

// Is makes errors.Is(err, apperr.ErrFetchExhausted) hold.
func (e *ExhaustedError) Is(target error) bool {
	return target == apperr.ErrFetchExhausted
}

// New creates a Client. Zero-valued options fall back to defaults.
func New(opts Options) *Client {
	c := &Client{
		apiURL:  strings.TrimRight(opts.APIURL, "/"),
		apiKey:  opts.APIKey,
		retries: opts.Retries,
		backoff: opts.Backoff,
		http:    opts.HTTPClient,
		logger:  opts.Logger,
		sleep:   opts.Sleep,
		now:     opts.Now,
	}
	if c.retries < 1 {
		c.retries = 1
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.sleep == nil {
		c.sleep = Sleep
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Sleep is the default SleepFunc backed by a timer.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// FetchMetadata requests metadata for target. It fails fast with
// ErrMissingCredential when no API key is configured. Otherwise it makes up
// to Retries attempts, waiting Backoff after the first failure and doubling
// the wait after each further one.
func (c *Client) FetchMetadata(ctx context.Context, target string) (metadata.Record, error) {
	if c.apiKey == "" {
		return metadata.Record{}, apperr.ErrMissingCredential
	}

	delay := c.backoff
	var last error
	for attempt := 1; attempt <= c.retries; attempt++ {
		rec, err := c.attempt(ctx, target)
		if err == nil {
			return rec, nil
		}
		last = err
		if ctx.Err() != nil {
			return metadata.Record{}, ctx.Err()
		}
		if attempt == c.retries {
			break
		}
		c.logger.Debug("fetcher: attempt failed, retrying",
			slog.String("url", target),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()))
		if err := c.sleep(ctx, delay); err != nil {
			return metadata.Record{}, err
		}
		delay *= 2
	}

	c.logger.Warn("fetcher: retries exhausted",
		slog.String("url", target),
		slog.Int("attempts", c.retries),
		slog.String("error", last.Error()))
	return metadata.Record{}, &ExhaustedError{URL: target, Attempts: c.retries, Last: last}
}

func (c *Client) attempt(ctx context.Context, target string) (metadata.Record, error) {
	endpoint := c.apiURL + "/" + url.QueryEscape(target) + "?app_id=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return metadata.Record{}, fmt.Errorf("fetcher: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return metadata.Record{}, fmt.Errorf("fetcher: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return metadata.Record{}, &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return metadata.Record{}, fmt.Errorf("fetcher: read body: %w", err)
	}
	return metadata.NormalizeJSON(body, target, c.now())
}

// StatusError reports a non-2xx provider response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error! status: %d", e.Code)
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
