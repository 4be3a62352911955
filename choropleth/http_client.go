package choropleth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	// DefaultFetchTimeout bounds a single dataset request.
	DefaultFetchTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of attempts per fetch.
	DefaultMaxRetries = 3

	defaultBaseBackoff = 500 * time.Millisecond
	maxBackoff         = 30 * time.Second

	// maxDatasetBytes caps the accepted response body.
	maxDatasetBytes = 50 << 20
)

// StatusError is returned for a non-200 dataset response.
type StatusError struct {
	URL        string
	StatusCode int
	retryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP GET %s: status %d", e.URL, e.StatusCode)
}

// Temporary reports whether a later attempt may succeed. Client errors
// other than 408 and 429 are final.
func (e *StatusError) Temporary() bool {
	switch {
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 400 && e.StatusCode < 500:
		return false
	}
	return true
}

// FetchOption configures FetchDataset.
type FetchOption func(*fetcher)

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) FetchOption {
	return func(f *fetcher) { f.timeout = d }
}

// WithMaxRetries sets the maximum number of attempts.
func WithMaxRetries(n int) FetchOption {
	return func(f *fetcher) { f.attempts = n }
}

// WithBaseBackoff sets the delay before the second attempt. Each later
// attempt doubles it.
func WithBaseBackoff(d time.Duration) FetchOption {
	return func(f *fetcher) { f.backoff = d }
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(client *http.Client) FetchOption {
	return func(f *fetcher) { f.client = client }
}

type fetcher struct {
	client   *http.Client
	timeout  time.Duration
	attempts int
	backoff  time.Duration
}

func newFetcher(opts []FetchOption) *fetcher {
	f := &fetcher{
		timeout:  DefaultFetchTimeout,
		attempts: DefaultMaxRetries,
		backoff:  defaultBaseBackoff,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.attempts < 1 {
		f.attempts = 1
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: f.timeout}
	}
	return f
}

// FetchDataset downloads and parses a GeoJSON dataset. Transport failures,
// server errors and throttling are retried with exponential backoff, honoring
// Retry-After. Other client errors and parse errors end the fetch at once.
func FetchDataset(ctx context.Context, url string, opts ...FetchOption) (*Dataset, error) {
	if url == "" {
		return nil, errors.New("fetch dataset: URL is empty")
	}
	f := newFetcher(opts)

	var lastErr error
	delay := f.backoff
	for attempt := 1; attempt <= f.attempts; attempt++ {
		body, err := f.get(ctx, url)
		if err == nil {
			ds, err := ParseDataset(body)
			if err != nil {
				return nil, fmt.Errorf("fetch dataset: %w", err)
			}
			return ds, nil
		}
		lastErr = err

		var se *StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return nil, fmt.Errorf("fetch dataset: %w", err)
		}
		if attempt == f.attempts {
			break
		}

		wait := delay
		if se != nil && se.retryAfter > 0 {
			wait = se.retryAfter
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("fetch dataset: %w", ctx.Err())
		case <-time.After(wait):
		}
		delay = min(delay*2, maxBackoff)
	}

	return nil, fmt.Errorf("fetch dataset: all %d attempts failed: %w", f.attempts, lastErr)
}

func (f *fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{
			URL:        url,
			StatusCode: resp.StatusCode,
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDatasetBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}
	if len(body) > maxDatasetBytes {
		return nil, &StatusError{URL: url, StatusCode: http.StatusRequestEntityTooLarge}
	}
	return body, nil
}

// parseRetryAfter reads the delay-seconds form of Retry-After, capped at
// maxBackoff.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxBackoff)
}
