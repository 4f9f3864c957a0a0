package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"

	"github.com/starford/raido/internal/apperr"
)

// maxManifestSize caps how much raw-content body is read; real
// manifests are a few KB.
const maxManifestSize = 1 << 20

// ContentFetcher downloads raw manifest text. Transient failures
// (transport errors, 5xx) are retried in-process with bounded
// exponential backoff; repeated failures trip a per-host circuit
// breaker so a down host is not hammered by every queued item.
type ContentFetcher struct {
	client     *http.Client
	userAgent  string
	maxRetries uint64

	mu       sync.Mutex
	breakers map[string]*circuit.Breaker
}

// NewContentFetcher creates a fetcher with default limits.
func NewContentFetcher() *ContentFetcher {
	return &ContentFetcher{
		client:     &http.Client{Timeout: 30 * time.Second},
		userAgent:  "raido/1.0",
		maxRetries: 3,
		breakers:   make(map[string]*circuit.Breaker),
	}
}

// Fetch returns the body at rawURL. Absence (404) surfaces as
// apperr.ErrNotFound and does not count against the host's breaker.
func (f *ContentFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	host := hostOf(rawURL)
	br := f.breaker(host)
	if !br.Ready() {
		return nil, fmt.Errorf("crawler: circuit open for %s: %w", host, apperr.ErrUpstreamDown)
	}

	var body []byte
	var fetchErr error
	err := br.Call(func() error {
		body, fetchErr = f.fetchWithRetry(ctx, rawURL)
		if errors.Is(fetchErr, apperr.ErrNotFound) {
			return nil // absence is an answer, not an upstream failure
		}
		return fetchErr
	}, 0)
	if err != nil {
		return nil, err
	}
	return body, fetchErr
}

// fetchWithRetry applies the bounded-retry policy: 404 and rate limits
// are permanent from the in-process view (the queue decides what
// happens next), everything else transient gets up to maxRetries
// attempts.
func (f *ContentFetcher) fetchWithRetry(ctx context.Context, rawURL string) ([]byte, error) {
	var body []byte
	op := func() error {
		b, err := f.doFetch(ctx, rawURL)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrRateLimited) {
				return backoff.Permanent(err)
			}
			return err
		}
		body = b
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, f.maxRetries), ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

func (f *ContentFetcher) doFetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("crawler: build request: %w", err))
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crawler: fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize))
		if err != nil {
			return nil, fmt.Errorf("crawler: read body: %w", err)
		}
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperr.ErrNotFound
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperr.ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("crawler: status %d from %s: %w", resp.StatusCode, rawURL, apperr.ErrUpstreamDown)
	}
	// Unclassified statuses get the same bounded retry before the item
	// is permanently dropped.
	return nil, fmt.Errorf("crawler: unexpected status %d from %s", resp.StatusCode, rawURL)
}

// breaker returns (or creates) the circuit breaker for a host. Five
// consecutive failures trip it; reset probes follow exponential backoff.
func (f *ContentFetcher) breaker(host string) *circuit.Breaker {
	f.mu.Lock()
	defer f.mu.Unlock()

	if br, ok := f.breakers[host]; ok {
		return br
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 30 * time.Second
	bo.MaxInterval = 5 * time.Minute
	bo.Reset()

	br := circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    bo,
		ShouldTrip: circuit.ThresholdTripFunc(5),
	})
	f.breakers[host] = br
	return br
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}
