package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenk/backoff"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
)

// SearchPage is one decoded page of repository search results. Items
// are kept raw so the platform extractor owns all field mapping.
type SearchPage struct {
	Items   []json.RawMessage
	NextURL string // empty on the last page
}

// RateLimitError reports an upstream 403 with its quota-reset time when
// the response carried one.
type RateLimitError struct {
	Reset    time.Time
	HasReset bool
}

func (e *RateLimitError) Error() string {
	if e.HasReset {
		return fmt.Sprintf("rate limited until %s", e.Reset.Format(time.RFC3339))
	}
	return "rate limited, no reset metadata"
}

func (e *RateLimitError) Unwrap() error { return apperr.ErrRateLimited }

// Delay returns how long to wait before retrying: reset minus now,
// clamped to zero, or fallback when the response had no reset metadata.
func (e *RateLimitError) Delay(now time.Time, fallback time.Duration) time.Duration {
	if !e.HasReset {
		return fallback
	}
	d := e.Reset.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// SearchClient issues authenticated search-API requests.
type SearchClient struct {
	client     *http.Client
	userAgent  string
	tokens     map[models.Platform]string
	maxRetries uint64
}

// NewSearchClient creates a client using the per-platform tokens.
func NewSearchClient(tokens map[models.Platform]string) *SearchClient {
	return &SearchClient{
		client:     &http.Client{Timeout: 30 * time.Second},
		userAgent:  "raido/1.0",
		tokens:     tokens,
		maxRetries: 3,
	}
}

// Fetch retrieves one search page. A 403 surfaces as *RateLimitError
// for the caller's backoff policy; transient failures are retried
// in-process a bounded number of times.
func (c *SearchClient) Fetch(ctx context.Context, platform models.Platform, pageURL string) (*SearchPage, error) {
	var page *SearchPage
	op := func() error {
		p, err := c.doFetch(ctx, platform, pageURL)
		if err != nil {
			var rl *RateLimitError
			if errors.As(err, &rl) || errors.Is(err, apperr.ErrNotFound) {
				return backoff.Permanent(err)
			}
			return err
		}
		page = p
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 15 * time.Second
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx)); err != nil {
		return nil, err
	}
	return page, nil
}

func (c *SearchClient) doFetch(ctx context.Context, platform models.Platform, pageURL string) (*SearchPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("crawler: build request: %w", err))
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if token := c.tokens[platform]; token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crawler: search %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return nil, rateLimitError(resp.Header)
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperr.ErrNotFound
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("crawler: status %d from %s: %w", resp.StatusCode, pageURL, apperr.ErrUpstreamDown)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("crawler: unexpected status %d from %s", resp.StatusCode, pageURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("crawler: read search body: %w", err)
	}

	// GitHub wraps results in "items", the Gitea API in "data".
	var envelope struct {
		Items []json.RawMessage `json:"items"`
		Data  []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("crawler: decode search response: %w", err))
	}
	items := envelope.Items
	if items == nil {
		items = envelope.Data
	}

	return &SearchPage{
		Items:   items,
		NextURL: parseNextLink(resp.Header.Get("Link")),
	}, nil
}

// Check performs the startup liveness probe: one request that must
// succeed, proving the credentials are usable.
func (c *SearchClient) Check(ctx context.Context, platform models.Platform, probeURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return fmt.Errorf("crawler: build probe: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if token := c.tokens[platform]; token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("crawler: liveness probe %s: %w", platform, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("crawler: liveness probe %s: status %d", platform, resp.StatusCode)
	}
	return nil
}

// rateLimitError extracts the reset time from rate-limit headers. Both
// upstreams report the reset as unix seconds.
func rateLimitError(h http.Header) *RateLimitError {
	if v := h.Get("X-RateLimit-Reset"); v != "" {
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
			return &RateLimitError{Reset: time.Unix(sec, 0), HasReset: true}
		}
	}
	return &RateLimitError{}
}

// parseNextLink extracts the rel="next" target from a Link header,
// returning empty when this was the last page.
func parseNextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}
		target := strings.Trim(strings.TrimSpace(segments[0]), "<>")
		for _, param := range segments[1:] {
			if strings.TrimSpace(param) == `rel="next"` {
				return target
			}
		}
	}
	return ""
}
