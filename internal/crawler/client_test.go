package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/raido/internal/models"
)

func TestSearchFetchFollowsLinkHeader(t *testing.T) {
	var page1Hits, page2Hits atomic.Int64
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		page1Hits.Add(1)
		w.Header().Set("Link", fmt.Sprintf(`<%s/search/page2>; rel="next", <%s/search/page9>; rel="last"`, srv.URL, srv.URL))
		fmt.Fprint(w, `{"items": [{"full_name": "alice/zap"}]}`)
	})
	mux.HandleFunc("/search/page2", func(w http.ResponseWriter, r *http.Request) {
		page2Hits.Add(1)
		fmt.Fprint(w, `{"items": [{"full_name": "bob/zip"}]}`)
	})

	c := NewSearchClient(nil)
	ctx := context.Background()

	page, err := c.Fetch(ctx, models.PlatformGitHub, srv.URL+"/search")
	if err != nil {
		t.Fatalf("fetch page 1: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("page 1 items = %d, want 1", len(page.Items))
	}
	if want := srv.URL + "/search/page2"; page.NextURL != want {
		t.Fatalf("next url = %q, want %q", page.NextURL, want)
	}

	page, err = c.Fetch(ctx, models.PlatformGitHub, page.NextURL)
	if err != nil {
		t.Fatalf("fetch page 2: %v", err)
	}
	if page.NextURL != "" {
		t.Fatalf("last page next url = %q, want empty", page.NextURL)
	}

	if page1Hits.Load() != 1 || page2Hits.Load() != 1 {
		t.Fatalf("hits = %d/%d, want exactly one request per page", page1Hits.Load(), page2Hits.Load())
	}
}

func TestSearchFetchRateLimited(t *testing.T) {
	reset := time.Now().Add(90 * time.Second).Unix()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewSearchClient(map[models.Platform]string{models.PlatformGitHub: "tok"})
	_, err := c.Fetch(context.Background(), models.PlatformGitHub, srv.URL)

	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("err = %v, want RateLimitError", err)
	}
	if !rl.HasReset || rl.Reset.Unix() != reset {
		t.Fatalf("reset = %v (has=%v), want unix %d", rl.Reset, rl.HasReset, reset)
	}
	if hits.Load() != 1 {
		t.Fatalf("hits = %d, want 1 (rate limit must not be retried in-process)", hits.Load())
	}
}

func TestRateLimitDelay(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fallback := time.Hour

	tests := []struct {
		name string
		err  RateLimitError
		want time.Duration
	}{
		{"future reset", RateLimitError{Reset: now.Add(2 * time.Minute), HasReset: true}, 2 * time.Minute},
		{"elapsed reset", RateLimitError{Reset: now.Add(-time.Minute), HasReset: true}, 0},
		{"no metadata", RateLimitError{}, fallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Delay(now, fallback); got != tt.want {
				t.Fatalf("delay = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSearchFetchGiteaEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok": true, "data": [{"full_name": "carol/zed"}, {"full_name": "dave/zen"}]}`)
	}))
	defer srv.Close()

	c := NewSearchClient(nil)
	page, err := c.Fetch(context.Background(), models.PlatformCodeberg, srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(page.Items))
	}
}

func TestParseNextLink(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{`<https://api.example.com/search?page=2>; rel="next"`, "https://api.example.com/search?page=2"},
		{`<https://a/p?page=4>; rel="prev", <https://a/p?page=6>; rel="next", <https://a/p?page=9>; rel="last"`, "https://a/p?page=6"},
		{`<https://a/p?page=9>; rel="last"`, ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := parseNextLink(tt.header); got != tt.want {
			t.Fatalf("parseNextLink(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
