package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/queue"
	"github.com/starford/raido/internal/store"
	"github.com/starford/raido/internal/testutil"
)

func newTestCrawler(t *testing.T, searchBase, rawBase string) (*Crawler, *store.DB) {
	t.Helper()
	db := testutil.TestDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := Config{
		Platforms: map[models.Platform]PlatformSpec{
			models.PlatformGitHub: {
				SearchBase: searchBase,
				RawBase:    rawBase,
				Query:      "topic:zig-package",
			},
		},
		NextPageDelay:     time.Second,
		RateLimitFallback: time.Hour,
	}
	c := New(db,
		NewSearchClient(nil),
		NewContentFetcher(),
		queue.New(SearchQueue, db, logger),
		queue.New(ManifestQueue, db, logger),
		nil, logger, cfg)
	return c, db
}

func githubItem(fullName string) string {
	return fmt.Sprintf(`{
		"id": 101,
		"full_name": %q,
		"default_branch": "main",
		"owner": {"login": "alice"},
		"description": "a zig thing",
		"stargazers_count": 42,
		"forks_count": 3,
		"created_at": "2023-01-02T03:04:05Z",
		"updated_at": "2024-01-02T03:04:05Z",
		"pushed_at": "2024-01-02T03:04:05Z"
	}`, fullName)
}

func searchPayload(t *testing.T, platform models.Platform, url string) string {
	t.Helper()
	b, err := json.Marshal(searchJob{Platform: platform, URL: url})
	if err != nil {
		t.Fatalf("marshal search job: %v", err)
	}
	return string(b)
}

func manifestPayload(t *testing.T, repo models.Repository) string {
	t.Helper()
	b, err := json.Marshal(manifestJob{
		RepoID:   repo.ID,
		Platform: repo.Platform,
		FullName: repo.FullName,
		Branch:   repo.DefaultBranch,
	})
	if err != nil {
		t.Fatalf("marshal manifest job: %v", err)
	}
	return string(b)
}

func seedRepo(t *testing.T, db *store.DB, fullName string) models.Repository {
	t.Helper()
	stored, err := db.UpsertRepos([]models.Repository{{
		Platform:      models.PlatformGitHub,
		FullName:      fullName,
		Owner:         "alice",
		DefaultBranch: "main",
	}})
	if err != nil {
		t.Fatalf("seed repo: %v", err)
	}
	return stored[0]
}

func TestHandleSearchUpsertsAndEnqueuesManifests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"items": [%s]}`, githubItem("alice/zap"))
	}))
	defer srv.Close()

	c, db := newTestCrawler(t, srv.URL, "http://unused")
	if err := c.HandleSearch(context.Background(), searchPayload(t, models.PlatformGitHub, srv.URL)); err != nil {
		t.Fatalf("handle search: %v", err)
	}

	repo, err := db.GetRepo(models.PlatformGitHub, "alice/zap")
	if err != nil {
		t.Fatalf("get repo: %v", err)
	}
	if repo.Stars != 42 || repo.Owner != "alice" {
		t.Fatalf("repo = %+v", repo)
	}

	item, err := db.NextItem(ManifestQueue, time.Now().Unix())
	if err != nil || item == nil {
		t.Fatalf("next manifest item = %v, %v", item, err)
	}
	var job manifestJob
	if err := json.Unmarshal([]byte(item.Payload), &job); err != nil {
		t.Fatalf("decode manifest job: %v", err)
	}
	if job.RepoID != repo.ID || job.FullName != "alice/zap" || job.Branch != "main" {
		t.Fatalf("manifest job = %+v", job)
	}

	// Last page: nothing further on the search queue.
	if n, _ := db.CountItems(SearchQueue); n != 0 {
		t.Fatalf("search queue depth = %d, want 0", n)
	}
}

func TestHandleSearchFollowsNextPage(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.Header().Set("Link", fmt.Sprintf(`<%s/page2>; rel="next"`, srvURL))
		}
		fmt.Fprint(w, `{"items": []}`)
	}))
	defer srv.Close()
	srvURL = srv.URL

	c, db := newTestCrawler(t, srv.URL, "http://unused")
	if err := c.HandleSearch(context.Background(), searchPayload(t, models.PlatformGitHub, srv.URL+"/")); err != nil {
		t.Fatalf("handle search: %v", err)
	}

	item, err := db.NextItem(SearchQueue, time.Now().Add(time.Minute).Unix())
	if err != nil || item == nil {
		t.Fatalf("next search item = %v, %v", item, err)
	}
	var job searchJob
	if err := json.Unmarshal([]byte(item.Payload), &job); err != nil {
		t.Fatalf("decode search job: %v", err)
	}
	if want := srv.URL + "/page2"; job.URL != want {
		t.Fatalf("follow-up url = %q, want %q", job.URL, want)
	}
}

func TestHandleSearchRateLimitedReenqueues(t *testing.T) {
	reset := time.Now().Add(10 * time.Minute).Unix()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c, db := newTestCrawler(t, srv.URL, "http://unused")
	payload := searchPayload(t, models.PlatformGitHub, srv.URL)
	if err := c.HandleSearch(context.Background(), payload); err != nil {
		t.Fatalf("handle search during rate limit: %v", err)
	}

	// The same page went back on the queue, delayed until the reset.
	if n, _ := db.CountItems(SearchQueue); n != 1 {
		t.Fatalf("search queue depth = %d, want 1", n)
	}
	at, ok, err := db.NextAvailableAt(SearchQueue)
	if err != nil || !ok {
		t.Fatalf("next available: %v %v", ok, err)
	}
	if at < reset-2 || at > reset+2 {
		t.Fatalf("available_at = %d, want about %d", at, reset)
	}
	if item, _ := db.NextItem(SearchQueue, time.Now().Unix()); item != nil {
		t.Fatalf("item eligible before reset")
	}
}

func TestHandleManifestNotFoundMarksAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c, db := newTestCrawler(t, "http://unused", srv.URL)
	repo := seedRepo(t, db, "alice/ghost")

	if err := c.HandleManifest(context.Background(), manifestPayload(t, repo)); err != nil {
		t.Fatalf("handle manifest: %v", err)
	}

	counts, err := db.Counts()
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.ManifestsAbsent != 1 {
		t.Fatalf("absent = %d, want 1", counts.ManifestsAbsent)
	}
	if n, _ := db.CountItems(ManifestQueue); n != 0 {
		t.Fatalf("manifest queue depth = %d, want 0 (absence is final)", n)
	}
}

func TestHandleManifestPersistsDependencies(t *testing.T) {
	body := `.{
    .name = "zap",
    .version = "0.1.0",
    .dependencies = .{
        .libfoo = .{
            .url = "https://example.com/libfoo.tar.gz",
            .hash = "1220aabbcc",
        },
        .vendored = .{
            .path = "./vendor/lib",
        },
    },
    .paths = .{
        "build.zig",
        "src",
    },
}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	c, db := newTestCrawler(t, "http://unused", srv.URL)
	repo := seedRepo(t, db, "alice/zap")

	t1 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return t1 }
	if err := c.HandleManifest(context.Background(), manifestPayload(t, repo)); err != nil {
		t.Fatalf("handle manifest: %v", err)
	}

	m, err := db.GetManifest(repo.ID)
	if err != nil {
		t.Fatalf("get manifest: %v", err)
	}
	if m.Name != "zap" || m.Version != "0.1.0" {
		t.Fatalf("manifest = %+v", m)
	}
	if len(m.Paths) != 2 || m.Paths[0] != "build.zig" {
		t.Fatalf("paths = %v", m.Paths)
	}

	deps, err := db.RepoDependencies(repo.ID)
	if err != nil {
		t.Fatalf("dependencies: %v", err)
	}
	if len(deps) != 2 {
		t.Fatalf("deps = %+v, want 2", deps)
	}
	urlDep, err := db.GetURLDependency("1220aabbcc")
	if err != nil {
		t.Fatalf("url dependency: %v", err)
	}
	if urlDep.URL != "https://example.com/libfoo.tar.gz" {
		t.Fatalf("url dependency = %+v", urlDep)
	}

	// Unchanged content skips re-extraction on the next pass.
	c.now = func() time.Time { return t1.Add(time.Hour) }
	if err := c.HandleManifest(context.Background(), manifestPayload(t, repo)); err != nil {
		t.Fatalf("handle manifest again: %v", err)
	}
	m, err = db.GetManifest(repo.ID)
	if err != nil {
		t.Fatalf("get manifest again: %v", err)
	}
	if m.FetchedAt != t1.Unix() {
		t.Fatalf("fetched_at = %d, want untouched %d", m.FetchedAt, t1.Unix())
	}
}

func TestHandleManifestMalformedSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `.{ .name = `)
	}))
	defer srv.Close()

	c, db := newTestCrawler(t, "http://unused", srv.URL)
	repo := seedRepo(t, db, "alice/broken")

	if err := c.HandleManifest(context.Background(), manifestPayload(t, repo)); err != nil {
		t.Fatalf("handle manifest: %v", err)
	}

	counts, err := db.Counts()
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Manifests != 0 {
		t.Fatalf("manifests = %d, want 0", counts.Manifests)
	}
	if counts.ManifestsAbsent != 0 {
		t.Fatalf("absent = %d, want 0 (malformed is not absent)", counts.ManifestsAbsent)
	}
}

func TestEnqueueTopSweeps(t *testing.T) {
	c, db := newTestCrawler(t, "http://search.invalid", "http://raw.invalid")
	if err := c.EnqueueTopSweeps(); err != nil {
		t.Fatalf("enqueue top sweeps: %v", err)
	}
	item, err := db.NextItem(SearchQueue, time.Now().Unix())
	if err != nil || item == nil {
		t.Fatalf("next search item = %v, %v", item, err)
	}
	var job searchJob
	if err := json.Unmarshal([]byte(item.Payload), &job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.Platform != models.PlatformGitHub {
		t.Fatalf("platform = %q", job.Platform)
	}
}

func TestEnqueueNextWindowAdvances(t *testing.T) {
	c, db := newTestCrawler(t, "http://search.invalid", "http://raw.invalid")
	if err := c.EnqueueNextWindow(); err != nil {
		t.Fatalf("enqueue window: %v", err)
	}
	if err := c.EnqueueNextWindow(); err != nil {
		t.Fatalf("enqueue window: %v", err)
	}

	var urls []string
	for {
		item, err := db.NextItem(SearchQueue, time.Now().Unix())
		if err != nil {
			t.Fatalf("next item: %v", err)
		}
		if item == nil {
			break
		}
		var job searchJob
		if err := json.Unmarshal([]byte(item.Payload), &job); err != nil {
			t.Fatalf("decode: %v", err)
		}
		urls = append(urls, job.URL)
		if err := db.DeleteItem(item.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
	}
	if len(urls) != 2 || urls[0] == urls[1] {
		t.Fatalf("window sweeps = %v, want two distinct pages", urls)
	}
}
