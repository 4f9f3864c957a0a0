// Package crawler enumerates ecosystem repositories through the search
// API and keeps their manifests and dependency graphs fresh.
package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/checksum"
	"github.com/starford/raido/internal/manifest"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/queue"
	"github.com/starford/raido/internal/store"
)

// Queue names used by the crawler's two work streams.
const (
	SearchQueue   = "search"
	ManifestQueue = "manifests"
)

// PlatformSpec carries the per-platform endpoints and query.
type PlatformSpec struct {
	SearchBase string
	RawBase    string
	Query      string
}

// Config is the crawler's tunable policy.
type Config struct {
	Platforms         map[models.Platform]PlatformSpec
	NextPageDelay     time.Duration // short pause before following a next-page link
	RateLimitFallback time.Duration // backoff when a 403 carries no reset metadata
}

// Publisher receives crawl progress events. The SSE broker satisfies
// it; a nil publisher disables events.
type Publisher interface {
	PublishCrawlEvent(kind, subject string)
}

// searchJob is the payload of one search-queue item.
type searchJob struct {
	Platform models.Platform `json:"platform"`
	URL      string          `json:"url"`
}

// manifestJob is the payload of one manifest-queue item.
type manifestJob struct {
	RepoID   int64           `json:"repo_id"`
	Platform models.Platform `json:"platform"`
	FullName string          `json:"full_name"`
	Branch   string          `json:"branch"`
}

// Crawler orchestrates the fetch/normalize/upsert pipeline over the two
// durable queues. All persistence for one page or one manifest happens
// in a single store transaction.
type Crawler struct {
	st        store.Store
	search    *SearchClient
	content   *ContentFetcher
	searchQ   *queue.Queue
	manifestQ *queue.Queue
	events    Publisher
	logger    *slog.Logger
	cfg       Config
	windows   *Windows
	now       func() time.Time
}

// New wires a crawler. searchQ and manifestQ must be distinct queues.
func New(st store.Store, search *SearchClient, content *ContentFetcher,
	searchQ, manifestQ *queue.Queue, events Publisher, logger *slog.Logger, cfg Config) *Crawler {
	if cfg.NextPageDelay <= 0 {
		cfg.NextPageDelay = 2 * time.Second
	}
	if cfg.RateLimitFallback <= 0 {
		cfg.RateLimitFallback = time.Hour
	}
	c := &Crawler{
		st:        st,
		search:    search,
		content:   content,
		searchQ:   searchQ,
		manifestQ: manifestQ,
		events:    events,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
	c.windows = NewWindows(func() time.Time { return c.now() })
	return c
}

// EnqueueTopSweeps starts one bounded most-relevant-first crawl per
// configured platform.
func (c *Crawler) EnqueueTopSweeps() error {
	for p, spec := range c.cfg.Platforms {
		job := searchJob{Platform: p, URL: searchURL(p, spec, nil) + topQualifier(p)}
		if err := c.enqueueSearch(job, 0); err != nil {
			return err
		}
	}
	return nil
}

// EnqueueNextWindow advances the exhaustive historical sweep by one
// creation-date window. Only GitHub needs the partitioning; the other
// platforms' full result sets fit under the cap.
func (c *Crawler) EnqueueNextWindow() error {
	spec, ok := c.cfg.Platforms[models.PlatformGitHub]
	if !ok {
		return nil
	}
	win := c.windows.Next()
	job := searchJob{Platform: models.PlatformGitHub, URL: searchURL(models.PlatformGitHub, spec, &win)}
	return c.enqueueSearch(job, 0)
}

func topQualifier(p models.Platform) string {
	if p == models.PlatformGitHub {
		return "&sort=stars&order=desc"
	}
	return ""
}

func (c *Crawler) enqueueSearch(job searchJob, delay time.Duration) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("crawler: marshal search job: %w", err)
	}
	return c.searchQ.Enqueue(string(payload), delay)
}

func (c *Crawler) enqueueManifest(job manifestJob, delay time.Duration) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("crawler: marshal manifest job: %w", err)
	}
	return c.manifestQ.Enqueue(string(payload), delay)
}

// HandleSearch processes one search-queue item: fetch the page, upsert
// the normalized batch in one transaction, enqueue manifest fetches,
// and follow the pagination link. On a rate limit the same item is
// re-enqueued with a reset-derived delay.
func (c *Crawler) HandleSearch(ctx context.Context, payload string) error {
	var job searchJob
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return fmt.Errorf("crawler: decode search job: %w", err)
	}

	page, err := c.search.Fetch(ctx, job.Platform, job.URL)
	var rl *RateLimitError
	if errors.As(err, &rl) {
		delay := rl.Delay(c.now(), c.cfg.RateLimitFallback)
		c.logger.Info("crawler: rate limited, re-enqueueing page",
			slog.String("platform", string(job.Platform)),
			slog.Duration("delay", delay))
		return c.searchQ.Enqueue(payload, delay)
	}
	if err != nil {
		return fmt.Errorf("crawler: search page %s: %w", job.URL, err)
	}

	extract, err := extractorFor(job.Platform)
	if err != nil {
		return err
	}
	repos := make([]models.Repository, 0, len(page.Items))
	for _, raw := range page.Items {
		r, err := extract(raw)
		if err != nil {
			c.logger.Warn("crawler: skipping malformed search item",
				slog.String("platform", string(job.Platform)),
				slog.String("error", err.Error()))
			continue
		}
		repos = append(repos, r)
	}

	stored, err := c.st.UpsertRepos(repos)
	if err != nil {
		return err
	}
	c.publish("crawl.page", fmt.Sprintf("%s:%d", job.Platform, len(stored)))

	for _, r := range stored {
		c.publish("repo.upserted", string(r.Platform)+"/"+r.FullName)
		mj := manifestJob{RepoID: r.ID, Platform: r.Platform, FullName: r.FullName, Branch: r.DefaultBranch}
		if err := c.enqueueManifest(mj, 0); err != nil {
			return err
		}
	}

	// Strictly sequential pagination: page N+1 is enqueued only once
	// page N's response is in hand.
	if page.NextURL != "" {
		return c.enqueueSearch(searchJob{Platform: job.Platform, URL: page.NextURL}, c.cfg.NextPageDelay)
	}
	return nil
}

// HandleManifest processes one manifest-queue item: fetch the raw
// manifest, translate and extract it, and replace the repository's
// snapshot and edge set in one transaction. 404 records permanent
// absence; translate/parse failures are logged and skipped.
func (c *Crawler) HandleManifest(ctx context.Context, payload string) error {
	var job manifestJob
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return fmt.Errorf("crawler: decode manifest job: %w", err)
	}

	spec, ok := c.cfg.Platforms[job.Platform]
	if !ok {
		return fmt.Errorf("crawler: platform %q not configured", job.Platform)
	}

	text, err := c.content.Fetch(ctx, manifestURL(job.Platform, spec.RawBase, job.FullName, job.Branch))
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		if err := c.st.MarkManifestAbsent(job.RepoID); err != nil {
			return err
		}
		c.publish("manifest.absent", string(job.Platform)+"/"+job.FullName)
		return nil
	case errors.Is(err, apperr.ErrRateLimited):
		c.logger.Info("crawler: raw content rate limited, re-enqueueing",
			slog.String("repo", job.FullName),
			slog.Duration("delay", c.cfg.RateLimitFallback))
		return c.manifestQ.Enqueue(payload, c.cfg.RateLimitFallback)
	case err != nil:
		return fmt.Errorf("crawler: fetch manifest %s/%s: %w", job.Platform, job.FullName, err)
	}

	sum := checksum.Hex(text)
	if prev, err := c.st.ManifestChecksum(job.RepoID); err == nil && prev == sum {
		return nil // unchanged since last extraction
	}

	file, err := manifest.Decode(text)
	if err != nil {
		c.logger.Warn("crawler: manifest failed to translate, skipping",
			slog.String("platform", string(job.Platform)),
			slog.String("repo", job.FullName),
			slog.String("error", err.Error()))
		return nil
	}

	deps, urlDeps := manifest.Extract(job.RepoID, file)
	m := models.Manifest{
		RepoID:        job.RepoID,
		Name:          file.Name,
		Version:       file.Version,
		MinZigVersion: nilIfEmpty(file.MinZigVersion),
		Paths:         file.Paths,
		Checksum:      sum,
		FetchedAt:     c.now().Unix(),
	}
	if err := c.st.ReplaceManifest(m, deps, urlDeps); err != nil {
		return err
	}
	c.publish("manifest.indexed", string(job.Platform)+"/"+job.FullName)
	return nil
}

func (c *Crawler) publish(kind, subject string) {
	if c.events != nil {
		c.events.PublishCrawlEvent(kind, subject)
	}
}
