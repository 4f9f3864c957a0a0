package crawler

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/starford/raido/internal/manifest"
	"github.com/starford/raido/internal/models"
)

// repoExtractor normalizes one raw search item into a Repository. Every
// platform extractor honors the same contract: unix-second timestamps,
// nil for absent optional fields, and a non-empty owner/full name.
type repoExtractor func(raw json.RawMessage) (models.Repository, error)

func extractorFor(p models.Platform) (repoExtractor, error) {
	switch p {
	case models.PlatformGitHub:
		return extractGitHub, nil
	case models.PlatformCodeberg:
		return extractCodeberg, nil
	}
	return nil, fmt.Errorf("crawler: no extractor for platform %q", p)
}

func extractGitHub(raw json.RawMessage) (models.Repository, error) {
	var item struct {
		ID            int64  `json:"id"`
		FullName      string `json:"full_name"`
		DefaultBranch string `json:"default_branch"`
		Owner         struct {
			Login string `json:"login"`
		} `json:"owner"`
		Description *string `json:"description"`
		Homepage    *string `json:"homepage"`
		License     *struct {
			SPDXID string `json:"spdx_id"`
		} `json:"license"`
		Language  *string   `json:"language"`
		Stars     int       `json:"stargazers_count"`
		Forks     int       `json:"forks_count"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
		PushedAt  time.Time `json:"pushed_at"`
		Fork      bool      `json:"fork"`
		Archived  bool      `json:"archived"`
	}
	if err := json.Unmarshal(raw, &item); err != nil {
		return models.Repository{}, fmt.Errorf("crawler: decode github item: %w", err)
	}
	if item.FullName == "" {
		return models.Repository{}, fmt.Errorf("crawler: github item without full_name")
	}

	var license *string
	if item.License != nil && item.License.SPDXID != "" && item.License.SPDXID != "NOASSERTION" {
		license = &item.License.SPDXID
	}

	return models.Repository{
		Platform:      models.PlatformGitHub,
		FullName:      item.FullName,
		UpstreamID:    item.ID,
		Owner:         item.Owner.Login,
		DefaultBranch: orDefault(item.DefaultBranch, "master"),
		Description:   normalizeOptional(item.Description),
		Homepage:      normalizeOptional(item.Homepage),
		License:       license,
		Language:      normalizeOptional(item.Language),
		Stars:         item.Stars,
		Forks:         item.Forks,
		CreatedAt:     item.CreatedAt.Unix(),
		UpdatedAt:     item.UpdatedAt.Unix(),
		PushedAt:      item.PushedAt.Unix(),
		Fork:          item.Fork,
		Archived:      item.Archived,
	}, nil
}

func extractCodeberg(raw json.RawMessage) (models.Repository, error) {
	var item struct {
		ID            int64  `json:"id"`
		FullName      string `json:"full_name"`
		DefaultBranch string `json:"default_branch"`
		Owner         struct {
			Login string `json:"login"`
		} `json:"owner"`
		Description string    `json:"description"`
		Website     string    `json:"website"`
		Language    string    `json:"language"`
		Stars       int       `json:"stars_count"`
		Forks       int       `json:"forks_count"`
		CreatedAt   time.Time `json:"created_at"`
		UpdatedAt   time.Time `json:"updated_at"`
		Fork        bool      `json:"fork"`
		Archived    bool      `json:"archived"`
	}
	if err := json.Unmarshal(raw, &item); err != nil {
		return models.Repository{}, fmt.Errorf("crawler: decode codeberg item: %w", err)
	}
	if item.FullName == "" {
		return models.Repository{}, fmt.Errorf("crawler: codeberg item without full_name")
	}

	return models.Repository{
		Platform:      models.PlatformCodeberg,
		FullName:      item.FullName,
		UpstreamID:    item.ID,
		Owner:         item.Owner.Login,
		DefaultBranch: orDefault(item.DefaultBranch, "main"),
		Description:   nilIfEmpty(item.Description),
		Homepage:      nilIfEmpty(item.Website),
		Language:      nilIfEmpty(item.Language),
		Stars:         item.Stars,
		Forks:         item.Forks,
		CreatedAt:     item.CreatedAt.Unix(),
		UpdatedAt:     item.UpdatedAt.Unix(),
		// The Gitea API exposes no push timestamp; updated_at is the
		// closest activity signal.
		PushedAt: item.UpdatedAt.Unix(),
		Fork:     item.Fork,
		Archived: item.Archived,
	}, nil
}

// searchURL builds the first-page search query for a platform,
// optionally scoped to a creation-date window.
func searchURL(p models.Platform, spec PlatformSpec, win *Window) string {
	q := spec.Query
	switch p {
	case models.PlatformGitHub:
		if win != nil {
			q += " " + win.Qualifier()
		}
		return spec.SearchBase + "?q=" + url.QueryEscape(q) + "&per_page=100"
	case models.PlatformCodeberg:
		return spec.SearchBase + "?q=" + url.QueryEscape(q) + "&topic=true&limit=50"
	}
	return ""
}

// ProbeURL builds a minimal one-result search request used as the
// startup liveness probe.
func ProbeURL(p models.Platform, spec PlatformSpec) string {
	switch p {
	case models.PlatformGitHub:
		return spec.SearchBase + "?q=" + url.QueryEscape(spec.Query) + "&per_page=1"
	case models.PlatformCodeberg:
		return spec.SearchBase + "?q=" + url.QueryEscape(spec.Query) + "&limit=1"
	}
	return spec.SearchBase
}

// manifestURL builds the raw-content address of a repository's manifest
// on its default branch.
func manifestURL(p models.Platform, rawBase, fullName, branch string) string {
	base := strings.TrimSuffix(rawBase, "/")
	switch p {
	case models.PlatformCodeberg:
		return base + "/" + fullName + "/raw/branch/" + branch + "/" + manifest.Filename
	default:
		return base + "/" + fullName + "/" + branch + "/" + manifest.Filename
	}
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func normalizeOptional(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
