// Package models defines the domain types for Raido.
package models

// Platform identifies a code-hosting platform a package lives on.
type Platform string

// Supported platforms.
const (
	PlatformGitHub   Platform = "github"
	PlatformCodeberg Platform = "codeberg"
)

// Valid reports whether p is one of the supported platforms.
func (p Platform) Valid() bool {
	switch p {
	case PlatformGitHub, PlatformCodeberg:
		return true
	}
	return false
}

// Repository is a platform-qualified package source, unique per
// (Platform, FullName). Mutable fields converge to the last crawl's
// values; rows are never deleted by the crawler.
type Repository struct {
	ID            int64    `json:"id"`
	Platform      Platform `json:"platform"`
	FullName      string   `json:"full_name"`
	UpstreamID    int64    `json:"upstream_id"`
	Owner         string   `json:"owner"`
	DefaultBranch string   `json:"default_branch"`
	Description   *string  `json:"description,omitempty"`
	Homepage      *string  `json:"homepage,omitempty"`
	License       *string  `json:"license,omitempty"`
	Language      *string  `json:"language,omitempty"`
	Stars         int      `json:"stars"`
	Forks         int      `json:"forks"`
	CreatedAt     int64    `json:"created_at"`
	UpdatedAt     int64    `json:"updated_at"`
	PushedAt      int64    `json:"pushed_at"`
	Fork          bool     `json:"fork"`
	Archived      bool     `json:"archived"`
}

// Manifest is a repository's self-declared metadata at last successful
// fetch. At most one snapshot exists per repository; a re-fetch replaces
// the snapshot wholesale.
type Manifest struct {
	RepoID        int64    `json:"repo_id"`
	Name          string   `json:"name"`
	Version       string   `json:"version"`
	MinZigVersion *string  `json:"minimum_zig_version,omitempty"`
	Paths         []string `json:"paths"`
	Checksum      string   `json:"checksum"`
	FetchedAt     int64    `json:"fetched_at"`
}

// Variant discriminates the two dependency shapes.
type Variant string

// Dependency variants.
const (
	VariantPath Variant = "path"
	VariantURL  Variant = "url"
)

// Dependency is one declared dependency edge of one repository.
// Exactly one of Path (variant "path") or URLHash (variant "url") is set.
type Dependency struct {
	RepoID  int64   `json:"repo_id"`
	Name    string  `json:"name"`
	Variant Variant `json:"variant"`
	Path    *string `json:"path,omitempty"`
	URLHash *string `json:"url_hash,omitempty"`
}

// URLDependency is a content-addressed remote dependency target, keyed
// by its hash and shared across repositories. A recorded hash is
// immutable: re-insertion is a no-op, never an update.
type URLDependency struct {
	Hash string `json:"hash"`
	Name string `json:"name"`
	URL  string `json:"url"`
}
