// Package store provides the SQLite persistence layer: repositories,
// manifest snapshots, dependency edges, content-addressed url
// dependencies, and the durable work queue.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/raido/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS repos (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	platform        TEXT NOT NULL,
	full_name       TEXT NOT NULL,
	upstream_id     INTEGER NOT NULL DEFAULT 0,
	owner           TEXT NOT NULL DEFAULT '',
	default_branch  TEXT NOT NULL DEFAULT 'main',
	description     TEXT,
	homepage        TEXT,
	license         TEXT,
	language        TEXT,
	stars           INTEGER NOT NULL DEFAULT 0,
	forks           INTEGER NOT NULL DEFAULT 0,
	created_at      INTEGER NOT NULL DEFAULT 0,
	updated_at      INTEGER NOT NULL DEFAULT 0,
	pushed_at       INTEGER NOT NULL DEFAULT 0,
	fork            INTEGER NOT NULL DEFAULT 0,
	archived        INTEGER NOT NULL DEFAULT 0,
	manifest_absent INTEGER NOT NULL DEFAULT 0,
	UNIQUE(platform, full_name)
);

CREATE TABLE IF NOT EXISTS manifests (
	repo_id         INTEGER PRIMARY KEY REFERENCES repos(id) ON DELETE CASCADE,
	name            TEXT NOT NULL DEFAULT '',
	version         TEXT NOT NULL DEFAULT '',
	min_zig_version TEXT,
	paths           TEXT NOT NULL DEFAULT '[]',
	checksum        TEXT NOT NULL DEFAULT '',
	fetched_at      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS url_dependencies (
	hash TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	url  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS dependencies (
	repo_id  INTEGER NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
	name     TEXT NOT NULL,
	variant  TEXT NOT NULL CHECK (variant IN ('path', 'url')),
	path     TEXT,
	url_hash TEXT REFERENCES url_dependencies(hash),
	UNIQUE(repo_id, name, variant, path),
	UNIQUE(repo_id, name, variant, url_hash)
);

CREATE INDEX IF NOT EXISTS idx_dependencies_repo ON dependencies(repo_id);
CREATE INDEX IF NOT EXISTS idx_dependencies_hash ON dependencies(url_hash);

CREATE TABLE IF NOT EXISTS queue_items (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	queue        TEXT NOT NULL,
	payload      TEXT NOT NULL,
	available_at INTEGER NOT NULL,
	enqueued_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_queue_eligible ON queue_items(queue, available_at, id);
`

// Store defines the persistence operations the crawler and the status
// surface depend on. Consumers should depend on this interface rather
// than the concrete *DB type to facilitate testing with mocks.
type Store interface {
	UpsertRepos(repos []models.Repository) ([]models.Repository, error)
	GetRepo(platform models.Platform, fullName string) (*models.Repository, error)
	MarkManifestAbsent(repoID int64) error
	ManifestChecksum(repoID int64) (string, error)
	ReplaceManifest(m models.Manifest, deps []models.Dependency, urlDeps []models.URLDependency) error
	GetManifest(repoID int64) (*models.Manifest, error)
	RepoDependencies(repoID int64) ([]models.Dependency, error)
	GetURLDependency(hash string) (*models.URLDependency, error)

	EnqueueItem(queue, payload string, availableAt, enqueuedAt int64) (int64, error)
	NextItem(queue string, now int64) (*QueueItem, error)
	NextAvailableAt(queue string) (int64, bool, error)
	DeleteItem(id int64) error
	CountItems(queue string) (int, error)

	Counts() (Counts, error)
	Ping() error
	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)

// DB wraps a sql.DB with store-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Ping verifies the underlying connection is alive.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Counts summarizes stored row counts for the status surface.
type Counts struct {
	Repos           int `json:"repos"`
	Manifests       int `json:"manifests"`
	ManifestsAbsent int `json:"manifests_absent"`
	Dependencies    int `json:"dependencies"`
	URLDependencies int `json:"url_dependencies"`
}

// Counts returns row counts across the core tables.
func (db *DB) Counts() (Counts, error) {
	var c Counts
	rows := []struct {
		query string
		dst   *int
	}{
		{`SELECT count(*) FROM repos`, &c.Repos},
		{`SELECT count(*) FROM manifests`, &c.Manifests},
		{`SELECT count(*) FROM repos WHERE manifest_absent = 1`, &c.ManifestsAbsent},
		{`SELECT count(*) FROM dependencies`, &c.Dependencies},
		{`SELECT count(*) FROM url_dependencies`, &c.URLDependencies},
	}
	for _, r := range rows {
		if err := db.conn.QueryRow(r.query).Scan(r.dst); err != nil {
			return Counts{}, fmt.Errorf("store: counts: %w", err)
		}
	}
	return c, nil
}
