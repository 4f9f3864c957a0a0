package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
)

// ReplaceManifest stores a repository's manifest snapshot together with
// its extracted dependency graph in one transaction:
//
//   - the snapshot replaces any prior one wholesale (never merged),
//   - url dependency targets are first-writer-wins on their hash,
//   - the repository's edge set is replaced so re-extraction after a
//     manifest edit converges without leaving stale edges behind.
//
// A successful fetch also clears a previously recorded absence.
func (db *DB) ReplaceManifest(m models.Manifest, deps []models.Dependency, urlDeps []models.URLDependency) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	pathsJSON, _ := json.Marshal(m.Paths)

	if _, err := tx.Exec(`
		INSERT INTO manifests (repo_id, name, version, min_zig_version, paths, checksum, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_id) DO UPDATE SET
			name            = excluded.name,
			version         = excluded.version,
			min_zig_version = excluded.min_zig_version,
			paths           = excluded.paths,
			checksum        = excluded.checksum,
			fetched_at      = excluded.fetched_at
	`, m.RepoID, m.Name, m.Version, m.MinZigVersion, string(pathsJSON), m.Checksum, m.FetchedAt); err != nil {
		return fmt.Errorf("store: upsert manifest: %w", err)
	}

	if _, err := tx.Exec(`UPDATE repos SET manifest_absent = 0 WHERE id = ?`, m.RepoID); err != nil {
		return fmt.Errorf("store: clear manifest absence: %w", err)
	}

	// Url dependency targets are immutable once recorded.
	if len(urlDeps) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO url_dependencies (hash, name, url) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("store: prepare url dep insert: %w", err)
		}
		defer stmt.Close()
		for _, u := range urlDeps {
			if _, err := stmt.Exec(u.Hash, u.Name, u.URL); err != nil {
				return fmt.Errorf("store: insert url dep %s: %w", u.Name, err)
			}
		}
	}

	// Replace edges: delete old then bulk insert under the composite
	// unique constraints.
	if _, err := tx.Exec(`DELETE FROM dependencies WHERE repo_id = ?`, m.RepoID); err != nil {
		return fmt.Errorf("store: clear dependencies: %w", err)
	}
	if len(deps) > 0 {
		stmt, err := tx.Prepare(`
			INSERT OR IGNORE INTO dependencies (repo_id, name, variant, path, url_hash)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("store: prepare dep insert: %w", err)
		}
		defer stmt.Close()
		for _, d := range deps {
			if _, err := stmt.Exec(d.RepoID, d.Name, d.Variant, d.Path, d.URLHash); err != nil {
				return fmt.Errorf("store: insert dependency %s: %w", d.Name, err)
			}
		}
	}

	return tx.Commit()
}

// ManifestChecksum returns the stored manifest checksum for a
// repository, or empty string when no snapshot exists.
func (db *DB) ManifestChecksum(repoID int64) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM manifests WHERE repo_id = ?`, repoID).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: manifest checksum: %w", err)
	}
	return cs, nil
}

// GetManifest returns a repository's manifest snapshot or
// apperr.ErrNotFound.
func (db *DB) GetManifest(repoID int64) (*models.Manifest, error) {
	var m models.Manifest
	var pathsJSON string
	err := db.conn.QueryRow(`
		SELECT repo_id, name, version, min_zig_version, paths, checksum, fetched_at
		FROM manifests WHERE repo_id = ?
	`, repoID).Scan(&m.RepoID, &m.Name, &m.Version, &m.MinZigVersion, &pathsJSON, &m.Checksum, &m.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get manifest: %w", err)
	}
	if err := json.Unmarshal([]byte(pathsJSON), &m.Paths); err != nil {
		return nil, fmt.Errorf("store: decode manifest paths: %w", err)
	}
	return &m, nil
}

// RepoDependencies returns all dependency edges of a repository.
func (db *DB) RepoDependencies(repoID int64) ([]models.Dependency, error) {
	rows, err := db.conn.Query(`
		SELECT repo_id, name, variant, path, url_hash
		FROM dependencies WHERE repo_id = ? ORDER BY name, variant
	`, repoID)
	if err != nil {
		return nil, fmt.Errorf("store: repo dependencies: %w", err)
	}
	defer rows.Close()

	var out []models.Dependency
	for rows.Next() {
		var d models.Dependency
		if err := rows.Scan(&d.RepoID, &d.Name, &d.Variant, &d.Path, &d.URLHash); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetURLDependency returns one content-addressed target or
// apperr.ErrNotFound.
func (db *DB) GetURLDependency(hash string) (*models.URLDependency, error) {
	var u models.URLDependency
	err := db.conn.QueryRow(`SELECT hash, name, url FROM url_dependencies WHERE hash = ?`, hash).
		Scan(&u.Hash, &u.Name, &u.URL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get url dependency: %w", err)
	}
	return &u, nil
}
