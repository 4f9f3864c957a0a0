package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
)

// UpsertRepos inserts or refreshes a batch of repositories in one
// transaction, keyed on (platform, full_name). Mutable fields follow
// last-write-wins; the manifest_absent flag is left untouched so a
// refresh never forgets a recorded absence. The returned slice carries
// the store-assigned IDs.
func (db *DB) UpsertRepos(repos []models.Repository) ([]models.Repository, error) {
	if len(repos) == 0 {
		return nil, nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	stmt, err := tx.Prepare(`
		INSERT INTO repos (
			platform, full_name, upstream_id, owner, default_branch,
			description, homepage, license, language,
			stars, forks, created_at, updated_at, pushed_at, fork, archived
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(platform, full_name) DO UPDATE SET
			upstream_id    = excluded.upstream_id,
			owner          = excluded.owner,
			default_branch = excluded.default_branch,
			description    = excluded.description,
			homepage       = excluded.homepage,
			license        = excluded.license,
			language       = excluded.language,
			stars          = excluded.stars,
			forks          = excluded.forks,
			created_at     = excluded.created_at,
			updated_at     = excluded.updated_at,
			pushed_at      = excluded.pushed_at,
			fork           = excluded.fork,
			archived       = excluded.archived
	`)
	if err != nil {
		return nil, fmt.Errorf("store: prepare repo upsert: %w", err)
	}
	defer stmt.Close()

	out := make([]models.Repository, 0, len(repos))
	for _, r := range repos {
		if !r.Platform.Valid() {
			return nil, fmt.Errorf("store: invalid platform %q for %s", r.Platform, r.FullName)
		}
		if _, err := stmt.Exec(
			r.Platform, r.FullName, r.UpstreamID, r.Owner, r.DefaultBranch,
			r.Description, r.Homepage, r.License, r.Language,
			r.Stars, r.Forks, r.CreatedAt, r.UpdatedAt, r.PushedAt, r.Fork, r.Archived,
		); err != nil {
			return nil, fmt.Errorf("store: upsert repo %s/%s: %w", r.Platform, r.FullName, err)
		}
		if err := tx.QueryRow(
			`SELECT id FROM repos WHERE platform = ? AND full_name = ?`,
			r.Platform, r.FullName,
		).Scan(&r.ID); err != nil {
			return nil, fmt.Errorf("store: resolve repo id: %w", err)
		}
		out = append(out, r)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit repo batch: %w", err)
	}
	return out, nil
}

const repoColumns = `id, platform, full_name, upstream_id, owner, default_branch,
	description, homepage, license, language,
	stars, forks, created_at, updated_at, pushed_at, fork, archived`

// GetRepo returns one repository or apperr.ErrNotFound.
func (db *DB) GetRepo(platform models.Platform, fullName string) (*models.Repository, error) {
	row := db.conn.QueryRow(
		`SELECT `+repoColumns+` FROM repos WHERE platform = ? AND full_name = ?`,
		platform, fullName,
	)
	r, err := scanRepo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get repo: %w", err)
	}
	return r, nil
}

func scanRepo(row *sql.Row) (*models.Repository, error) {
	var r models.Repository
	if err := row.Scan(
		&r.ID, &r.Platform, &r.FullName, &r.UpstreamID, &r.Owner, &r.DefaultBranch,
		&r.Description, &r.Homepage, &r.License, &r.Language,
		&r.Stars, &r.Forks, &r.CreatedAt, &r.UpdatedAt, &r.PushedAt, &r.Fork, &r.Archived,
	); err != nil {
		return nil, err
	}
	return &r, nil
}

// MarkManifestAbsent permanently records that a repository has no
// manifest file. Absence is not an error and is never retried.
func (db *DB) MarkManifestAbsent(repoID int64) error {
	if _, err := db.conn.Exec(`UPDATE repos SET manifest_absent = 1 WHERE id = ?`, repoID); err != nil {
		return fmt.Errorf("store: mark manifest absent: %w", err)
	}
	return nil
}
