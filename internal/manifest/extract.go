package manifest

import "github.com/starford/raido/internal/models"

// Extract classifies every dependency entry of f into exactly one
// variant and returns the edge set plus the content-addressed targets.
//
// An entry with both url and hash is a url dependency; an entry with
// only a path is a path dependency; anything else is skipped so that
// manifest fields this subset does not understand never fail a batch.
func Extract(repoID int64, f *File) ([]models.Dependency, []models.URLDependency) {
	var deps []models.Dependency
	var urlDeps []models.URLDependency

	for name, entry := range f.Dependencies {
		switch {
		case entry.URL != "" && entry.Hash != "":
			hash := entry.Hash
			deps = append(deps, models.Dependency{
				RepoID:  repoID,
				Name:    name,
				Variant: models.VariantURL,
				URLHash: &hash,
			})
			urlDeps = append(urlDeps, models.URLDependency{
				Hash: entry.Hash,
				Name: name,
				URL:  entry.URL,
			})
		case entry.Path != "" && entry.URL == "" && entry.Hash == "":
			path := entry.Path
			deps = append(deps, models.Dependency{
				RepoID:  repoID,
				Name:    name,
				Variant: models.VariantPath,
				Path:    &path,
			})
		}
	}
	return deps, urlDeps
}
