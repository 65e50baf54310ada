// Package catalog lists package versions and files in a project.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/git-pkgs/genpkg/client"
	"github.com/git-pkgs/genpkg/internal/core"
	"github.com/git-pkgs/genpkg/internal/pager"
)

const (
	// NamesMaxPages bounds the walk used to enumerate package names.
	// Names are not listable on their own, so ListNames over-fetches.
	NamesMaxPages = 200

	// LatestVersion is the version argument that selects the newest version.
	LatestVersion = "latest"
)

// API is the subset of the HTTP gateway the catalog uses. A
// *client.CircuitBreakerClient satisfies it with a guarded Delete.
type API interface {
	pager.Getter
	Delete(ctx context.Context, url string) error
}

// Resolver maps project references to ids.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (int64, error)
}

// Filter narrows a version listing. The registry treats both fields as
// substring filters.
type Filter struct {
	Name    string
	Version string
}

// Catalog reads package metadata for projects resolved through a Resolver.
type Catalog struct {
	api      API
	urls     *client.URLs
	resolver Resolver
	logger   zerolog.Logger
}

// New creates a Catalog.
func New(api API, urls *client.URLs, resolver Resolver, logger zerolog.Logger) *Catalog {
	return &Catalog{api: api, urls: urls, resolver: resolver, logger: logger}
}

// ListVersions returns the project's packages matching f, newest version
// first as ordered by the registry. maxPages of 0 walks every page.
func (c *Catalog) ListVersions(ctx context.Context, ref string, f Filter, maxPages int) ([]core.Package, error) {
	id, err := c.resolver.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	return c.listVersions(ctx, id, f, maxPages)
}

func (c *Catalog) listVersions(ctx context.Context, projectID int64, f Filter, maxPages int) ([]core.Package, error) {
	endpoint := c.urls.Packages(projectID, f.Name, f.Version)
	pkgs, err := pager.Collect[core.Package](pager.Walk(ctx, c.api, endpoint, pager.Options{MaxPages: maxPages}))
	if err != nil {
		return nil, fmt.Errorf("listing packages of project %d: %w", projectID, err)
	}
	return pkgs, nil
}

// Latest returns the newest version of the package named exactly name, or
// nil when the first page holds none.
func (c *Catalog) Latest(ctx context.Context, ref, name string) (*core.Package, error) {
	pkgs, err := c.ListVersions(ctx, ref, Filter{Name: name}, 1)
	if err != nil {
		return nil, err
	}
	for i := range pkgs {
		if pkgs[i].Name == name {
			return &pkgs[i], nil
		}
	}
	return nil, nil
}

// ListNames returns the distinct package names of a project, sorted.
func (c *Catalog) ListNames(ctx context.Context, ref string) ([]string, error) {
	pkgs, err := c.ListVersions(ctx, ref, Filter{}, NamesMaxPages)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var names []string
	for _, p := range pkgs {
		if !seen[p.Name] {
			seen[p.Name] = true
			names = append(names, p.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Find returns the package with exactly name and version. The version
// "latest" selects the newest version.
func (c *Catalog) Find(ctx context.Context, ref, name, version string) (*core.Package, error) {
	if name == "" {
		return nil, &core.ArgumentError{Msg: "package name is required"}
	}
	if version == "" {
		return nil, &core.ArgumentError{Msg: "package version is required"}
	}
	if version == LatestVersion {
		pkg, err := c.Latest(ctx, ref, name)
		if err != nil {
			return nil, err
		}
		if pkg == nil {
			return nil, &core.NotFoundError{Name: name}
		}
		return pkg, nil
	}

	pkgs, err := c.ListVersions(ctx, ref, Filter{Name: name, Version: version}, 0)
	if err != nil {
		return nil, err
	}
	for i := range pkgs {
		if pkgs[i].Name == name && pkgs[i].Version == version {
			return &pkgs[i], nil
		}
	}
	return nil, &core.NotFoundError{Name: name, Version: version}
}

// Files returns the package version and its files. When several files
// share a name only the most recent upload, the one with the highest id,
// is kept. Files are ordered by name.
func (c *Catalog) Files(ctx context.Context, ref, name, version string) (*core.Package, []core.PackageFile, error) {
	pkg, err := c.Find(ctx, ref, name, version)
	if err != nil {
		return nil, nil, err
	}
	id, err := c.resolver.Resolve(ctx, ref)
	if err != nil {
		return nil, nil, err
	}

	endpoint := c.urls.PackageFiles(id, pkg.ID)
	files, err := pager.Collect[core.PackageFile](pager.Walk(ctx, c.api, endpoint, pager.Options{}))
	if err != nil {
		return nil, nil, fmt.Errorf("listing files of %s: %w", pkg, err)
	}
	return pkg, latestFiles(files), nil
}

// latestFiles keeps the highest-id file per file name.
func latestFiles(files []core.PackageFile) []core.PackageFile {
	byName := make(map[string]core.PackageFile, len(files))
	for _, f := range files {
		if cur, ok := byName[f.FileName]; !ok || f.ID > cur.ID {
			byName[f.FileName] = f
		}
	}
	out := make([]core.PackageFile, 0, len(byName))
	for _, f := range byName {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileName < out[j].FileName })
	return out
}

// Delete removes a package version.
func (c *Catalog) Delete(ctx context.Context, ref string, pkg core.Package) error {
	id, err := c.resolver.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	if err := c.api.Delete(ctx, c.urls.Package(id, pkg.ID)); err != nil {
		return fmt.Errorf("deleting %s: %w", pkg, err)
	}
	c.logger.Info().Str("package", pkg.Name).Str("version", pkg.Version).Msg("deleted")
	return nil
}

// IsNotFound reports whether err means a package, version or file is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, core.ErrNotFound) || client.IsNotFound(err)
}
