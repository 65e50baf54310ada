package client

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/git-pkgs/genpkg/internal/core"
)

// apiSuffix is stripped from the base URL to find the web root used in
// package URLs.
const apiSuffix = "/api/v4"

// URLs constructs the registry endpoints used by this client.
type URLs struct {
	base string
}

// NewURLs returns a builder rooted at base, e.g. https://gitlab.example.com/api/v4.
func NewURLs(base string) *URLs {
	return &URLs{base: strings.TrimSuffix(base, "/")}
}

// Projects lists the projects the caller is a member of, name ordered.
// Only the first page of 100 is requested, so a caller in more projects
// cannot resolve those past it by path; pass the numeric id instead.
func (u *URLs) Projects() string {
	return u.base + "/projects?membership=true&simple=true&order_by=name&per_page=100"
}

// Packages lists a project's packages newest version first. Empty filters
// are omitted. Paging parameters are added by the walker.
func (u *URLs) Packages(projectID int64, name, version string) string {
	q := url.Values{}
	if name != "" {
		q.Set("package_name", name)
	}
	if version != "" {
		q.Set("package_version", version)
	}
	q.Set("order_by", "version")
	q.Set("sort", "desc")
	return fmt.Sprintf("%s/projects/%d/packages?%s", u.base, projectID, q.Encode())
}

// Package addresses a single package version, used for deletion.
func (u *URLs) Package(projectID, packageID int64) string {
	return fmt.Sprintf("%s/projects/%d/packages/%d", u.base, projectID, packageID)
}

// PackageFiles lists the files of a package version.
func (u *URLs) PackageFiles(projectID, packageID int64) string {
	return fmt.Sprintf("%s/projects/%d/packages/%d/package_files", u.base, projectID, packageID)
}

// GenericFile addresses a file of a generic package for download or upload.
func (u *URLs) GenericFile(projectID int64, name, version, file string) string {
	return fmt.Sprintf("%s/projects/%d/packages/generic/%s/%s/%s",
		u.base, projectID, url.PathEscape(name), url.PathEscape(version), url.PathEscape(file))
}

// WebRoot returns the instance root without the API suffix.
func (u *URLs) WebRoot() string {
	return strings.TrimSuffix(u.base, apiSuffix)
}

// PURL returns the package URL of a package version in this registry.
func (u *URLs) PURL(name, version string) string {
	return core.PackageURL(name, version, u.WebRoot())
}
