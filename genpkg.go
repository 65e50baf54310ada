// Package genpkg is a client for generic package registries.
//
// It resolves project references to ids, lists package versions, fetches
// package files with checksum verification, uploads files, installs
// packages and applies retention policies that delete old versions.
//
// Basic usage:
//
//	c := genpkg.NewClient(
//		genpkg.WithBaseURL("https://gitlab.example.com/api/v4"),
//		genpkg.WithJobToken(os.Getenv("CI_JOB_TOKEN")),
//	)
//	reg := genpkg.New(c)
//
//	latest, err := reg.Latest(ctx, "group/repo", "tool")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(latest.Version)
//
// Writes are dry runs unless WithConfirm(true) is given.
package genpkg

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	_ "github.com/git-pkgs/genpkg/all"
	"github.com/git-pkgs/genpkg/client"
	"github.com/git-pkgs/genpkg/fetch"
	"github.com/git-pkgs/genpkg/internal/archive"
	"github.com/git-pkgs/genpkg/internal/catalog"
	"github.com/git-pkgs/genpkg/internal/core"
	"github.com/git-pkgs/genpkg/internal/install"
	"github.com/git-pkgs/genpkg/internal/project"
	"github.com/git-pkgs/genpkg/internal/retention"
	"github.com/git-pkgs/genpkg/internal/tempfs"
)

// Re-export types for convenience
type (
	Client      = client.Client
	Option      = client.Option
	URLs        = client.URLs
	Project     = core.Project
	Package     = core.Package
	PackageFile = core.PackageFile
	Filter      = catalog.Filter
	Fetched     = fetch.Fetched
	Uploaded    = fetch.Uploaded
	Policy      = retention.Policy
	Decision    = retention.Decision
	Summary     = retention.Summary
)

// Retention actions and reasons.
const (
	Retain = retention.Retain
	Delete = retention.Delete

	ReasonMalformed = retention.ReasonMalformed
	ReasonTooYoung  = retention.ReasonTooYoung
	ReasonProtected = retention.ReasonProtected
	ReasonLatest    = retention.ReasonLatest

	// LatestVersion selects the newest version wherever a version is expected.
	LatestVersion = catalog.LatestVersion
)

// Re-export errors
var (
	ErrNotFound            = core.ErrNotFound
	ErrRegistryUnavailable = client.ErrRegistryUnavailable
)

// Error types
type (
	HTTPError              = client.HTTPError
	ResolutionError        = core.ResolutionError
	IntegrityError         = core.IntegrityError
	PolicyError            = core.PolicyError
	ArgumentError          = core.ArgumentError
	UnsupportedFormatError = core.UnsupportedFormatError
	NotFoundError          = core.NotFoundError
)

// NewClient creates a new client with the given options.
func NewClient(opts ...Option) *Client {
	return client.NewClient(opts...)
}

// WithBaseURL sets the API root, e.g. https://gitlab.example.com/api/v4.
var WithBaseURL = client.WithBaseURL

// WithJobToken authenticates with a CI job token.
var WithJobToken = client.WithJobToken

// WithPrivateToken authenticates with a personal access token.
var WithPrivateToken = client.WithPrivateToken

// WithTimeout sets the timeout of API calls.
var WithTimeout = client.WithTimeout

// WithTransferTimeout sets the timeout of uploads and downloads.
var WithTransferTimeout = client.WithTransferTimeout

// Registry is a package registry reached through one client. Project ids
// are cached for the lifetime of the Registry.
type Registry struct {
	client    *client.Client
	guarded   *client.CircuitBreakerClient
	projects  *project.Resolver
	catalog   *catalog.Catalog
	logger    zerolog.Logger
	confirm   bool
	keepTemp  bool
	threshold int64
}

// Setting configures a Registry.
type Setting func(*Registry)

// WithLogger sets the logger of every component.
func WithLogger(l zerolog.Logger) Setting {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithConfirm enables uploads and deletions. Without it they are reported
// but not performed.
func WithConfirm(confirm bool) Setting {
	return func(r *Registry) {
		r.confirm = confirm
	}
}

// WithKeepTemp keeps the temporary directories of Install.
func WithKeepTemp(keep bool) Setting {
	return func(r *Registry) {
		r.keepTemp = keep
	}
}

// WithBreakerThreshold stops uploads and deletions against a host after n
// consecutive failures. 0 disables the breaker.
func WithBreakerThreshold(n int64) Setting {
	return func(r *Registry) {
		r.threshold = n
	}
}

// DefaultBreakerThreshold is the breaker threshold of New.
const DefaultBreakerThreshold = 5

// New creates a Registry over c.
func New(c *Client, settings ...Setting) *Registry {
	r := &Registry{
		client:    c,
		logger:    zerolog.Nop(),
		threshold: DefaultBreakerThreshold,
	}
	for _, s := range settings {
		s(r)
	}
	urls := c.URLs()
	r.guarded = client.NewCircuitBreakerClient(c, r.threshold)
	r.projects = project.NewResolver(c, urls, project.NewCache(), r.logger)
	r.catalog = catalog.New(r.guarded, urls, r.projects, r.logger)
	return r
}

// Client returns the underlying client.
func (r *Registry) Client() *Client {
	return r.client
}

// URLs returns the endpoint builder of the registry.
func (r *Registry) URLs() *URLs {
	return r.client.URLs()
}

// ProjectID resolves a group/repo reference to the project id.
func (r *Registry) ProjectID(ctx context.Context, ref string) (int64, error) {
	return r.projects.Resolve(ctx, ref)
}

// Names returns the distinct package names of a project, sorted.
func (r *Registry) Names(ctx context.Context, ref string) ([]string, error) {
	return r.catalog.ListNames(ctx, ref)
}

// Versions lists package versions newest first. maxPages of 0 reads every page.
func (r *Registry) Versions(ctx context.Context, ref string, f Filter, maxPages int) ([]Package, error) {
	return r.catalog.ListVersions(ctx, ref, f, maxPages)
}

// Latest returns the newest version of name, or nil when there is none.
func (r *Registry) Latest(ctx context.Context, ref, name string) (*Package, error) {
	return r.catalog.Latest(ctx, ref, name)
}

// Files returns a package version and its files.
func (r *Registry) Files(ctx context.Context, ref, name, version string) (*Package, []PackageFile, error) {
	return r.catalog.Files(ctx, ref, name, version)
}

// PURL returns the package URL of a package version.
func (r *Registry) PURL(name, version string) string {
	return r.client.URLs().PURL(name, version)
}

func (r *Registry) fetcher() *fetch.Fetcher {
	return fetch.NewFetcher(r.client, r.catalog, r.projects, r.client.URLs(), fetch.WithLogger(r.logger))
}

// Fetch downloads the files of a package version into dest and verifies
// each against its recorded checksum.
func (r *Registry) Fetch(ctx context.Context, ref, name, version, dest string, only ...string) ([]Fetched, error) {
	return r.fetcher().Fetch(ctx, ref, name, version, dest, only...)
}

// Upload sends files to a package version, stopping at the first failure.
func (r *Registry) Upload(ctx context.Context, ref, name, version string, files []string) ([]Uploaded, error) {
	u := fetch.NewUploader(r.guarded, r.projects, r.client.URLs(),
		fetch.WithLogger(r.logger), fetch.WithConfirm(r.confirm))
	return u.Upload(ctx, ref, name, version, files)
}

// Install fetches a package version and unpacks it into dest. Temporary
// directories are removed before Install returns unless WithKeepTemp is set.
func (r *Registry) Install(ctx context.Context, ref, name, version, dest string) (installed []string, err error) {
	temp := tempfs.New(r.keepTemp, r.logger)
	defer func() {
		err = errors.Join(err, temp.Cleanup())
	}()
	return install.New(r.fetcher(), temp, r.logger).Install(ctx, ref, name, version, dest)
}

// Prune applies policy to the named packages, or to every package of the
// project when names is empty.
func (r *Registry) Prune(ctx context.Context, ref string, policy *Policy, names ...string) ([]Summary, error) {
	p := retention.NewPruner(r.catalog, policy,
		retention.WithConfirm(r.confirm), retention.WithLogger(r.logger))
	return p.Prune(ctx, ref, names)
}

// Confirmed reports whether writes are performed.
func (r *Registry) Confirmed() bool {
	return r.confirm
}

// NewPolicy validates retention settings.
func NewPolicy(maxAgeDays int, protected []string, retainLatest bool) (*Policy, error) {
	return retention.NewPolicy(maxAgeDays, protected, retainLatest)
}

// CreateArchive writes a reproducible archive of srcDir to dst. The format
// follows dst's extension.
func CreateArchive(dst, srcDir string, mtime time.Time) error {
	return archive.Create(dst, srcDir, mtime)
}

// ExtractArchive unpacks src into dstDir.
func ExtractArchive(src, dstDir string) error {
	return archive.Extract(src, dstDir)
}

// ArchiveExtensions returns the supported archive extensions, sorted.
func ArchiveExtensions() []string {
	return archive.Extensions()
}

// IsArchive reports whether path has a supported archive extension.
func IsArchive(path string) bool {
	return archive.IsArchive(path)
}

// SourceDate returns the archive timestamp for dir: SOURCE_DATE_EPOCH, the
// last commit time, or now.
func SourceDate(ctx context.Context, dir string) time.Time {
	return archive.SourceDate(ctx, dir)
}

// ParsePackageURL parses pkg:generic/NAME@VERSION.
func ParsePackageURL(purl string) (name, version string, err error) {
	return core.ParsePackageURL(purl)
}

// ErrorKind returns the prefix used when reporting err, such as
// "integrity error".
func ErrorKind(err error) string {
	return core.Kind(err)
}
