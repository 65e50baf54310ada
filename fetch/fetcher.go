// Package fetch downloads package files with checksum verification and
// uploads local files to a package version.
package fetch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/opencontainers/go-digest"
	"github.com/rs/zerolog"

	"github.com/git-pkgs/genpkg/client"
	"github.com/git-pkgs/genpkg/internal/core"
)

// Catalog finds a package version and its files.
type Catalog interface {
	Files(ctx context.Context, ref, name, version string) (*core.Package, []core.PackageFile, error)
}

// Projects maps project references to ids.
type Projects interface {
	Resolve(ctx context.Context, ref string) (int64, error)
}

// Downloader streams a URL.
type Downloader interface {
	Download(ctx context.Context, url string) (io.ReadCloser, int64, error)
}

type options struct {
	logger  zerolog.Logger
	confirm bool
}

// Option configures a Fetcher or an Uploader.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithConfirm enables writes. Without it an Uploader only reports what it
// would upload.
func WithConfirm(confirm bool) Option {
	return func(o *options) {
		o.confirm = confirm
	}
}

func newOptions(opts []Option) options {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Fetched describes a file that was downloaded and verified.
type Fetched struct {
	Path   string        `json:"path" yaml:"path"`
	URL    string        `json:"url" yaml:"url"`
	Size   int64         `json:"size" yaml:"size"`
	Digest digest.Digest `json:"digest" yaml:"digest"`
}

// Fetcher downloads package files and verifies them against the registry's
// recorded checksums.
type Fetcher struct {
	dl       Downloader
	catalog  Catalog
	projects Projects
	resolver *Resolver
	logger   zerolog.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(dl Downloader, cat Catalog, projects Projects, urls *client.URLs, opts ...Option) *Fetcher {
	o := newOptions(opts)
	return &Fetcher{
		dl:       dl,
		catalog:  cat,
		projects: projects,
		resolver: NewResolver(urls),
		logger:   o.logger,
	}
}

// Fetch downloads the files of a package version into destDir, creating it
// if needed. When only is non-empty just those file names are fetched.
// Files are fetched in name order and the first failure stops the fetch.
// A file whose checksum does not match is left in place and reported as an
// *core.IntegrityError.
func (f *Fetcher) Fetch(ctx context.Context, ref, name, version, destDir string, only ...string) ([]Fetched, error) {
	pkg, files, err := f.catalog.Files(ctx, ref, name, version)
	if err != nil {
		return nil, err
	}
	files, err = selectFiles(*pkg, files, only)
	if err != nil {
		return nil, err
	}
	projectID, err := f.projects.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", destDir, err)
	}

	var fetched []Fetched
	for _, file := range files {
		info, err := f.resolver.Resolve(projectID, *pkg, file)
		if err != nil {
			return fetched, err
		}
		dest := filepath.Join(destDir, info.Filename)
		n, err := f.FetchArtifact(ctx, info, dest)
		if err != nil {
			return fetched, err
		}
		f.logger.Info().Str("file", dest).Str("digest", info.Integrity.String()).Msg("fetched")
		fetched = append(fetched, Fetched{Path: dest, URL: info.URL, Size: n, Digest: info.Integrity})
	}
	return fetched, nil
}

func selectFiles(pkg core.Package, files []core.PackageFile, only []string) ([]core.PackageFile, error) {
	if len(only) == 0 {
		if len(files) == 0 {
			return nil, &core.NotFoundError{Name: pkg.Name, Version: pkg.Version, File: "(any)"}
		}
		return files, nil
	}
	var out []core.PackageFile
	for _, want := range only {
		i := slices.IndexFunc(files, func(f core.PackageFile) bool { return f.FileName == want })
		if i < 0 {
			return nil, &core.NotFoundError{Name: pkg.Name, Version: pkg.Version, File: want}
		}
		out = append(out, files[i])
	}
	return out, nil
}

// FetchArtifact streams info.URL into dest while hashing it and returns the
// number of bytes written. The digest is compared once the body is complete.
func (f *Fetcher) FetchArtifact(ctx context.Context, info *ArtifactInfo, dest string) (int64, error) {
	body, _, err := f.dl.Download(ctx, info.URL)
	if err != nil {
		return 0, err
	}
	defer func() { _ = body.Close() }()

	out, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", dest, err)
	}

	digester := info.Integrity.Algorithm().Digester()
	n, err := io.Copy(io.MultiWriter(out, digester.Hash()), body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, fmt.Errorf("downloading %s: %w", info.Filename, err)
	}

	if actual := digester.Digest(); actual != info.Integrity {
		return n, &core.IntegrityError{
			File:     dest,
			Expected: info.Integrity.String(),
			Actual:   actual.String(),
		}
	}
	return n, nil
}
