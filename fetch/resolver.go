package fetch

import (
	_ "crypto/sha256" // registers digest.SHA256
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/git-pkgs/genpkg/client"
	"github.com/git-pkgs/genpkg/internal/core"
)

var ErrUnsafeFilename = errors.New("unsafe file name")

// Resolver determines download URLs for package files.
type Resolver struct {
	urls *client.URLs
}

// NewResolver creates a URL resolver for the registry at urls.
func NewResolver(urls *client.URLs) *Resolver {
	return &Resolver{urls: urls}
}

// ArtifactInfo contains information about a downloadable file.
type ArtifactInfo struct {
	URL       string
	Filename  string
	Size      int64
	Integrity digest.Digest // sha256:<hex> as recorded at upload time
}

// Resolve returns the download URL and expected digest of a package file.
func (r *Resolver) Resolve(projectID int64, pkg core.Package, f core.PackageFile) (*ArtifactInfo, error) {
	if err := checkFilename(f.FileName); err != nil {
		return nil, err
	}
	integrity := digest.NewDigestFromEncoded(digest.SHA256, strings.ToLower(f.FileSHA256))
	if err := integrity.Validate(); err != nil {
		return nil, fmt.Errorf("%s: registry checksum: %w", f.FileName, err)
	}
	return &ArtifactInfo{
		URL:       r.urls.GenericFile(projectID, pkg.Name, pkg.Version, f.FileName),
		Filename:  f.FileName,
		Size:      f.Size,
		Integrity: integrity,
	}, nil
}

// checkFilename rejects names that would be written outside the
// destination directory.
func checkFilename(name string) error {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrUnsafeFilename, name)
	}
	return nil
}
