package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"
	"github.com/rs/zerolog"

	"github.com/git-pkgs/genpkg/client"
	"github.com/git-pkgs/genpkg/internal/core"
)

// Putter streams a request body to a URL.
type Putter interface {
	Put(ctx context.Context, url string, body io.Reader, size int64) ([]byte, error)
}

// Uploaded describes one file of an upload.
type Uploaded struct {
	Path   string        `json:"path" yaml:"path"`
	URL    string        `json:"url" yaml:"url"`
	Size   int64         `json:"size" yaml:"size"`
	Digest digest.Digest `json:"digest" yaml:"digest"`
	DryRun bool          `json:"dry_run" yaml:"dry_run"`
}

// Uploader puts local files into a package version.
type Uploader struct {
	put      Putter
	projects Projects
	urls     *client.URLs
	confirm  bool
	logger   zerolog.Logger
}

// NewUploader creates an Uploader. Without WithConfirm(true) it performs
// no writes.
func NewUploader(put Putter, projects Projects, urls *client.URLs, opts ...Option) *Uploader {
	o := newOptions(opts)
	return &Uploader{put: put, projects: projects, urls: urls, confirm: o.confirm, logger: o.logger}
}

// Upload sends files in order to the package version. The first failure
// aborts the upload; files already sent stay uploaded and are returned
// along with the error.
func (u *Uploader) Upload(ctx context.Context, ref, name, version string, files []string) ([]Uploaded, error) {
	switch {
	case name == "":
		return nil, &core.ArgumentError{Msg: "package name is required"}
	case version == "":
		return nil, &core.ArgumentError{Msg: "package version is required"}
	case version == "latest":
		return nil, &core.ArgumentError{Msg: `"latest" cannot be used as an upload version`}
	case len(files) == 0:
		return nil, &core.ArgumentError{Msg: "no files to upload"}
	}
	// Files are stored under their base name.
	seen := make(map[string]string, len(files))
	for _, path := range files {
		base := filepath.Base(path)
		if prev, ok := seen[base]; ok {
			return nil, &core.ArgumentError{Msg: fmt.Sprintf("%s and %s both upload as %s", prev, path, base)}
		}
		seen[base] = path
	}
	projectID, err := u.projects.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	var done []Uploaded
	for _, path := range files {
		up, err := u.uploadFile(ctx, projectID, name, version, path)
		if err != nil {
			return done, err
		}
		done = append(done, *up)
	}
	return done, nil
}

func (u *Uploader) uploadFile(ctx context.Context, projectID int64, name, version, path string) (*Uploaded, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !st.Mode().IsRegular() {
		return nil, &core.ArgumentError{Msg: fmt.Sprintf("%s is not a regular file", path)}
	}

	local, err := digest.SHA256.FromReader(f)
	if err != nil {
		return nil, fmt.Errorf("hashing %s: %w", path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewinding %s: %w", path, err)
	}

	target := u.urls.GenericFile(projectID, name, version, filepath.Base(path))
	up := &Uploaded{Path: path, URL: target, Size: st.Size(), Digest: local, DryRun: !u.confirm}
	if !u.confirm {
		return up, nil
	}

	body, err := u.put.Put(ctx, target+"?select=package_file", f, st.Size())
	if err != nil {
		return nil, fmt.Errorf("uploading %s: %w", path, err)
	}
	if err := verifyStored(body, local, target); err != nil {
		return nil, err
	}
	u.logger.Info().Str("file", path).Str("digest", local.String()).Msg("uploaded")
	return up, nil
}

// verifyStored compares the checksum the registry echoes for the stored
// file, when it echoes one, with the local digest.
func verifyStored(body []byte, local digest.Digest, target string) error {
	var stored core.PackageFile
	if err := json.Unmarshal(body, &stored); err != nil || stored.FileSHA256 == "" {
		return nil
	}
	remote := digest.NewDigestFromEncoded(digest.SHA256, strings.ToLower(stored.FileSHA256))
	if remote != local {
		return &core.IntegrityError{File: target, Expected: local.String(), Actual: remote.String()}
	}
	return nil
}
