// Package install fetches a package version and unpacks it into a directory.
package install

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/git-pkgs/genpkg/fetch"
	"github.com/git-pkgs/genpkg/internal/archive"
	"github.com/git-pkgs/genpkg/internal/tempfs"
)

// Fetcher downloads verified package files into a directory.
type Fetcher interface {
	Fetch(ctx context.Context, ref, name, version, destDir string, only ...string) ([]fetch.Fetched, error)
}

// Installer downloads into one temporary directory, unpacks into a
// second and copies the merged tree to the destination. Keeping the two
// apart stops archive contents from colliding with sibling downloads.
type Installer struct {
	fetcher Fetcher
	temp    *tempfs.Registry
	logger  zerolog.Logger
}

// New creates an Installer whose staging directories are tracked by temp.
func New(f Fetcher, temp *tempfs.Registry, logger zerolog.Logger) *Installer {
	return &Installer{fetcher: f, temp: temp, logger: logger}
}

// Install places the files of a package version under dest, creating it
// if missing. Recognized archives are extracted; other files are copied
// as they are. It returns the installed paths relative to dest.
func (i *Installer) Install(ctx context.Context, ref, name, version, dest string) ([]string, error) {
	downloads, err := i.temp.MkdirTemp("genpkg-download-*")
	if err != nil {
		return nil, err
	}
	fetched, err := i.fetcher.Fetch(ctx, ref, name, version, downloads)
	if err != nil {
		return nil, err
	}

	unpacked, err := i.temp.MkdirTemp("genpkg-unpack-*")
	if err != nil {
		return nil, err
	}
	for _, f := range fetched {
		if archive.IsArchive(f.Path) {
			i.logger.Info().Str("archive", filepath.Base(f.Path)).Msg("extracting")
			if err := archive.Extract(f.Path, unpacked); err != nil {
				return nil, err
			}
			continue
		}
		if err := moveFile(f.Path, filepath.Join(unpacked, filepath.Base(f.Path))); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dest, err)
	}
	installed, err := copyTree(unpacked, dest)
	if err != nil {
		return installed, err
	}
	i.logger.Info().Str("dest", dest).Int("files", len(installed)).Msg("installed")
	return installed, nil
}

func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// copyTree copies the regular files under src into dst and returns their
// relative paths in walk order.
func copyTree(src, dst string) ([]string, error) {
	var copied []string
	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if err := copyFile(p, target); err != nil {
			return err
		}
		copied = append(copied, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return copied, fmt.Errorf("installing into %s: %w", dst, err)
	}
	return copied, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	st, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, st.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
