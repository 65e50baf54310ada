// Package archive creates reproducible archives and extracts them.
//
// Formats register themselves by file extension; import
// github.com/git-pkgs/genpkg/all to register every supported format.
// Archives created from identical trees with the same timestamp are
// byte-identical: entries are sorted, owners are cleared and every
// modification time is forced to the same instant.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SourceDateEpochEnv overrides the archive timestamp, in Unix seconds.
const SourceDateEpochEnv = "SOURCE_DATE_EPOCH"

var ErrUnsafePath = errors.New("archive entry escapes destination")

// Create archives the tree under srcDir into dst. The format is chosen by
// dst's extension. Every file and directory under srcDir has its
// modification time set to mtime before it is archived. dst is removed
// when writing fails.
func Create(dst, srcDir string, mtime time.Time) error {
	format, _, err := Lookup(dst)
	if err != nil {
		return err
	}
	mtime = mtime.UTC().Truncate(time.Second)

	entries, err := collect(srcDir, dst, mtime)
	if err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if err := format.Write(out, entries, mtime); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("writing %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("writing %s: %w", dst, err)
	}
	return nil
}

// collect walks srcDir, normalizing timestamps, and returns its regular
// files and directories sorted by name. dst is skipped when it lies inside
// srcDir.
func collect(srcDir, dst string, mtime time.Time) ([]Entry, error) {
	absDst, _ := filepath.Abs(dst)

	var entries []Entry
	err := filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if abs, _ := filepath.Abs(p); abs == absDst {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() && !info.IsDir() {
			return nil
		}
		if err := os.Chtimes(p, mtime, mtime); err != nil {
			return fmt.Errorf("setting mtime of %s: %w", p, err)
		}

		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		e := Entry{Name: filepath.ToSlash(rel), Mode: normalizeMode(info.Mode())}
		if info.IsDir() {
			e.Dir = true
		} else {
			e.Path = p
			e.Size = info.Size()
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", srcDir, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// normalizeMode keeps only whether an entry is executable.
func normalizeMode(m fs.FileMode) fs.FileMode {
	if m.IsDir() || m.Perm()&0o111 != 0 {
		return 0o755
	}
	return 0o644
}

// Extract unpacks src into dstDir, creating it if needed. The format is
// chosen by src's extension. Entries that would land outside dstDir are
// rejected.
func Extract(src, dstDir string) error {
	format, _, err := Lookup(src)
	if err != nil {
		return err
	}

	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer func() { _ = f.Close() }()

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dstDir, err)
	}
	root, err := os.OpenRoot(dstDir)
	if err != nil {
		return err
	}
	defer func() { _ = root.Close() }()

	err = format.Read(f, func(h Header, body io.Reader) error {
		return extractEntry(root, h, body)
	})
	if err != nil {
		return fmt.Errorf("extracting %s: %w", src, err)
	}
	return nil
}

func extractEntry(root *os.Root, h Header, body io.Reader) error {
	name := path.Clean(strings.TrimSuffix(h.Name, "/"))
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return fmt.Errorf("%w: %s", ErrUnsafePath, h.Name)
	}
	local := filepath.FromSlash(name)

	if h.Dir {
		return root.MkdirAll(local, 0o755)
	}
	if dir := filepath.Dir(local); dir != "." {
		if err := root.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	out, err := root.OpenFile(local, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, normalizeMode(h.Mode))
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, body); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// SourceDate returns the timestamp for archives built from dir:
// SOURCE_DATE_EPOCH when set, else the time of the last commit of the git
// checkout containing dir, else the current time.
func SourceDate(ctx context.Context, dir string) time.Time {
	if v := os.Getenv(SourceDateEpochEnv); v != "" {
		if secs, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return time.Unix(secs, 0).UTC()
		}
	}

	out, err := exec.CommandContext(ctx, "git", "-C", dir, "log", "-1", "--format=%ct").Output()
	if err == nil {
		if secs, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64); err == nil {
			return time.Unix(secs, 0).UTC()
		}
	}
	return time.Now().UTC().Truncate(time.Second)
}
