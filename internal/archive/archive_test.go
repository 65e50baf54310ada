package archive_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/git-pkgs/genpkg/all"
	"github.com/git-pkgs/genpkg/internal/archive"
	"github.com/git-pkgs/genpkg/internal/core"
)

var stamp = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

var extensions = []string{
	".tar", ".tar.gz", ".tgz", ".tar.bz2", ".tbz", ".tbz2",
	".tar.xz", ".txz", ".tar.zst", ".tzst", ".zip",
}

func TestExtensionsRegistered(t *testing.T) {
	got := archive.Extensions()
	for _, ext := range extensions {
		assert.Contains(t, got, ext)
	}
}

func writeTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"README.md":         "hello\n",
		"bin/tool":          "#!/bin/sh\necho tool\n",
		"share/doc/a.txt":   "a",
		"share/doc/b/c.txt": "c",
	}
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	require.NoError(t, os.Chmod(filepath.Join(dir, "bin", "tool"), 0o755))
	return dir
}

func readTree(t *testing.T, dir string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, p)
		out[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestRoundTrip(t *testing.T) {
	for _, ext := range extensions {
		t.Run(ext, func(t *testing.T) {
			src := writeTree(t)
			dst := filepath.Join(t.TempDir(), "out"+ext)

			require.NoError(t, archive.Create(dst, src, stamp))
			extracted := t.TempDir()
			require.NoError(t, archive.Extract(dst, extracted))

			assert.Equal(t, readTree(t, src), readTree(t, extracted))

			info, err := os.Stat(filepath.Join(extracted, "bin", "tool"))
			require.NoError(t, err)
			assert.NotZero(t, info.Mode().Perm()&0o100, "executable bit kept")
		})
	}
}

func TestReproducible(t *testing.T) {
	for _, ext := range extensions {
		t.Run(ext, func(t *testing.T) {
			first := filepath.Join(t.TempDir(), "a"+ext)
			second := filepath.Join(t.TempDir(), "b"+ext)

			require.NoError(t, archive.Create(first, writeTree(t), stamp))
			time.Sleep(10 * time.Millisecond)
			require.NoError(t, archive.Create(second, writeTree(t), stamp))

			a, err := os.ReadFile(first)
			require.NoError(t, err)
			b, err := os.ReadFile(second)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(a, b), "archives differ")
		})
	}
}

func TestCreateNormalizesMtime(t *testing.T) {
	src := writeTree(t)
	require.NoError(t, archive.Create(filepath.Join(t.TempDir(), "x.tar"), src, stamp))

	for _, p := range []string{"README.md", "share/doc", "share/doc/b/c.txt"} {
		info, err := os.Stat(filepath.Join(src, filepath.FromSlash(p)))
		require.NoError(t, err)
		assert.True(t, info.ModTime().Equal(stamp), "%s mtime = %v", p, info.ModTime())
	}
}

func TestUnsupportedFormat(t *testing.T) {
	src := writeTree(t)
	dst := filepath.Join(t.TempDir(), "out.rar")

	err := archive.Create(dst, src, stamp)
	var unsupported *core.UnsupportedFormatError
	require.True(t, errors.As(err, &unsupported))
	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr), "nothing written")

	err = archive.Extract(dst, t.TempDir())
	assert.True(t, errors.As(err, &unsupported))
}

func TestLookupLongestSuffix(t *testing.T) {
	_, ext, err := archive.Lookup("/tmp/pkg-1.0.TAR.GZ")
	require.NoError(t, err)
	assert.Equal(t, ".tar.gz", ext)

	assert.True(t, archive.IsArchive("a.tbz2"))
	assert.False(t, archive.IsArchive("a.gz"))
}

// escaping writes a single entry with a hostile name.
type escaping struct{ name string }

func (escaping) Write(io.Writer, []archive.Entry, time.Time) error { return nil }

func (e escaping) Read(_ *os.File, fn archive.ReadFunc) error {
	return fn(archive.Header{Name: e.name, Mode: 0o644}, bytes.NewReader([]byte("x")))
}

func TestExtractRejectsEscapingEntries(t *testing.T) {
	for i, name := range []string{"../evil.txt", "/etc/evil.txt", "a/../../evil.txt"} {
		ext := ".evil" + string(rune('a'+i))
		archive.Register(ext, escaping{name: name})

		src := filepath.Join(t.TempDir(), "x"+ext)
		require.NoError(t, os.WriteFile(src, nil, 0o644))
		parent := t.TempDir()
		dst := filepath.Join(parent, "dst")

		err := archive.Extract(src, dst)
		assert.ErrorIs(t, err, archive.ErrUnsafePath, name)
		_, statErr := os.Stat(filepath.Join(parent, "evil.txt"))
		assert.True(t, os.IsNotExist(statErr))
	}
}

// truncating writes part of an archive and fails.
type truncating struct{}

func (truncating) Write(w io.Writer, _ []archive.Entry, _ time.Time) error {
	_, _ = w.Write([]byte("partial"))
	return errors.New("disk full")
}

func (truncating) Read(*os.File, archive.ReadFunc) error { return nil }

func TestCreateRemovesPartialArchive(t *testing.T) {
	archive.Register(".partial", truncating{})

	dst := filepath.Join(t.TempDir(), "out.partial")
	err := archive.Create(dst, writeTree(t), stamp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr), "partial archive left at %s", dst)
}

func TestSourceDate(t *testing.T) {
	t.Setenv(archive.SourceDateEpochEnv, "1700000000")
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), archive.SourceDate(context.Background(), t.TempDir()))
}

func TestSourceDateFallsBackToNow(t *testing.T) {
	t.Setenv(archive.SourceDateEpochEnv, "")
	before := time.Now().Add(-time.Second)

	got := archive.SourceDate(context.Background(), t.TempDir())
	assert.True(t, got.After(before), "got %v", got)
}
