// Package zipfile registers the zip archive format.
package zipfile

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/git-pkgs/genpkg/internal/archive"
)

func init() {
	archive.Register(".zip", Format{})
}

// Format reads and writes deflated zip archives.
type Format struct{}

// Write writes entries with deflate compression. Directories are stored.
func (Format) Write(w io.Writer, entries []archive.Entry, mtime time.Time) error {
	zw := zip.NewWriter(w)
	for _, e := range entries {
		if err := writeEntry(zw, e, mtime); err != nil {
			return err
		}
	}
	return zw.Close()
}

func writeEntry(zw *zip.Writer, e archive.Entry, mtime time.Time) error {
	hdr := &zip.FileHeader{
		Name:     e.Name,
		Method:   zip.Deflate,
		Modified: mtime,
	}
	if e.Dir {
		hdr.Name += "/"
		hdr.Method = zip.Store
		hdr.SetMode(os.ModeDir | e.Mode)
		_, err := zw.CreateHeader(hdr)
		return err
	}
	hdr.SetMode(e.Mode)

	src, err := os.Open(e.Path)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	if _, err := io.CopyN(dst, src, e.Size); err != nil {
		return fmt.Errorf("%s: %w", e.Name, err)
	}
	return nil
}

// Read walks the central directory of the zip in f.
func (Format) Read(f *os.File, fn archive.ReadFunc) error {
	st, err := f.Stat()
	if err != nil {
		return err
	}
	zr, err := zip.NewReader(f, st.Size())
	if err != nil {
		return err
	}

	for _, zf := range zr.File {
		mode := zf.Mode()
		h := archive.Header{Name: zf.Name, Mode: mode.Perm(), Dir: mode.IsDir()}
		if h.Dir {
			if err := fn(h, nil); err != nil {
				return err
			}
			continue
		}
		if !mode.IsRegular() {
			continue
		}
		if err := readEntry(zf, h, fn); err != nil {
			return err
		}
	}
	return nil
}

func readEntry(zf *zip.File, h archive.Header, fn archive.ReadFunc) error {
	rc, err := zf.Open()
	if err != nil {
		return fmt.Errorf("%s: %w", zf.Name, err)
	}
	defer func() { _ = rc.Close() }()
	return fn(h, rc)
}
