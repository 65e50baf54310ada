// Package tarball registers the tar archive formats, plain and compressed
// with gzip, bzip2, xz or zstd.
package tarball

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/git-pkgs/genpkg/internal/archive"
)

func init() {
	archive.Register(".tar", New(None))
	archive.Register(".tar.gz", New(Gzip))
	archive.Register(".tgz", New(Gzip))
	archive.Register(".tar.bz2", New(Bzip2))
	archive.Register(".tbz", New(Bzip2))
	archive.Register(".tbz2", New(Bzip2))
	archive.Register(".tar.xz", New(XZ))
	archive.Register(".txz", New(XZ))
	archive.Register(".tar.zst", New(Zstd))
	archive.Register(".tzst", New(Zstd))
}

// Compression is a stream compressor wrapped around a tar stream.
type Compression struct {
	Name       string
	Compress   func(io.Writer) (io.WriteCloser, error)
	Decompress func(io.Reader) (io.ReadCloser, error)
}

var (
	None = Compression{
		Name:       "none",
		Compress:   func(w io.Writer) (io.WriteCloser, error) { return nopWriteCloser{w}, nil },
		Decompress: func(r io.Reader) (io.ReadCloser, error) { return io.NopCloser(r), nil },
	}

	Gzip = Compression{
		Name: "gzip",
		Compress: func(w io.Writer) (io.WriteCloser, error) {
			return gzip.NewWriterLevel(w, gzip.BestCompression)
		},
		Decompress: func(r io.Reader) (io.ReadCloser, error) {
			return gzip.NewReader(r)
		},
	}

	Bzip2 = Compression{
		Name: "bzip2",
		Compress: func(w io.Writer) (io.WriteCloser, error) {
			return bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.BestCompression})
		},
		Decompress: func(r io.Reader) (io.ReadCloser, error) {
			return bzip2.NewReader(r, nil)
		},
	}

	XZ = Compression{
		Name: "xz",
		Compress: func(w io.Writer) (io.WriteCloser, error) {
			return xz.NewWriter(w)
		},
		Decompress: func(r io.Reader) (io.ReadCloser, error) {
			xr, err := xz.NewReader(r)
			if err != nil {
				return nil, err
			}
			return io.NopCloser(xr), nil
		},
	}

	Zstd = Compression{
		Name: "zstd",
		Compress: func(w io.Writer) (io.WriteCloser, error) {
			return zstd.NewWriter(w, zstd.WithEncoderConcurrency(1))
		},
		Decompress: func(r io.Reader) (io.ReadCloser, error) {
			dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
			if err != nil {
				return nil, err
			}
			return dec.IOReadCloser(), nil
		},
	}
)

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// Format is a tar archive inside a Compression.
type Format struct {
	c Compression
}

// New returns a tar format using c.
func New(c Compression) *Format {
	return &Format{c: c}
}

// Write writes entries as a tar stream with cleared ownership.
func (f *Format) Write(w io.Writer, entries []archive.Entry, mtime time.Time) error {
	cw, err := f.c.Compress(w)
	if err != nil {
		return fmt.Errorf("%s: %w", f.c.Name, err)
	}
	tw := tar.NewWriter(cw)

	for _, e := range entries {
		if err := writeEntry(tw, e, mtime); err != nil {
			_ = cw.Close()
			return err
		}
	}
	if err := tw.Close(); err != nil {
		_ = cw.Close()
		return err
	}
	return cw.Close()
}

func writeEntry(tw *tar.Writer, e archive.Entry, mtime time.Time) error {
	hdr := &tar.Header{
		Name:    e.Name,
		Mode:    int64(e.Mode.Perm()),
		ModTime: mtime,
		Format:  tar.FormatPAX,
	}
	if e.Dir {
		hdr.Typeflag = tar.TypeDir
		hdr.Name += "/"
		return tw.WriteHeader(hdr)
	}
	hdr.Typeflag = tar.TypeReg
	hdr.Size = e.Size

	src, err := os.Open(e.Path)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if _, err := io.CopyN(tw, src, e.Size); err != nil {
		return fmt.Errorf("%s: %w", e.Name, err)
	}
	return nil
}

// Read walks the tar stream in f.
func (f *Format) Read(file *os.File, fn archive.ReadFunc) error {
	r, err := f.c.Decompress(file)
	if err != nil {
		return fmt.Errorf("%s: %w", f.c.Name, err)
	}
	defer func() { _ = r.Close() }()

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		h := archive.Header{Name: hdr.Name, Mode: os.FileMode(hdr.Mode).Perm()}
		switch hdr.Typeflag {
		case tar.TypeDir:
			h.Dir = true
			err = fn(h, nil)
		case tar.TypeReg:
			err = fn(h, tr)
		default:
			continue
		}
		if err != nil {
			return err
		}
	}
}
