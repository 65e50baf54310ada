package tarball

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-pkgs/genpkg/internal/archive"
)

func TestWriteClosesCompressorOnEntryError(t *testing.T) {
	entries := []archive.Entry{
		{Name: "bin", Mode: 0o755, Dir: true},
		{Name: "bin/tool", Path: filepath.Join(t.TempDir(), "missing"), Mode: 0o755, Size: 4},
	}

	for _, c := range []Compression{Gzip, Zstd, XZ, Bzip2} {
		t.Run(c.Name, func(t *testing.T) {
			var buf bytes.Buffer
			err := New(c).Write(&buf, entries, time.Unix(1700000000, 0))
			require.Error(t, err)

			r, err := c.Decompress(&buf)
			require.NoError(t, err)
			defer func() { _ = r.Close() }()
			_, err = io.ReadAll(r)
			assert.NoError(t, err, "compressed stream is terminated")
		})
	}
}
