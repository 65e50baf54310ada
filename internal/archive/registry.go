package archive

import (
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/git-pkgs/genpkg/internal/core"
)

// Entry is a file or directory to be written to an archive.
type Entry struct {
	Name string      // slash separated, relative to the archive root
	Path string      // location on disk; empty for directories
	Mode fs.FileMode // normalized permission bits
	Size int64
	Dir  bool
}

// Header describes an entry read back from an archive.
type Header struct {
	Name string
	Mode fs.FileMode
	Dir  bool
}

// ReadFunc receives each regular file or directory of an archive. body is
// nil for directories.
type ReadFunc func(h Header, body io.Reader) error

// Format writes and reads one archive format.
type Format interface {
	// Write writes entries, in the given order, stamped with mtime.
	Write(w io.Writer, entries []Entry, mtime time.Time) error

	// Read calls fn for each file and directory in the archive. Other
	// entry types are skipped.
	Read(f *os.File, fn ReadFunc) error
}

var (
	formats = make(map[string]Format)
	mu      sync.RWMutex
)

// Register associates a file extension, including its leading dot, with
// a format.
func Register(ext string, f Format) {
	mu.Lock()
	defer mu.Unlock()
	formats[strings.ToLower(ext)] = f
}

// Lookup returns the format for path by its longest registered extension.
func Lookup(path string) (Format, string, error) {
	mu.RLock()
	defer mu.RUnlock()

	lower := strings.ToLower(path)
	best := ""
	for ext := range formats {
		if strings.HasSuffix(lower, ext) && len(ext) > len(best) {
			best = ext
		}
	}
	if best == "" {
		return nil, "", &core.UnsupportedFormatError{Path: path}
	}
	return formats[best], best, nil
}

// IsArchive reports whether path has a registered extension.
func IsArchive(path string) bool {
	_, _, err := Lookup(path)
	return err == nil
}

// Extensions returns all registered extensions, sorted.
func Extensions() []string {
	mu.RLock()
	defer mu.RUnlock()

	exts := make([]string, 0, len(formats))
	for ext := range formats {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
