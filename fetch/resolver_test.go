package fetch

import (
	"errors"
	"strings"
	"testing"

	"github.com/git-pkgs/genpkg/client"
	"github.com/git-pkgs/genpkg/internal/core"
)

func TestResolve(t *testing.T) {
	r := NewResolver(client.NewURLs("https://gitlab.example.com/api/v4"))
	pkg := core.Package{ID: 5, Name: "tool", Version: "1.0"}
	sha := strings.Repeat("ab", 32)

	info, err := r.Resolve(12, pkg, core.PackageFile{ID: 9, FileName: "tool.tar.gz", Size: 42, FileSHA256: strings.ToUpper(sha)})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if info.URL != "https://gitlab.example.com/api/v4/projects/12/packages/generic/tool/1.0/tool.tar.gz" {
		t.Errorf("URL = %q", info.URL)
	}
	if info.Filename != "tool.tar.gz" {
		t.Errorf("Filename = %q", info.Filename)
	}
	if info.Size != 42 {
		t.Errorf("Size = %d", info.Size)
	}
	if info.Integrity.String() != "sha256:"+sha {
		t.Errorf("Integrity = %q", info.Integrity)
	}
}

func TestResolveUnsafeFilename(t *testing.T) {
	r := NewResolver(client.NewURLs("https://gitlab.example.com/api/v4"))
	pkg := core.Package{ID: 5, Name: "tool", Version: "1.0"}
	sha := strings.Repeat("0", 64)

	for _, name := range []string{"../evil", "a/b", `a\b`, "..", ""} {
		_, err := r.Resolve(12, pkg, core.PackageFile{ID: 1, FileName: name, FileSHA256: sha})
		if !errors.Is(err, ErrUnsafeFilename) {
			t.Errorf("Resolve(%q) = %v, want ErrUnsafeFilename", name, err)
		}
	}
}

func TestResolveBadChecksum(t *testing.T) {
	r := NewResolver(client.NewURLs("https://gitlab.example.com/api/v4"))
	pkg := core.Package{ID: 5, Name: "tool", Version: "1.0"}

	if _, err := r.Resolve(12, pkg, core.PackageFile{ID: 1, FileName: "f", FileSHA256: "xyz"}); err == nil {
		t.Error("expected error for malformed checksum")
	}
}
