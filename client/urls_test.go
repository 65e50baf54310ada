package client

import (
	"net/url"
	"strings"
	"testing"
)

func TestURLs(t *testing.T) {
	u := NewURLs("https://gitlab.example.com/api/v4/")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"projects", u.Projects(), "https://gitlab.example.com/api/v4/projects?membership=true&simple=true&order_by=name&per_page=100"},
		{"package", u.Package(12, 345), "https://gitlab.example.com/api/v4/projects/12/packages/345"},
		{"package files", u.PackageFiles(12, 345), "https://gitlab.example.com/api/v4/projects/12/packages/345/package_files"},
		{"generic file", u.GenericFile(12, "tool", "1.0.0", "tool.tar.gz"), "https://gitlab.example.com/api/v4/projects/12/packages/generic/tool/1.0.0/tool.tar.gz"},
		{"escaped file", u.GenericFile(12, "tool", "1.0.0", "my tool.zip"), "https://gitlab.example.com/api/v4/projects/12/packages/generic/tool/1.0.0/my%20tool.zip"},
		{"web root", u.WebRoot(), "https://gitlab.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestURLs_Packages(t *testing.T) {
	u := NewURLs("https://gitlab.example.com/api/v4")

	parsed, err := url.Parse(u.Packages(12, "tool", "1.0"))
	if err != nil {
		t.Fatalf("url.Parse failed: %v", err)
	}
	if parsed.Path != "/api/v4/projects/12/packages" {
		t.Errorf("Path = %q", parsed.Path)
	}
	q := parsed.Query()
	want := map[string]string{
		"package_name":    "tool",
		"package_version": "1.0",
		"order_by":        "version",
		"sort":            "desc",
	}
	for k, v := range want {
		if q.Get(k) != v {
			t.Errorf("query %s = %q, want %q", k, q.Get(k), v)
		}
	}

	parsed, _ = url.Parse(u.Packages(12, "", ""))
	if parsed.Query().Has("package_name") || parsed.Query().Has("package_version") {
		t.Errorf("empty filters should be omitted: %s", parsed.RawQuery)
	}
}

func TestURLs_PURL(t *testing.T) {
	u := NewURLs("https://gitlab.example.com/api/v4")
	got := u.PURL("tool", "1.0.0")
	if !strings.HasPrefix(got, "pkg:generic/tool@1.0.0?repository_url=") {
		t.Errorf("PURL = %q, want pkg:generic/tool@1.0.0 with repository_url", got)
	}
	if !strings.Contains(got, "gitlab.example.com") {
		t.Errorf("PURL = %q, want repository host", got)
	}
}
