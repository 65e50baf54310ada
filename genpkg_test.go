package genpkg_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/git-pkgs/genpkg"
	"github.com/git-pkgs/genpkg/internal/registrytest"
)

const testProject = 5

func newRegistry(t testing.TB, settings ...genpkg.Setting) (*registrytest.Registry, *genpkg.Registry) {
	t.Helper()
	fake := registrytest.New(t)
	fake.AddProject(testProject, "group/repo")
	c := genpkg.NewClient(genpkg.WithBaseURL(fake.URL()), genpkg.WithTimeout(5*time.Second))
	return fake, genpkg.New(c, settings...)
}

func TestArchiveExtensions(t *testing.T) {
	want := []string{".tar", ".tar.bz2", ".tar.gz", ".tar.xz", ".tar.zst", ".tbz", ".tbz2", ".tgz", ".txz", ".tzst", ".zip"}
	got := genpkg.ArchiveExtensions()
	for _, ext := range want {
		if !genpkg.IsArchive("tool" + ext) {
			t.Errorf("expected %s to be a supported archive", ext)
		}
	}
	if len(got) < len(want) {
		t.Fatalf("expected at least %d extensions, got %v", len(want), got)
	}
}

func TestIntegration(t *testing.T) {
	fake, reg := newRegistry(t)
	now := time.Now()
	pkg := fake.AddPackage(testProject, "tool", "1.1", now.Add(-time.Hour))
	fake.AddPackage(testProject, "tool", "1.0", now.Add(-48*time.Hour))
	fake.AddFile(testProject, pkg, "tool.bin", []byte("tool 1.1"))
	ctx := context.Background()

	id, err := reg.ProjectID(ctx, "GROUP/repo")
	if err != nil {
		t.Fatalf("ProjectID failed: %v", err)
	}
	if id != testProject {
		t.Errorf("expected project %d, got %d", testProject, id)
	}

	latest, err := reg.Latest(ctx, "group/repo", "tool")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest == nil || latest.Version != "1.1" {
		t.Fatalf("expected latest 1.1, got %v", latest)
	}

	got, files, err := reg.Files(ctx, "group/repo", "tool", genpkg.LatestVersion)
	if err != nil {
		t.Fatalf("Files failed: %v", err)
	}
	if got.Version != "1.1" || len(files) != 1 || files[0].FileName != "tool.bin" {
		t.Errorf("unexpected files of %v: %v", got, files)
	}

	dest := t.TempDir()
	fetched, err := reg.Fetch(ctx, "group/repo", "tool", "1.1", dest)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(fetched) != 1 || fetched[0].Digest.Encoded() != registrytest.Checksum([]byte("tool 1.1")) {
		t.Errorf("unexpected fetch result: %v", fetched)
	}

	if n := fake.CountRequests("GET /projects?"); n != 1 {
		t.Errorf("expected one project listing, got %d", n)
	}

	purl := reg.PURL("tool", "1.1")
	name, version, err := genpkg.ParsePackageURL(purl)
	if err != nil {
		t.Fatalf("ParsePackageURL(%q) failed: %v", purl, err)
	}
	if name != "tool" || version != "1.1" {
		t.Errorf("round trip of %q gave %s@%s", purl, name, version)
	}
}

func TestIntegrityError(t *testing.T) {
	fake, reg := newRegistry(t)
	pkg := fake.AddPackage(testProject, "tool", "1.0", time.Now())
	fake.AddFileWithChecksum(testProject, pkg, "tool.bin", []byte("evil"), registrytest.Checksum([]byte("good")))

	_, err := reg.Fetch(context.Background(), "group/repo", "tool", "1.0", t.TempDir())
	var integrity *genpkg.IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected IntegrityError, got %v", err)
	}
	if kind := genpkg.ErrorKind(err); kind != "integrity error" {
		t.Errorf("expected kind %q, got %q", "integrity error", kind)
	}
}

func TestUploadRequiresConfirm(t *testing.T) {
	file := filepath.Join(t.TempDir(), "tool.bin")
	if err := os.WriteFile(file, []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}

	fake, dry := newRegistry(t)
	uploaded, err := dry.Upload(context.Background(), "group/repo", "tool", "2.0", []string{file})
	if err != nil {
		t.Fatalf("dry-run Upload failed: %v", err)
	}
	if len(uploaded) != 1 || !uploaded[0].DryRun {
		t.Errorf("expected one dry-run upload, got %v", uploaded)
	}
	if n := fake.CountRequests("PUT "); n != 0 {
		t.Errorf("dry run sent %d PUT requests", n)
	}

	fake, live := newRegistry(t, genpkg.WithConfirm(true))
	if _, err := live.Upload(context.Background(), "group/repo", "tool", "2.0", []string{file}); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if blob, ok := fake.Blob(testProject, "tool", "2.0", "tool.bin"); !ok || string(blob) != "new" {
		t.Errorf("expected stored blob %q, got %q", "new", blob)
	}
}

func TestPrune(t *testing.T) {
	fake, reg := newRegistry(t, genpkg.WithConfirm(true), genpkg.WithBreakerThreshold(0))
	now := time.Now()
	fake.AddPackage(testProject, "tool", "v2.0", now.Add(-24*time.Hour))
	fake.AddPackage(testProject, "tool", "1.9", now.Add(-20*24*time.Hour))
	fake.AddPackage(testProject, "tool", "1.8", now.Add(-30*24*time.Hour))
	old := fake.AddPackage(testProject, "tool", "1.7", now.Add(-40*24*time.Hour))

	policy, err := genpkg.NewPolicy(7, []string{`^1\.8$`}, true)
	if err != nil {
		t.Fatalf("NewPolicy failed: %v", err)
	}
	summaries, err := reg.Prune(context.Background(), "group/repo", policy)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Deleted != 1 {
		t.Fatalf("unexpected summaries: %+v", summaries)
	}

	reasons := make(map[string]string)
	for _, d := range summaries[0].Decisions {
		reasons[d.Package.Version] = string(d.Action) + "/" + string(d.Reason)
	}
	want := map[string]string{
		"v2.0": "retain/" + string(genpkg.ReasonTooYoung),
		"1.9":  "retain/" + string(genpkg.ReasonLatest),
		"1.8":  "retain/" + string(genpkg.ReasonProtected),
		"1.7":  "delete/",
	}
	if !reflect.DeepEqual(reasons, want) {
		t.Errorf("decisions = %v, want %v", reasons, want)
	}
	if deleted := fake.Deleted(); len(deleted) != 1 || deleted[0] != old.ID {
		t.Errorf("expected only %d deleted, got %v", old.ID, deleted)
	}
}

func TestNewPolicyInvalid(t *testing.T) {
	_, err := genpkg.NewPolicy(0, nil, true)
	var policyErr *genpkg.PolicyError
	if !errors.As(err, &policyErr) {
		t.Errorf("expected PolicyError, got %v", err)
	}
}

func TestInstallRemovesTempDirs(t *testing.T) {
	fake, reg := newRegistry(t)
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "tool"), []byte("tool"), 0o755); err != nil {
		t.Fatal(err)
	}
	tarball := filepath.Join(t.TempDir(), "tool.tar.xz")
	if err := genpkg.CreateArchive(tarball, src, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("CreateArchive failed: %v", err)
	}
	data, err := os.ReadFile(tarball)
	if err != nil {
		t.Fatal(err)
	}
	pkg := fake.AddPackage(testProject, "tool", "1.0", time.Now())
	fake.AddFile(testProject, pkg, "tool.tar.xz", data)

	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	dest := filepath.Join(t.TempDir(), "install")
	installed, err := reg.Install(context.Background(), "group/repo", "tool", "1.0", dest)
	if err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if !reflect.DeepEqual(installed, []string{"tool"}) {
		t.Errorf("installed = %v", installed)
	}
	left, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Errorf("expected temp dirs removed, found %d entries", len(left))
	}
}
