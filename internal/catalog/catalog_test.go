package catalog

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-pkgs/genpkg/client"
	"github.com/git-pkgs/genpkg/internal/core"
	"github.com/git-pkgs/genpkg/internal/project"
	"github.com/git-pkgs/genpkg/internal/registrytest"
)

const pid = 7

func newCatalog(t *testing.T) (*Catalog, *registrytest.Registry) {
	t.Helper()
	reg := registrytest.New(t)
	reg.AddProject(pid, "group/repo")

	c := client.NewClient(client.WithBaseURL(reg.URL()))
	resolver := project.NewResolver(c, c.URLs(), project.NewCache(), zerolog.Nop())
	return New(c, c.URLs(), resolver, zerolog.Nop()), reg
}

func TestListVersions(t *testing.T) {
	cat, reg := newCatalog(t)
	now := time.Now()
	reg.AddPackage(pid, "tool", "2.0", now)
	reg.AddPackage(pid, "tool", "1.0", now)
	reg.AddPackage(pid, "other", "1.0", now)

	pkgs, err := cat.ListVersions(context.Background(), "group/repo", Filter{Name: "tool"}, 0)
	require.NoError(t, err)
	require.Len(t, pkgs, 2)
	assert.Equal(t, "2.0", pkgs[0].Version, "server order is kept")
	assert.Equal(t, "1.0", pkgs[1].Version)
}

func TestListVersions_UnknownProject(t *testing.T) {
	cat, _ := newCatalog(t)

	_, err := cat.ListVersions(context.Background(), "group/nope", Filter{}, 0)
	var resErr *core.ResolutionError
	assert.True(t, errors.As(err, &resErr))
}

func TestListVersions_PagesAcrossResolution(t *testing.T) {
	cat, reg := newCatalog(t)
	for i := range 150 {
		reg.AddPackage(pid, "tool", "1."+string(rune('a'+i%26)), time.Now())
	}

	pkgs, err := cat.ListVersions(context.Background(), "group/repo", Filter{}, 0)
	require.NoError(t, err)
	assert.Len(t, pkgs, 150)
	assert.Equal(t, 1, reg.CountRequests("GET /projects?"), "project resolved once")
	assert.Equal(t, 2, reg.CountRequests("GET /projects/7/packages?"), "short second page ends the walk")
}

func TestLatest(t *testing.T) {
	cat, reg := newCatalog(t)
	now := time.Now()
	reg.AddPackage(pid, "tool-extra", "9.0", now)
	reg.AddPackage(pid, "tool", "2.0", now)
	reg.AddPackage(pid, "tool", "1.0", now)

	pkg, err := cat.Latest(context.Background(), "group/repo", "tool")
	require.NoError(t, err)
	require.NotNil(t, pkg)
	assert.Equal(t, "2.0", pkg.Version, "substring matches are skipped")
	assert.Equal(t, 1, reg.CountRequests("GET /projects/7/packages?"))
}

func TestLatest_None(t *testing.T) {
	cat, _ := newCatalog(t)

	pkg, err := cat.Latest(context.Background(), "group/repo", "tool")
	require.NoError(t, err)
	assert.Nil(t, pkg)
}

func TestListNames(t *testing.T) {
	cat, reg := newCatalog(t)
	now := time.Now()
	reg.AddPackage(pid, "zeta", "1.0", now)
	reg.AddPackage(pid, "alpha", "2.0", now)
	reg.AddPackage(pid, "zeta", "0.9", now)
	reg.AddPackage(pid, "alpha", "1.0", now)

	names, err := cat.ListNames(context.Background(), "group/repo")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, names)
}

func TestFind(t *testing.T) {
	cat, reg := newCatalog(t)
	now := time.Now()
	reg.AddPackage(pid, "tool", "1.10", now)
	want := reg.AddPackage(pid, "tool", "1.1", now)

	pkg, err := cat.Find(context.Background(), "group/repo", "tool", "1.1")
	require.NoError(t, err)
	assert.Equal(t, want.ID, pkg.ID)

	_, err = cat.Find(context.Background(), "group/repo", "tool", "3.0")
	assert.True(t, errors.Is(err, core.ErrNotFound))
	assert.True(t, IsNotFound(err))
}

func TestFind_Latest(t *testing.T) {
	cat, reg := newCatalog(t)
	want := reg.AddPackage(pid, "tool", "2.0", time.Now())
	reg.AddPackage(pid, "tool", "1.0", time.Now())

	pkg, err := cat.Find(context.Background(), "group/repo", "tool", LatestVersion)
	require.NoError(t, err)
	assert.Equal(t, want.ID, pkg.ID)
}

func TestFind_MissingArguments(t *testing.T) {
	cat, reg := newCatalog(t)

	_, err := cat.Find(context.Background(), "group/repo", "tool", "")
	var argErr *core.ArgumentError
	assert.True(t, errors.As(err, &argErr))
	assert.Empty(t, reg.Requests())
}

func TestFiles_KeepsNewestDuplicate(t *testing.T) {
	cat, reg := newCatalog(t)
	pkg := reg.AddPackage(pid, "tool", "1.0", time.Now())
	reg.AddFile(pid, pkg, "tool.tar.gz", []byte("old"))
	reg.AddFile(pid, pkg, "README", []byte("readme"))
	newest := reg.AddFile(pid, pkg, "tool.tar.gz", []byte("new"))

	got, files, err := cat.Files(context.Background(), "group/repo", "tool", "1.0")
	require.NoError(t, err)
	assert.Equal(t, pkg.ID, got.ID)
	require.Len(t, files, 2)
	assert.Equal(t, "README", files[0].FileName)
	assert.Equal(t, newest.ID, files[1].ID)
	assert.Equal(t, registrytest.Checksum([]byte("new")), files[1].FileSHA256)
}

func TestDelete(t *testing.T) {
	cat, reg := newCatalog(t)
	pkg := reg.AddPackage(pid, "tool", "1.0", time.Now())

	require.NoError(t, cat.Delete(context.Background(), "group/repo", pkg))
	assert.Equal(t, []int64{pkg.ID}, reg.Deleted())
}

func TestDelete_Failure(t *testing.T) {
	cat, reg := newCatalog(t)
	pkg := reg.AddPackage(pid, "tool", "1.0", time.Now())
	reg.FailOn("DELETE ", http.StatusForbidden)

	err := cat.Delete(context.Background(), "group/repo", pkg)
	var httpErr *client.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusForbidden, httpErr.StatusCode)
	assert.Empty(t, reg.Deleted())
}
