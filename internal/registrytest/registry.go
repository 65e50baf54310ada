// Package registrytest provides an in-memory registry served over httptest
// for exercising the client against the real wire format.
package registrytest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/git-pkgs/genpkg/internal/core"
)

// APIPrefix is the path under which the fake serves its API.
const APIPrefix = "/api/v4"

// Registry is a fake package registry. Packages are listed in insertion
// order, so tests add them newest version first.
type Registry struct {
	server *httptest.Server

	mu       sync.Mutex
	projects []core.Project
	packages map[int64][]core.Package
	files    map[int64][]core.PackageFile
	blobs    map[string][]byte
	failures map[string]int
	requests []string
	deleted  []int64
	nextID   int64

	// TamperUploads makes PUT responses report a checksum that does not
	// match the received bytes.
	TamperUploads bool
}

// New starts a fake registry that is closed when the test ends.
func New(t testing.TB) *Registry {
	t.Helper()
	r := &Registry{
		packages: make(map[int64][]core.Package),
		files:    make(map[int64][]core.PackageFile),
		blobs:    make(map[string][]byte),
		failures: make(map[string]int),
		nextID:   1000,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /projects", r.listProjects)
	mux.HandleFunc("GET /projects/{pid}/packages", r.listPackages)
	mux.HandleFunc("DELETE /projects/{pid}/packages/{pkg}", r.deletePackage)
	mux.HandleFunc("GET /projects/{pid}/packages/{pkg}/package_files", r.listFiles)
	mux.HandleFunc("GET /projects/{pid}/packages/generic/{name}/{version}/{file}", r.download)
	mux.HandleFunc("PUT /projects/{pid}/packages/generic/{name}/{version}/{file}", r.upload)

	r.server = httptest.NewServer(http.StripPrefix(APIPrefix, r.record(mux)))
	t.Cleanup(r.server.Close)
	return r
}

// URL returns the API root of the fake.
func (r *Registry) URL() string {
	return r.server.URL + APIPrefix
}

// AddProject registers a project visible to the caller.
func (r *Registry) AddProject(id int64, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projects = append(r.projects, core.Project{ID: id, Name: path[strings.LastIndex(path, "/")+1:], PathWithNamespace: path})
}

// AddPackage adds a package version created at the given time.
func (r *Registry) AddPackage(projectID int64, name, version string, created time.Time) core.Package {
	return r.AddPackageRaw(projectID, name, version, created.UTC().Format(time.RFC3339Nano))
}

// AddPackageRaw adds a package version with a literal created_at value.
func (r *Registry) AddPackageRaw(projectID int64, name, version, createdAt string) core.Package {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addPackageLocked(projectID, name, version, createdAt)
}

func (r *Registry) addPackageLocked(projectID int64, name, version, createdAt string) core.Package {
	r.nextID++
	pkg := core.Package{ID: r.nextID, CreatedAt: createdAt, Name: name, Version: version}
	r.packages[projectID] = append(r.packages[projectID], pkg)
	return pkg
}

// AddFile stores content as a file of pkg with its true checksum.
func (r *Registry) AddFile(projectID int64, pkg core.Package, fileName string, content []byte) core.PackageFile {
	return r.AddFileWithChecksum(projectID, pkg, fileName, content, Checksum(content))
}

// AddFileWithChecksum stores content but reports sha as its checksum.
func (r *Registry) AddFileWithChecksum(projectID int64, pkg core.Package, fileName string, content []byte, sha string) core.PackageFile {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addFileLocked(projectID, pkg, fileName, content, sha)
}

func (r *Registry) addFileLocked(projectID int64, pkg core.Package, fileName string, content []byte, sha string) core.PackageFile {
	r.nextID++
	f := core.PackageFile{
		ID:         r.nextID,
		PackageID:  pkg.ID,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
		Size:       int64(len(content)),
		FileName:   fileName,
		FileSHA256: sha,
	}
	r.files[pkg.ID] = append(r.files[pkg.ID], f)
	r.blobs[blobKey(projectID, pkg.Name, pkg.Version, fileName)] = content
	return f
}

// FailOn makes requests whose method and path start with prefix, e.g.
// "DELETE /projects/1/packages/1002", answer with status.
func (r *Registry) FailOn(prefix string, status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[prefix] = status
}

// Requests returns every request received as "METHOD /path?query".
func (r *Registry) Requests() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.requests...)
}

// CountRequests counts requests whose "METHOD /path" starts with prefix.
func (r *Registry) CountRequests(prefix string) int {
	n := 0
	for _, req := range r.Requests() {
		if strings.HasPrefix(req, prefix) {
			n++
		}
	}
	return n
}

// Deleted returns the ids of deleted packages in deletion order.
func (r *Registry) Deleted() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.deleted...)
}

// Blob returns the stored content of a generic file.
func (r *Registry) Blob(projectID int64, name, version, file string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.blobs[blobKey(projectID, name, version, file)]
	return b, ok
}

// Checksum returns the hex sha256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func blobKey(projectID int64, name, version, file string) string {
	return strconv.FormatInt(projectID, 10) + "/" + name + "/" + version + "/" + file
}

func (r *Registry) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		line := req.Method + " " + req.URL.Path
		if req.URL.RawQuery != "" {
			line += "?" + req.URL.RawQuery
		}

		r.mu.Lock()
		r.requests = append(r.requests, line)
		status := 0
		for prefix, s := range r.failures {
			if strings.HasPrefix(line, prefix) {
				status = s
			}
		}
		r.mu.Unlock()

		if status != 0 {
			http.Error(w, `{"message":"injected failure"}`, status)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (r *Registry) projectID(w http.ResponseWriter, req *http.Request) (int64, bool) {
	pid, err := strconv.ParseInt(req.PathValue("pid"), 10, 64)
	if err != nil {
		http.Error(w, `{"message":"404 Project Not Found"}`, http.StatusNotFound)
		return 0, false
	}
	return pid, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (r *Registry) listProjects(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := req.URL.Query()
	writeJSON(w, paginate(r.projects, q.Get("page"), q.Get("per_page")))
}

func (r *Registry) listPackages(w http.ResponseWriter, req *http.Request) {
	pid, ok := r.projectID(w, req)
	if !ok {
		return
	}
	q := req.URL.Query()
	name, version := q.Get("package_name"), q.Get("package_version")

	r.mu.Lock()
	var matched []core.Package
	for _, p := range r.packages[pid] {
		if strings.Contains(p.Name, name) && strings.Contains(p.Version, version) {
			matched = append(matched, p)
		}
	}
	r.mu.Unlock()

	writeJSON(w, paginate(matched, q.Get("page"), q.Get("per_page")))
}

func (r *Registry) listFiles(w http.ResponseWriter, req *http.Request) {
	pkgID, err := strconv.ParseInt(req.PathValue("pkg"), 10, 64)
	if err != nil {
		http.NotFound(w, req)
		return
	}
	r.mu.Lock()
	files := append([]core.PackageFile(nil), r.files[pkgID]...)
	r.mu.Unlock()

	writeJSON(w, paginate(files, req.URL.Query().Get("page"), req.URL.Query().Get("per_page")))
}

func paginate[T any](items []T, pageParam, sizeParam string) []T {
	page, _ := strconv.Atoi(pageParam)
	size, _ := strconv.Atoi(sizeParam)
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	start := (page - 1) * size
	if start >= len(items) {
		return []T{}
	}
	end := min(start+size, len(items))
	return items[start:end]
}

func (r *Registry) deletePackage(w http.ResponseWriter, req *http.Request) {
	pid, ok := r.projectID(w, req)
	if !ok {
		return
	}
	pkgID, err := strconv.ParseInt(req.PathValue("pkg"), 10, 64)
	if err != nil {
		http.NotFound(w, req)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	pkgs := r.packages[pid]
	for i, p := range pkgs {
		if p.ID == pkgID {
			r.packages[pid] = append(pkgs[:i:i], pkgs[i+1:]...)
			r.deleted = append(r.deleted, pkgID)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	http.Error(w, `{"message":"404 Package Not Found"}`, http.StatusNotFound)
}

func (r *Registry) download(w http.ResponseWriter, req *http.Request) {
	pid, ok := r.projectID(w, req)
	if !ok {
		return
	}
	blob, ok := r.Blob(pid, req.PathValue("name"), req.PathValue("version"), req.PathValue("file"))
	if !ok {
		http.Error(w, `{"message":"404 Not Found"}`, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(blob)))
	_, _ = w.Write(blob)
}

func (r *Registry) upload(w http.ResponseWriter, req *http.Request) {
	pid, ok := r.projectID(w, req)
	if !ok {
		return
	}
	content, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	name, version, file := req.PathValue("name"), req.PathValue("version"), req.PathValue("file")

	r.mu.Lock()
	var pkg core.Package
	found := false
	for _, p := range r.packages[pid] {
		if p.Name == name && p.Version == version {
			pkg, found = p, true
			break
		}
	}
	if !found {
		pkg = r.addPackageLocked(pid, name, version, time.Now().UTC().Format(time.RFC3339Nano))
	}
	sha := Checksum(content)
	if r.TamperUploads {
		sha = Checksum(append(content, '!'))
	}
	pf := r.addFileLocked(pid, pkg, file, content, sha)
	r.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if req.URL.Query().Get("select") == "package_file" {
		_ = json.NewEncoder(w).Encode(pf)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "201 Created"})
}
