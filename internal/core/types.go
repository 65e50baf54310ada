// Package core provides the domain types and error taxonomy shared by every component.
package core

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Project is an entry of the registry's project listing.
type Project struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	PathWithNamespace string `json:"path_with_namespace"`
}

// Package is a single version of a named package in a project.
// CreatedAt is kept as the registry sent it; use Created to parse it.
type Package struct {
	ID        int64  `json:"id" yaml:"id"`
	CreatedAt string `json:"created_at" yaml:"created_at"`
	Name      string `json:"name" yaml:"name"`
	Version   string `json:"version" yaml:"version"`
}

// Validate rejects records lacking any of id, created_at, name or version.
func (p Package) Validate() error {
	var missing []string
	if p.ID == 0 {
		missing = append(missing, "id")
	}
	if p.CreatedAt == "" {
		missing = append(missing, "created_at")
	}
	if p.Name == "" {
		missing = append(missing, "name")
	}
	if p.Version == "" {
		missing = append(missing, "version")
	}
	if len(missing) > 0 {
		return fmt.Errorf("package record missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Created parses CreatedAt. A record with a malformed timestamp is still a
// valid record; callers decide what an unknown age means.
func (p Package) Created() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, p.CreatedAt)
}

func (p Package) String() string {
	return p.Name + "@" + p.Version
}

// PackageFile is one file stored under a package version.
type PackageFile struct {
	ID         int64  `json:"id" yaml:"id"`
	PackageID  int64  `json:"package_id" yaml:"package_id"`
	CreatedAt  string `json:"created_at" yaml:"created_at"`
	Size       int64  `json:"size" yaml:"size"`
	Version    string `json:"version,omitempty" yaml:"version,omitempty"`
	FileName   string `json:"file_name" yaml:"file_name"`
	FileSHA256 string `json:"file_sha256" yaml:"file_sha256"`
}

// Validate rejects records lacking id, file_name or a well-formed file_sha256.
func (f PackageFile) Validate() error {
	if f.ID == 0 {
		return fmt.Errorf("package file record missing id")
	}
	if f.FileName == "" {
		return fmt.Errorf("package file %d missing file_name", f.ID)
	}
	if len(f.FileSHA256) != 64 {
		return fmt.Errorf("package file %q has invalid file_sha256 %q", f.FileName, f.FileSHA256)
	}
	if _, err := hex.DecodeString(f.FileSHA256); err != nil {
		return fmt.Errorf("package file %q has invalid file_sha256 %q", f.FileName, f.FileSHA256)
	}
	return nil
}

// NormalizeRef lower-cases a project reference and strips surrounding
// whitespace and slashes.
func NormalizeRef(ref string) (string, error) {
	n := strings.ToLower(strings.Trim(strings.TrimSpace(ref), "/"))
	if n == "" {
		return "", &ArgumentError{Msg: "empty project reference"}
	}
	return n, nil
}
