package core

import (
	"fmt"

	"github.com/git-pkgs/purl"
	packageurl "github.com/package-url/packageurl-go"
)

// ParsePackageURL parses a generic package URL such as
// pkg:generic/tool@1.2.0 into a package name and version.
// The version is empty when the PURL has none.
func ParsePackageURL(s string) (name, version string, err error) {
	p, err := purl.Parse(s)
	if err != nil {
		return "", "", &ArgumentError{Msg: fmt.Sprintf("invalid package URL %q: %v", s, err)}
	}
	if p.Type != packageurl.TypeGeneric {
		return "", "", &ArgumentError{Msg: fmt.Sprintf("package URL %q: type %q is not %q", s, p.Type, packageurl.TypeGeneric)}
	}
	name = p.Name
	if p.Namespace != "" {
		name = p.Namespace + "/" + p.Name
	}
	return name, p.Version, nil
}

// PackageURL builds the generic package URL for a package version. When
// repositoryURL is set it is recorded as the repository_url qualifier.
func PackageURL(name, version, repositoryURL string) string {
	var qualifiers packageurl.Qualifiers
	if repositoryURL != "" {
		qualifiers = packageurl.QualifiersFromMap(map[string]string{"repository_url": repositoryURL})
	}
	return packageurl.NewPackageURL(packageurl.TypeGeneric, "", name, version, qualifiers, "").ToString()
}

// IsPackageURL reports whether s looks like a package URL.
func IsPackageURL(s string) bool {
	return len(s) > 4 && s[:4] == "pkg:"
}
