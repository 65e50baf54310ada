package core

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a package, version or file is not found.
var ErrNotFound = errors.New("not found")

// ResolutionError is returned when no visible project matches a reference.
type ResolutionError struct {
	Ref string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("project %q not found among accessible projects", e.Ref)
}

// IntegrityError reports a checksum mismatch between a file and the
// registry's metadata.
type IntegrityError struct {
	File     string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s: checksum mismatch: expected %s, got %s", e.File, e.Expected, e.Actual)
}

// PolicyError reports an invalid retention configuration.
type PolicyError struct {
	Field  string
	Reason string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ArgumentError reports missing or malformed command arguments.
type ArgumentError struct {
	Msg string
}

func (e *ArgumentError) Error() string {
	return e.Msg
}

// UnsupportedFormatError is returned for archive paths whose extension has
// no registered format.
type UnsupportedFormatError struct {
	Path string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported archive format: %s", e.Path)
}

// NotFoundError wraps ErrNotFound with the package coordinates.
type NotFoundError struct {
	Name    string
	Version string
	File    string
}

func (e *NotFoundError) Error() string {
	switch {
	case e.File != "":
		return fmt.Sprintf("package %s version %s has no file %s", e.Name, e.Version, e.File)
	case e.Version != "":
		return fmt.Sprintf("package %s version %s not found", e.Name, e.Version)
	default:
		return fmt.Sprintf("package %s not found", e.Name)
	}
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// kinder is implemented by errors outside this package that carry their own
// prefix, such as client.HTTPError.
type kinder interface {
	Kind() string
}

// Kind returns the prefix used when printing err.
func Kind(err error) string {
	var (
		resolution  *ResolutionError
		integrity   *IntegrityError
		policy      *PolicyError
		argument    *ArgumentError
		unsupported *UnsupportedFormatError
		notFound    *NotFoundError
		k           kinder
	)
	switch {
	case errors.As(err, &integrity):
		return "integrity error"
	case errors.As(err, &resolution):
		return "resolution error"
	case errors.As(err, &policy):
		return "policy error"
	case errors.As(err, &argument):
		return "argument error"
	case errors.As(err, &unsupported):
		return "unsupported format"
	case errors.As(err, &notFound):
		return "not found"
	case errors.As(err, &k):
		return k.Kind()
	default:
		return "error"
	}
}
