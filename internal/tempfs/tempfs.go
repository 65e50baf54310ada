// Package tempfs tracks temporary directories so they can be removed on
// every exit path.
package tempfs

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// Registry records temporary directories created during a command.
// It is not safe for concurrent use.
type Registry struct {
	keep   bool
	dirs   []string
	logger zerolog.Logger
}

// New returns a registry. With keep set, Cleanup leaves directories in
// place and logs their location.
func New(keep bool, logger zerolog.Logger) *Registry {
	return &Registry{keep: keep, logger: logger}
}

// MkdirTemp creates and records a temporary directory.
func (r *Registry) MkdirTemp(pattern string) (string, error) {
	dir, err := os.MkdirTemp("", pattern)
	if err != nil {
		return "", fmt.Errorf("creating temporary directory: %w", err)
	}
	r.dirs = append(r.dirs, dir)
	return dir, nil
}

// Dirs returns the directories recorded so far.
func (r *Registry) Dirs() []string {
	return append([]string(nil), r.dirs...)
}

// Cleanup removes every recorded directory, newest first, and forgets them.
func (r *Registry) Cleanup() error {
	dirs := r.dirs
	r.dirs = nil

	if r.keep {
		for _, d := range dirs {
			r.logger.Warn().Str("dir", d).Msg("keeping temporary directory")
		}
		return nil
	}

	var errs []error
	for i := len(dirs) - 1; i >= 0; i-- {
		if err := os.RemoveAll(dirs[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
