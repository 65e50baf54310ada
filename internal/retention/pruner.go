package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/git-pkgs/genpkg/internal/catalog"
	"github.com/git-pkgs/genpkg/internal/core"
)

// VersionsMaxPages bounds the version listing of one package.
const VersionsMaxPages = 1000

// Catalog is the package listing and deletion surface a Pruner needs.
type Catalog interface {
	ListNames(ctx context.Context, ref string) ([]string, error)
	ListVersions(ctx context.Context, ref string, f catalog.Filter, maxPages int) ([]core.Package, error)
	Delete(ctx context.Context, ref string, pkg core.Package) error
}

// Summary is the outcome of pruning one package. WouldDelete counts the
// versions the policy marks for deletion, Deleted those actually deleted.
type Summary struct {
	Package     string     `json:"package" yaml:"package"`
	Evaluated   int        `json:"evaluated" yaml:"evaluated"`
	WouldDelete int        `json:"would_delete" yaml:"would_delete"`
	Deleted     int        `json:"deleted" yaml:"deleted"`
	DryRun      bool       `json:"dry_run" yaml:"dry_run"`
	Decisions   []Decision `json:"decisions" yaml:"decisions"`
	Err         error      `json:"-" yaml:"-"`
}

// Pruner applies a Policy to the packages of a project.
type Pruner struct {
	catalog Catalog
	policy  *Policy
	confirm bool
	now     func() time.Time
	logger  zerolog.Logger
}

// Option configures a Pruner.
type Option func(*Pruner)

// WithConfirm enables deletions. Without it Prune is a dry run.
func WithConfirm(confirm bool) Option {
	return func(p *Pruner) {
		p.confirm = confirm
	}
}

// WithClock sets the time source used for age checks.
func WithClock(now func() time.Time) Option {
	return func(p *Pruner) {
		p.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pruner) {
		p.logger = l
	}
}

// NewPruner creates a Pruner.
func NewPruner(cat Catalog, policy *Policy, opts ...Option) *Pruner {
	p := &Pruner{catalog: cat, policy: policy, now: time.Now, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Prune evaluates each named package, or every package of the project when
// names is empty, one after another. Decisions are the same whether or not
// deletions are confirmed. A failure stops work on that package only; the
// returned error joins every per-package failure.
func (p *Pruner) Prune(ctx context.Context, ref string, names []string) ([]Summary, error) {
	if len(names) == 0 {
		var err error
		names, err = p.catalog.ListNames(ctx, ref)
		if err != nil {
			return nil, err
		}
	}

	now := p.now()
	summaries := make([]Summary, 0, len(names))
	var errs []error
	for _, name := range names {
		s := p.prunePackage(ctx, ref, name, now)
		if s.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, s.Err))
		}
		summaries = append(summaries, s)
	}
	return summaries, errors.Join(errs...)
}

func (p *Pruner) prunePackage(ctx context.Context, ref, name string, now time.Time) Summary {
	s := Summary{Package: name, DryRun: !p.confirm}

	listed, err := p.catalog.ListVersions(ctx, ref, catalog.Filter{Name: name}, VersionsMaxPages)
	if err != nil {
		s.Err = err
		return s
	}
	// The registry filters names by substring.
	versions := listed[:0:0]
	for _, v := range listed {
		if v.Name == name {
			versions = append(versions, v)
		}
	}

	s.Decisions = p.policy.Evaluate(versions, now)
	s.Evaluated = len(s.Decisions)
	s.WouldDelete = len(s.Deletions())

	for _, d := range s.Decisions {
		switch {
		case d.Action == Retain:
			p.logger.Info().Str("package", name).Str("version", d.Package.Version).
				Str("reason", string(d.Reason)).Msg("retain")
		case !p.confirm:
			p.logger.Info().Str("package", name).Str("version", d.Package.Version).Msg("would delete")
		default:
			if err := p.catalog.Delete(ctx, ref, d.Package); err != nil {
				s.Err = err
				return s
			}
			s.Deleted++
		}
	}
	return s
}

// Deletions returns the versions a summary's decisions delete.
func (s Summary) Deletions() []core.Package {
	var out []core.Package
	for _, d := range s.Decisions {
		if d.Action == Delete {
			out = append(out, d.Package)
		}
	}
	return out
}
