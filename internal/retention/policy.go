// Package retention decides which package versions a prune removes and
// carries out the deletions.
package retention

import (
	"fmt"
	"regexp"
	"time"

	"github.com/git-pkgs/genpkg/internal/core"
)

// Action is the outcome of evaluating one version.
type Action string

const (
	Retain Action = "retain"
	Delete Action = "delete"
)

// Reason explains a retained version. Deleted versions have no reason.
type Reason string

const (
	ReasonMalformed Reason = "malformed-timestamp"
	ReasonTooYoung  Reason = "too-young"
	ReasonProtected Reason = "protected"
	ReasonLatest    Reason = "latest"
)

// Decision is the verdict for one version. Pattern is set when the
// version was retained by a protection pattern.
type Decision struct {
	Package core.Package `json:"package" yaml:"package"`
	Action  Action       `json:"action" yaml:"action"`
	Reason  Reason       `json:"reason,omitempty" yaml:"reason,omitempty"`
	Pattern string       `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

// Policy holds validated retention settings. Protected patterns are tried
// in order and the first match wins.
type Policy struct {
	MaxAgeDays   int
	Protected    []*regexp.Regexp
	RetainLatest bool
}

// NewPolicy validates its arguments and compiles the protection patterns.
func NewPolicy(maxAgeDays int, protected []string, retainLatest bool) (*Policy, error) {
	if maxAgeDays <= 0 {
		return nil, &core.PolicyError{Field: "max age", Reason: fmt.Sprintf("must be a positive number of days, got %d", maxAgeDays)}
	}
	p := &Policy{MaxAgeDays: maxAgeDays, RetainLatest: retainLatest}
	for _, pattern := range protected {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, &core.PolicyError{Field: "protected version pattern", Reason: err.Error()}
		}
		p.Protected = append(p.Protected, re)
	}
	return p, nil
}

// Cutoff returns the creation time before which a version may be deleted.
func (p *Policy) Cutoff(now time.Time) time.Time {
	return now.Add(-time.Duration(p.MaxAgeDays) * 24 * time.Hour)
}

// Evaluate returns one decision per version, in input order. versions must
// belong to a single package and be ordered newest first. Each version
// takes the first rule that applies:
//
//  1. unparseable creation time: retain
//  2. created at or after the cutoff: retain
//  3. version matches a protection pattern: retain
//  4. retain-latest is set and no earlier version reached this rule: retain
//  5. otherwise: delete
//
// Protection is checked before latest so that a protected version never
// uses up the latest exemption.
func (p *Policy) Evaluate(versions []core.Package, now time.Time) []Decision {
	cutoff := p.Cutoff(now)
	latestTaken := false

	decisions := make([]Decision, 0, len(versions))
	for _, v := range versions {
		d := Decision{Package: v, Action: Retain}

		created, err := v.Created()
		switch {
		case err != nil:
			d.Reason = ReasonMalformed
		case !created.Before(cutoff):
			d.Reason = ReasonTooYoung
		default:
			if re := p.protectedBy(v.Version); re != nil {
				d.Reason = ReasonProtected
				d.Pattern = re.String()
			} else if p.RetainLatest && !latestTaken {
				latestTaken = true
				d.Reason = ReasonLatest
			} else {
				d.Action = Delete
			}
		}
		decisions = append(decisions, d)
	}
	return decisions
}

func (p *Policy) protectedBy(version string) *regexp.Regexp {
	for _, re := range p.Protected {
		if re.MatchString(version) {
			return re
		}
	}
	return nil
}
