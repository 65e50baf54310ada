package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/git-pkgs/genpkg"
)

type projectResult struct {
	Project string `json:"project" yaml:"project"`
	ID      int64  `json:"id" yaml:"id"`
}

type infoResult struct {
	Package genpkg.Package       `json:"package" yaml:"package"`
	PURL    string               `json:"purl" yaml:"purl"`
	Files   []genpkg.PackageFile `json:"files" yaml:"files"`
}

type archiveResult struct {
	Source  string    `json:"source" yaml:"source"`
	Archive string    `json:"archive" yaml:"archive"`
	Mtime   time.Time `json:"mtime,omitzero" yaml:"mtime,omitempty"`
}

func runProjectID(a *app, cmd *cobra.Command, args []string) error {
	id, err := a.reg.ProjectID(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return a.printer.Line(strconv.FormatInt(id, 10), projectResult{Project: args[0], ID: id})
}

func runPackages(a *app, cmd *cobra.Command, args []string) error {
	names, err := a.reg.Names(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	rows := make([][]string, len(names))
	for i, n := range names {
		rows[i] = []string{n}
	}
	return a.printer.Table(nil, rows, names)
}

func runVersions(a *app, cmd *cobra.Command, args []string) error {
	var f genpkg.Filter
	if len(args) > 1 {
		f.Name = args[1]
	}
	if len(args) > 2 {
		f.Version = args[2]
	}
	maxPages, err := cmd.Flags().GetInt("max-pages")
	if err != nil {
		return err
	}
	pkgs, err := a.reg.Versions(cmd.Context(), args[0], f, maxPages)
	if err != nil {
		return err
	}
	rows := make([][]string, len(pkgs))
	for i, p := range pkgs {
		rows[i] = []string{p.Name, p.Version, p.CreatedAt, strconv.FormatInt(p.ID, 10)}
	}
	return a.printer.Table([]string{"NAME", "VERSION", "CREATED", "ID"}, rows, pkgs)
}

func runLatest(a *app, cmd *cobra.Command, args []string) error {
	pkg, err := a.reg.Latest(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}
	if pkg == nil {
		return &genpkg.NotFoundError{Name: args[1]}
	}
	return a.printer.Line(pkg.Version, pkg)
}

func runInfo(a *app, cmd *cobra.Command, args []string) error {
	pkg, files, err := a.reg.Files(cmd.Context(), args[0], args[1], args[2])
	if err != nil {
		return err
	}
	rows := make([][]string, len(files))
	for i, f := range files {
		rows[i] = []string{f.FileName, strconv.FormatInt(f.Size, 10), f.FileSHA256, f.CreatedAt}
	}
	res := infoResult{Package: *pkg, PURL: a.reg.PURL(pkg.Name, pkg.Version), Files: files}
	return a.printer.Table([]string{"FILE", "SIZE", "SHA256", "CREATED"}, rows, res)
}

func runFetch(a *app, cmd *cobra.Command, args []string) error {
	dest, err := cmd.Flags().GetString("dest")
	if err != nil {
		return err
	}
	only, err := cmd.Flags().GetStringArray("file")
	if err != nil {
		return err
	}
	fetched, fetchErr := a.reg.Fetch(cmd.Context(), args[0], args[1], args[2], dest, only...)
	if len(fetched) > 0 {
		if err := printFetched(a, fetched); err != nil {
			return err
		}
	}
	return fetchErr
}

func printFetched(a *app, fetched []genpkg.Fetched) error {
	rows := make([][]string, len(fetched))
	for i, f := range fetched {
		rows[i] = []string{f.Path, strconv.FormatInt(f.Size, 10), f.Digest.String()}
	}
	return a.printer.Table([]string{"PATH", "SIZE", "DIGEST"}, rows, fetched)
}

func runInstall(a *app, cmd *cobra.Command, args []string) error {
	installed, err := a.reg.Install(cmd.Context(), args[0], args[1], args[2], args[3])
	if err != nil {
		return err
	}
	rows := make([][]string, len(installed))
	for i, p := range installed {
		rows[i] = []string{p}
	}
	return a.printer.Table(nil, rows, installed)
}

func runArchive(a *app, cmd *cobra.Command, args []string) error {
	src, dst := args[0], args[1]
	extract, err := cmd.Flags().GetBool("extract")
	if err != nil {
		return err
	}
	if extract {
		if err := genpkg.ExtractArchive(src, dst); err != nil {
			return err
		}
		return a.printer.Line(dst, archiveResult{Source: dst, Archive: src})
	}

	if !genpkg.IsArchive(dst) {
		return &genpkg.UnsupportedFormatError{Path: dst}
	}
	mtime := genpkg.SourceDate(cmd.Context(), src)
	a.logger.Info().Str("source", src).Time("mtime", mtime).Msg("creating archive")
	if err := genpkg.CreateArchive(dst, src, mtime); err != nil {
		return err
	}
	return a.printer.Line(dst, archiveResult{Source: src, Archive: dst, Mtime: mtime})
}

func runUpload(a *app, cmd *cobra.Command, args []string) error {
	uploaded, uploadErr := a.reg.Upload(cmd.Context(), args[0], args[1], args[2], args[3:])
	if a.printer.Structured() {
		if len(uploaded) > 0 {
			if err := a.printer.Value(uploaded); err != nil {
				return err
			}
		}
		return uploadErr
	}
	for _, u := range uploaded {
		if u.DryRun {
			a.printer.DryRun("would upload %s to %s (%s)", u.Path, u.URL, u.Digest)
			continue
		}
		if err := a.printer.Line(fmt.Sprintf("uploaded %s (%s)", u.URL, u.Digest), nil); err != nil {
			return err
		}
	}
	return uploadErr
}

func runPrune(a *app, cmd *cobra.Command, args []string) error {
	policy, err := genpkg.NewPolicy(a.cfg.Prune.MaxAgeDays, a.cfg.Prune.Protect, a.cfg.Prune.RetainLatest)
	if err != nil {
		return err
	}
	summaries, pruneErr := a.reg.Prune(cmd.Context(), args[0], policy, args[1:]...)
	if a.printer.Structured() {
		if summaries != nil {
			if err := a.printer.Value(summaries); err != nil {
				return err
			}
		}
		return pruneErr
	}
	for _, s := range summaries {
		if err := printSummary(a, s); err != nil {
			return err
		}
	}
	return pruneErr
}

// printSummary prints each decision of a package followed by its counts.
// On a failed delete only the versions deleted before it are reported.
func printSummary(a *app, s genpkg.Summary) error {
	deletes := 0
	for _, d := range s.Decisions {
		switch {
		case d.Action == genpkg.Retain:
			reason := string(d.Reason)
			if d.Pattern != "" {
				reason += " " + d.Pattern
			}
			if err := a.printer.Line(fmt.Sprintf("retained %s (%s)", d.Package, reason), nil); err != nil {
				return err
			}
		case s.DryRun:
			a.printer.DryRun("would delete %s", d.Package)
		case deletes < s.Deleted:
			if err := a.printer.Line("deleted "+d.Package.String(), nil); err != nil {
				return err
			}
			deletes++
		}
	}
	if s.DryRun {
		a.printer.DryRun("%s: would delete %d of %d", s.Package, s.WouldDelete, s.Evaluated)
		return nil
	}
	return a.printer.Line(fmt.Sprintf("%s: deleted %d of %d", s.Package, s.Deleted, s.Evaluated), nil)
}
