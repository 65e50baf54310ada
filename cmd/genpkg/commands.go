package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/git-pkgs/genpkg/internal/core"
)

// command is one entry of the dispatch table.
type command struct {
	name    string
	aliases []string
	args    string
	short   string
	minArgs int
	maxArgs int // -1 for no limit

	// pkgArg marks commands whose second argument may be a
	// pkg:generic/NAME@VERSION package URL standing for NAME VERSION.
	pkgArg bool

	flags func(fs *pflag.FlagSet)
	run   func(a *app, cmd *cobra.Command, args []string) error
}

// commands is the fixed set of subcommands.
var commands = []command{
	{
		name: "project-id", aliases: []string{"project_id"},
		args: "PROJECT", short: "Print the numeric id of a project",
		minArgs: 1, maxArgs: 1,
		run: runProjectID,
	},
	{
		name: "packages", args: "PROJECT", short: "List the package names of a project",
		minArgs: 1, maxArgs: 1,
		run: runPackages,
	},
	{
		name: "versions", args: "PROJECT [NAME [VERSION]]", short: "List package versions, newest first",
		minArgs: 1, maxArgs: 3, pkgArg: true,
		flags: func(fs *pflag.FlagSet) {
			fs.Int("max-pages", 0, "Stop after this many pages (0 for all)")
		},
		run: runVersions,
	},
	{
		name: "latest", args: "PROJECT NAME", short: "Print the newest version of a package",
		minArgs: 2, maxArgs: 2, pkgArg: true,
		run: runLatest,
	},
	{
		name: "info", args: "PROJECT NAME VERSION", short: "List the files of a package version",
		minArgs: 3, maxArgs: 3, pkgArg: true,
		run: runInfo,
	},
	{
		name: "fetch", args: "PROJECT NAME VERSION", short: "Download and verify the files of a package version",
		minArgs: 3, maxArgs: 3, pkgArg: true,
		flags: func(fs *pflag.FlagSet) {
			fs.StringP("dest", "d", ".", "Destination directory")
			fs.StringArray("file", nil, "Fetch only this file (repeatable)")
		},
		run: runFetch,
	},
	{
		name: "install", args: "PROJECT NAME VERSION DIR", short: "Fetch a package version and unpack it into DIR",
		minArgs: 4, maxArgs: 4, pkgArg: true,
		run: runInstall,
	},
	{
		name: "archive", args: "SRC DST", short: "Create a reproducible archive of SRC, or extract one with --extract",
		minArgs: 2, maxArgs: 2,
		flags: func(fs *pflag.FlagSet) {
			fs.BoolP("extract", "x", false, "Extract the archive SRC into the directory DST")
		},
		run: runArchive,
	},
	{
		name: "upload", args: "PROJECT NAME VERSION FILE...", short: "Upload files to a package version",
		minArgs: 4, maxArgs: -1, pkgArg: true,
		run: runUpload,
	},
	{
		name: "prune", args: "PROJECT [NAME...]", short: "Delete old package versions under the retention policy",
		minArgs: 1, maxArgs: -1,
		flags: func(fs *pflag.FlagSet) {
			fs.Int("max-age-days", 30, "Only versions older than this many days are deleted")
			fs.StringArray("protect", nil, "Never delete versions matching this regular expression (repeatable)")
			fs.Bool("retain-latest", true, "Keep the newest version old enough to be deleted")
			fs.Int("breaker-threshold", 5, "Stop deleting after this many consecutive failures (0 disables)")
		},
		run: runPrune,
	},
}

// validateCommands rejects a malformed dispatch table.
func validateCommands(cmds []command) error {
	seen := make(map[string]bool)
	for _, c := range cmds {
		if c.name == "" || c.run == nil {
			return fmt.Errorf("command %q: missing name or handler", c.name)
		}
		if c.maxArgs >= 0 && c.maxArgs < c.minArgs {
			return fmt.Errorf("command %q: max args %d below min args %d", c.name, c.maxArgs, c.minArgs)
		}
		for _, n := range append([]string{c.name}, c.aliases...) {
			if seen[n] {
				return fmt.Errorf("command %q registered twice", n)
			}
			seen[n] = true
		}
	}
	return nil
}

// parseArgs expands a package URL argument and checks the argument count.
func (c command) parseArgs(args []string) ([]string, error) {
	if c.pkgArg && len(args) > 1 && core.IsPackageURL(args[1]) {
		name, version, err := core.ParsePackageURL(args[1])
		if err != nil {
			return nil, err
		}
		expanded := []string{args[0], name}
		if version != "" {
			expanded = append(expanded, version)
		}
		args = append(expanded, args[2:]...)
	}
	if len(args) < c.minArgs || (c.maxArgs >= 0 && len(args) > c.maxArgs) {
		return nil, &core.ArgumentError{Msg: fmt.Sprintf("usage: genpkg %s %s", c.name, c.args)}
	}
	for i, arg := range args {
		if strings.TrimSpace(arg) == "" {
			return nil, &core.ArgumentError{Msg: fmt.Sprintf("%s: argument %d is empty", c.name, i+1)}
		}
	}
	return args, nil
}

func (c command) build(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     c.name + " " + c.args,
		Aliases: c.aliases,
		Short:   c.short,
		Args: func(_ *cobra.Command, args []string) error {
			_, err := c.parseArgs(args)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			args, err := c.parseArgs(args)
			if err != nil {
				return err
			}
			return c.run(a, cmd, args)
		},
	}
	if c.flags != nil {
		c.flags(cmd.Flags())
	}
	return cmd
}

func newRootCmd(a *app) (*cobra.Command, error) {
	if err := validateCommands(commands); err != nil {
		return nil, err
	}

	root := &cobra.Command{
		Use:           "genpkg",
		Short:         "Resolve, fetch, upload and prune packages in a generic package registry",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.Bool("confirm", false, "Perform uploads and deletions (default is a dry run)")
	pf.Bool("keep-temp", false, "Keep temporary directories for inspection")
	pf.String("log-level", "warn", "Log level (trace, debug, info, warn, error)")
	pf.CountVarP(&a.verbose, "verbose", "v", "Raise the log level (repeatable)")
	pf.String("format", "text", "Output format: text, json or yaml")
	pf.StringVar(&a.configFile, "config", "", "YAML configuration file")
	pf.String("api-url", "https://gitlab.com/api/v4", "Registry API root ($CI_API_V4_URL)")
	pf.Duration("api-timeout", 30*time.Second, "Timeout of one API call")
	pf.Duration("transfer-timeout", 10*time.Minute, "Timeout of one upload or download")

	for _, c := range commands {
		root.AddCommand(c.build(a))
	}
	return root, nil
}
