package main

import (
	"context"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/git-pkgs/genpkg"
	"github.com/git-pkgs/genpkg/client"
	"github.com/git-pkgs/genpkg/internal/config"
	"github.com/git-pkgs/genpkg/internal/core"
	"github.com/git-pkgs/genpkg/internal/logging"
	"github.com/git-pkgs/genpkg/internal/output"
)

// app holds the state of one invocation. The registry is built once the
// flags are parsed.
type app struct {
	stdout io.Writer
	stderr io.Writer

	v          *viper.Viper
	configFile string
	verbose    int

	cfg     *config.Config
	logger  zerolog.Logger
	printer *output.Printer
	reg     *genpkg.Registry
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout:  stdout,
		stderr:  stderr,
		v:       config.New(),
		logger:  zerolog.Nop(),
		printer: output.New(stdout, stderr, config.FormatText),
	}
}

// setup resolves the configuration from cmd's flags and builds the
// registry every command uses.
func (a *app) setup(cmd *cobra.Command) error {
	fs := cmd.Flags()
	if err := config.BindFlags(a.v, fs); err != nil {
		return err
	}
	cfg, err := config.Load(a.v, a.configFile, fs)
	if err != nil {
		return &core.ArgumentError{Msg: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.printer = output.New(a.stdout, a.stderr, cfg.Format)

	a.logger, err = logging.New(a.stderr, logging.Verbosity(cfg.LogLevel, a.verbose))
	if err != nil {
		return &core.ArgumentError{Msg: err.Error()}
	}

	c := client.NewClient(
		client.WithBaseURL(cfg.APIURL),
		client.WithJobToken(cfg.JobToken),
		client.WithPrivateToken(cfg.PrivateToken),
		client.WithTimeout(cfg.APITimeout),
		client.WithTransferTimeout(cfg.TransferTimeout),
		client.WithUserAgent("genpkg/"+version),
		client.WithLogger(a.logger),
	)
	a.reg = genpkg.New(c,
		genpkg.WithLogger(a.logger),
		genpkg.WithConfirm(cfg.Confirm),
		genpkg.WithKeepTemp(cfg.KeepTemp),
		genpkg.WithBreakerThreshold(int64(cfg.Prune.BreakerThreshold)),
	)
	a.logger.Debug().Str("api_url", cfg.APIURL).Bool("confirm", cfg.Confirm).Msg("configured")
	return nil
}

// run executes one invocation and returns the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := newApp(stdout, stderr)
	root, err := newRootCmd(a)
	if err == nil {
		root.SetArgs(args)
		root.SetOut(stdout)
		root.SetErr(stderr)
		err = root.ExecuteContext(ctx)
	}
	if err != nil {
		a.printer.Error(core.Kind(err), err)
		return 1
	}
	return 0
}
