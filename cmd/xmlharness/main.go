// Command xmlharness runs the scenario catalogue against a samples directory.
//
//	xmlharness [-test:<name|all>] [-dir:<path|file URI>] [-ask:yes|no] [-?]
//	xmlharness list
//	xmlharness watch [-test:...] [-dir:...]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/joncooperworks/xmlharness/config"
	"github.com/joncooperworks/xmlharness/harness"
	"github.com/joncooperworks/xmlharness/resolve"
	"github.com/joncooperworks/xmlharness/scenario"
)

const (
	exitConfig = 1
	exitUsage  = 2
)

// exitError carries a process exit code out of a cobra command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand(os.Stdin, os.Stdout, os.Stderr, openKeyring)
	if err := cmd.ExecuteContext(ctx); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			stop()
			os.Exit(ee.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(exitConfig)
	}
}

type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	cfg    *config.Config
	logger *log.Logger
}

func newRootCommand(stdin io.Reader, stdout, stderr io.Writer, openCredentials func() (credentialStore, error)) *cobra.Command {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:                "xmlharness [-test:<name|all>] [-dir:<path|file URI>] [-ask:yes|no] [-?]",
		Short:              "Run the xmlharness scenario catalogue",
		Args:               cobra.ArbitraryArgs,
		DisableFlagParsing: true,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := a.parse(args)
			if err != nil || opts.Help {
				return err
			}
			return a.run(cmd.Context(), opts)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the scenarios in catalogue order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, s := range scenario.Catalogue() {
				fmt.Fprintf(a.stdout, "%-34s %s\n", s.Name, s.Description)
			}
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:                "watch [-test:<name|all>] [-dir:<path|file URI>]",
		Short:              "Rerun the selection whenever a sample file changes",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := a.parse(args)
			if err != nil || opts.Help {
				return err
			}
			opts.Ask = false
			return a.watch(cmd.Context(), opts)
		},
	})

	root.AddCommand(newCredentialsCommand(a, openCredentials))
	return root
}

func (a *app) setup() error {
	cfg, path, err := config.Load(config.LoadOptions{})
	if err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return &exitError{code: exitConfig, err: err}
	}
	lvl, _ := cfg.Level()
	a.cfg = cfg
	a.logger = log.NewWithOptions(a.stderr, log.Options{Prefix: config.AppName, Level: lvl})
	if path != "" {
		a.logger.Debug("loaded configuration", "path", path)
	}
	return nil
}

func (a *app) parse(args []string) (harness.Options, error) {
	defaults := harness.Options{Test: a.cfg.Test, Ask: a.cfg.Ask}
	opts, err := harness.ParseArgs(args, defaults)
	if err != nil {
		fmt.Fprintln(a.stdout, harness.UnrecognizedMessage(err))
		fmt.Fprint(a.stdout, harness.Usage)
		return opts, &exitError{code: exitUsage, err: err}
	}
	if opts.Help {
		fmt.Fprint(a.stdout, harness.Usage)
	}
	return opts, nil
}

func (a *app) dispatcher() (*harness.Dispatcher, error) {
	opts := []harness.Option{
		harness.WithOutput(a.stdout),
		harness.WithConfirmer(harness.NewLineConfirmer(a.stdin, a.stdout)),
		harness.WithLogger(a.logger),
		harness.WithStyles(harness.StylesFor(a.stdout)),
	}
	if a.cfg.Keyring {
		creds, err := resolve.NewKeyringCredentials()
		if err != nil {
			return nil, &exitError{code: exitConfig, err: err}
		}
		opts = append(opts, harness.WithStandardResolver(&resolve.Standard{Credentials: creds}))
	}
	return harness.NewDispatcher(opts...), nil
}

func (a *app) samplesDir(opts harness.Options) (string, error) {
	dir, err := harness.ResolveSamplesDir(opts.Dir, a.cfg.Home)
	if err != nil {
		fmt.Fprintln(a.stdout, err)
		return "", &exitError{code: exitConfig, err: err}
	}
	return dir, nil
}

func (a *app) run(ctx context.Context, opts harness.Options) error {
	dir, err := a.samplesDir(opts)
	if err != nil {
		return err
	}
	d, err := a.dispatcher()
	if err != nil {
		return err
	}
	report, err := d.Run(ctx, opts, dir)
	if err != nil {
		return err
	}
	a.logger.Info("run finished", "attempted", len(report.Attempted), "failed", len(report.Failures), "halted", report.Halted)
	return nil
}

func (a *app) watch(ctx context.Context, opts harness.Options) error {
	dir, err := a.samplesDir(opts)
	if err != nil {
		return err
	}
	local, ok := resolve.LocalPath(dir)
	if !ok {
		return &exitError{code: exitConfig, err: fmt.Errorf("cannot watch %s", dir)}
	}
	d, err := a.dispatcher()
	if err != nil {
		return err
	}
	if _, err := d.Run(ctx, opts, dir); err != nil {
		return err
	}
	return harness.Watch(ctx, harness.WatchConfig{
		Dir:      local,
		Debounce: a.cfg.Debounce,
		Logger:   a.logger,
		OnChange: func(ctx context.Context, changed []string) error {
			a.logger.Info("rerunning", "changed", strings.Join(changed, ", "))
			_, err := d.Run(ctx, opts, dir)
			return err
		},
	})
}
