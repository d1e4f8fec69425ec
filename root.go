package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/gdrive2preservica/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// CLIFlags are the persistent flags shared by every command.
type CLIFlags struct {
	ConfigPath string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext carries what PersistentPreRunE resolved to the command bodies.
type CLIContext struct {
	Cfg    *config.Config
	Env    config.EnvOverrides
	Flags  CLIFlags
	Logger *slog.Logger

	statusOut io.Writer // nil means stderr
	closeLog  func() error
}

// Close releases the log file, if one was opened.
func (cc *CLIContext) Close() error {
	if cc.closeLog == nil {
		return nil
	}

	return cc.closeLog()
}

type cliContextKey struct{}

func withCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cc)
}

// mustCLIContext returns the CLIContext stored by the root pre-run. Every
// command runs after it, so a missing value is a programming error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := cliContextFrom(ctx)
	if !ok {
		panic("CLIContext missing from command context")
	}

	return cc
}

func cliContextFrom(ctx context.Context) (*CLIContext, bool) {
	if ctx == nil {
		return nil, false
	}

	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)

	return cc, ok
}

// newHTTPClient returns the client for Drive and Preservica calls. It has
// no overall timeout; requests end with their context.
func newHTTPClient() *http.Client {
	return &http.Client{}
}

// newRootCmd builds the root command. Running it without a subcommand
// performs a migration.
func newRootCmd() *cobra.Command {
	var flags CLIFlags

	cmd := &cobra.Command{
		Use:   "gdrive2preservica",
		Short: "Migrate Google Drive files into Preservica",
		Long: `Walk the Google Drive file listing once, export Google documents to
Office formats, and ingest every file not already present in the configured
Preservica folder. Files are matched by their Drive ID, so repeated runs only
upload what is new.`,
		Version: version,
		// Silence Cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := loadCLIContext(flags, os.Stderr)
			if err != nil {
				return err
			}

			cmd.SetContext(withCLIContext(cmd.Context(), cc))

			return nil
		},
		RunE: runMigrate,
	}

	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flags.JSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newHistoryCmd())

	return cmd
}

// loadCLIContext resolves configuration and builds the logger.
func loadCLIContext(flags CLIFlags, logOut io.Writer) (*CLIContext, error) {
	env := config.ReadEnvOverrides()

	cfg, err := config.Resolve(env, config.CLIOverrides{ConfigPath: flags.ConfigPath}, nil)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, closeLog, err := buildLogger(cfg, flags, logOut)
	if err != nil {
		return nil, err
	}

	return &CLIContext{Cfg: cfg, Env: env, Flags: flags, Logger: logger, closeLog: closeLog}, nil
}

// buildLogger creates an slog.Logger from the resolved config and CLI flags.
// The config-file level is the baseline; --verbose and --quiet override it.
// Format "auto" picks text on a terminal and JSON otherwise. The returned
// function closes the log file when logging.log_file is set.
func buildLogger(cfg *config.Config, flags CLIFlags, out io.Writer) (*slog.Logger, func() error, error) {
	level := slog.LevelInfo

	if cfg != nil {
		switch cfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	format := "auto"
	closeLog := func() error { return nil }

	if cfg != nil {
		format = cfg.Logging.LogFormat

		if cfg.Logging.LogFile != "" {
			f, err := os.OpenFile(cfg.Logging.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
			if err != nil {
				return nil, nil, fmt.Errorf("opening log file: %w", err)
			}

			out = f
			closeLog = f.Close
		}
	}

	opts := &slog.HandlerOptions{Level: level}

	if format == "json" || (format == "auto" && !isTerminal(out)) {
		return slog.New(slog.NewJSONHandler(out, opts)), closeLog, nil
	}

	return slog.New(slog.NewTextHandler(out, opts)), closeLog, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// execute runs cmd and then closes what the root pre-run opened for the
// command that ran.
func execute(cmd *cobra.Command) error {
	executed, err := cmd.ExecuteC()

	if executed != nil {
		if cc, ok := cliContextFrom(executed.Context()); ok {
			if closeErr := cc.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("closing log file: %w", closeErr)
			}
		}
	}

	return err
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
