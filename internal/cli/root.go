package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/roach88/msggate/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose     bool
	Format      string // "json" | "text"
	DB          string // SQLite path
	RedisAddr   string // when set, Redis is used instead of SQLite
	ConfigPath  string
	Environment string
	MetricsFile string

	// Logger overrides the logger built from Verbose. Tests set it.
	Logger *zap.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Error codes for command-level failures. Admission rejections use the
// admission code itself.
const (
	ErrCodeConfig      = "E_CONFIG"
	ErrCodeBackend     = "E_BACKEND"
	ErrCodeInvalidArg  = "E_INVALID_ARG"
	ErrCodeNotFound    = "E_NOT_FOUND"
	ErrCodeAuditFailed = "E_AUDIT_FAILED"
	ErrCodeTestFailed  = "E_TEST_FAILED"
)

// NewRootCommand creates the root command for the msggate CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "msggate",
		Short: "msggate - cross-chain message admission",
		Long: `Admission control for a cross-chain message relay.

Initializes per-chain sequence counters and admits inbound messages exactly
once, in strictly increasing sequence order per source chain.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			settings, err := config.LoadSettings()
			if err != nil {
				return WrapExitError(ExitCommandError, "environment", err)
			}
			opts.applySettings(cmd, settings)
			if opts.Logger == nil {
				logger, err := newLogger(opts.Verbose)
				if err != nil {
					return WrapExitError(ExitCommandError, "logger", err)
				}
				opts.Logger = logger
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = opts.logger().Sync()
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "SQLite database path (env MSGGATE_DB)")
	cmd.PersistentFlags().StringVar(&opts.RedisAddr, "redis", "", "Redis address; overrides --db (env MSGGATE_REDIS_ADDR)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "gateway configuration file (env MSGGATE_CONFIG)")
	cmd.PersistentFlags().StringVar(&opts.Environment, "env", "", "deployment environment override (env MSGGATE_ENV)")
	cmd.PersistentFlags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics here on exit (env MSGGATE_METRICS_FILE)")

	// Add subcommands
	cmd.AddCommand(NewInitCounterCommand(opts))
	cmd.AddCommand(NewAdmitCommand(opts))
	cmd.AddCommand(NewWatermarkCommand(opts))
	cmd.AddCommand(NewRecordCommand(opts))
	cmd.AddCommand(NewDigestCommand(opts))
	cmd.AddCommand(NewCheckConfigCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// applySettings fills every flag the user did not pass from the environment.
func (o *RootOptions) applySettings(cmd *cobra.Command, s config.Settings) {
	flags := cmd.Flags()
	if !flags.Changed("db") {
		o.DB = s.DBPath
	}
	if !flags.Changed("redis") {
		o.RedisAddr = s.RedisAddr
	}
	if !flags.Changed("config") {
		o.ConfigPath = s.ConfigPath
	}
	if !flags.Changed("env") {
		o.Environment = s.Environment
	}
	if !flags.Changed("metrics-file") {
		o.MetricsFile = s.MetricsFile
	}
}

// newLogger returns a development logger in verbose mode and a production
// logger at warn level otherwise. Both write to stderr.
func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	return cfg.Build()
}

func (o *RootOptions) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
