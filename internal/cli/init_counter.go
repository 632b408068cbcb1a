package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/msggate/internal/admission"
	"github.com/roach88/msggate/internal/metrics"
)

// InitCounterOptions holds flags for the init-counter command.
type InitCounterOptions struct {
	Requester string
}

// NewInitCounterCommand creates the init-counter command.
func NewInitCounterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitCounterOptions{}

	cmd := &cobra.Command{
		Use:   "init-counter <chain-id>",
		Short: "Create the sequence counter for a source chain",
		Long: `Create the sequence counter for a source chain, with watermark 0.

Only the gateway authority may initialize counters, only while the gateway
is enabled, and only once per chain. Messages from a chain are rejected
until its counter exists.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInitCounter(rootOpts, opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Requester, "requester", "", "identity requesting the initialization (required)")

	return cmd
}

func runInitCounter(rootOpts *RootOptions, opts *InitCounterOptions, chainArg string, cmd *cobra.Command) error {
	formatter := rootOpts.formatter(cmd)

	chain, err := parseChainArg(chainArg)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidArg, err)
	}
	if opts.Requester == "" {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidArg, errors.New("--requester is required"))
	}

	gateway, err := rootOpts.loadGateway(formatter)
	if err != nil {
		return err
	}
	backend, err := rootOpts.openBackend(cmd.Context(), formatter)
	if err != nil {
		return err
	}
	defer backend.Close()

	collector := metrics.NewCollector("")
	defer rootOpts.flushMetrics(formatter, collector)

	initializer := admission.NewInitializer(gateway.Capability(), backend,
		admission.WithInitializerLogger(rootOpts.logger()),
		admission.WithInitializerEventSink(rootOpts.eventSink(formatter)),
		admission.WithInitializerObserver(collector),
	)
	counter, err := initializer.InitializeCounter(cmd.Context(), chain, opts.Requester)
	if err != nil {
		return formatter.Reject(err)
	}

	text := fmt.Sprintf("✓ Counter initialized for chain %s (key %s, gateway %s)\n",
		counter.SourceChainID, counter.Key, counter.GatewayRef)
	return formatter.Render(counter, text)
}
