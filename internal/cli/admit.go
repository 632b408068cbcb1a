package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/msggate/internal/admission"
	"github.com/roach88/msggate/internal/metrics"
	"github.com/roach88/msggate/internal/wire"
)

// AdmitOptions holds flags for the admit command.
type AdmitOptions struct {
	Message messageFlags
	Retries int
}

// NewAdmitCommand creates the admit command.
func NewAdmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AdmitOptions{}

	cmd := &cobra.Command{
		Use:   "admit",
		Short: "Submit a message for admission",
		Long: `Submit a candidate message to the admission controller.

The message is admitted only if it is well formed, addressed to this
gateway, carries enough valid signatures, has not been admitted before and
has a sequence id above its chain's watermark. A rejection exits 1 and
reports the rejection code.

Examples:
  msggate admit --chain 42 --seq 5 --sender s --recipient r --payload hi
  msggate admit --message msg.json --signature <pub>:<sig>`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdmit(rootOpts, opts, cmd)
		},
	}

	opts.Message.register(cmd)
	cmd.Flags().IntVar(&opts.Retries, "retries", 3, "re-run the attempt this many times after a lost commit race")

	return cmd
}

func runAdmit(rootOpts *RootOptions, opts *AdmitOptions, cmd *cobra.Command) error {
	formatter := rootOpts.formatter(cmd)

	if opts.Retries < 0 {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidArg, fmt.Errorf("--retries must be >= 0, got %d", opts.Retries))
	}

	gateway, err := rootOpts.loadGateway(formatter)
	if err != nil {
		return err
	}
	msg, err := opts.Message.build(cmd, gateway.DestChainID)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidArg, err)
	}

	policy, err := rootOpts.newPolicy(gateway)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, err)
	}
	backend, err := rootOpts.openBackend(cmd.Context(), formatter)
	if err != nil {
		return err
	}
	defer backend.Close()

	collector := metrics.NewCollector("")
	defer rootOpts.flushMetrics(formatter, collector)

	controller, err := admission.New(backend, policy,
		admission.WithLogger(rootOpts.logger()),
		admission.WithEventSink(rootOpts.eventSink(formatter)),
		admission.WithObserver(collector),
		admission.WithDestination(gateway.DestChainID),
		admission.WithEnvironment(gateway.Environment),
		admission.WithConflictRetries(opts.Retries),
	)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, err)
	}

	formatter.VerboseLog("Admitting chain=%s seq=%s digest=%s", msg.SourceChainID, msg.SequenceID, wire.MessageDigest(msg))
	adm, err := controller.Admit(cmd.Context(), msg)
	if err != nil {
		return formatter.Reject(err)
	}

	text := fmt.Sprintf("✓ Admitted chain %s sequence %s\n  digest:    %s\n  attempt:   %s\n  watermark: %s -> %s\n",
		adm.SourceChainID, adm.SequenceID, adm.Digest, adm.AttemptID, adm.PreviousWatermark, adm.Watermark)
	return formatter.Render(adm, text)
}
