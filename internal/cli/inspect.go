package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/msggate/internal/admission"
	"github.com/roach88/msggate/internal/wire"
)

// NewWatermarkCommand creates the watermark command.
func NewWatermarkCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watermark [chain-id]",
		Short: "Show the highest admitted sequence id of a chain",
		Long: `Show the counter of a source chain: its watermark (the highest admitted
sequence id) and who initialized it. With no chain id, every counter is
listed in chain order.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatermark(rootOpts, args, cmd)
		},
	}
}

func runWatermark(rootOpts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := rootOpts.formatter(cmd)

	backend, err := rootOpts.openBackend(cmd.Context(), formatter)
	if err != nil {
		return err
	}
	defer backend.Close()

	if len(args) == 0 {
		counters, err := backend.Counters(cmd.Context())
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeBackend, err)
		}
		var b strings.Builder
		if len(counters) == 0 {
			b.WriteString("No counters initialized\n")
		}
		for _, c := range counters {
			fmt.Fprintf(&b, "chain %s: %s\n", c.SourceChainID, c.HighestSequenceSeen)
		}
		if counters == nil {
			counters = []admission.ChainCounter{}
		}
		return formatter.Render(counters, b.String())
	}

	chain, err := parseChainArg(args[0])
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidArg, err)
	}
	counter, err := backend.Counter(cmd.Context(), chain)
	if errors.Is(err, admission.ErrCounterNotFound) {
		return formatter.Reject(err)
	}
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeBackend, err)
	}

	text := fmt.Sprintf("chain %s: %s\n", counter.SourceChainID, counter.HighestSequenceSeen)
	if rootOpts.Verbose {
		text += fmt.Sprintf("  key:            %s\n  initialized by: %s\n  gateway:        %s\n",
			counter.Key, counter.InitializedBy, counter.GatewayRef)
	}
	return formatter.Render(counter, text)
}

// NewRecordCommand creates the record command.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "record <chain-id> [sequence-id]",
		Short: "Show admission records",
		Long: `Show the admission record of (chain, sequence id), or every record of the
chain in commit order when no sequence id is given. A missing record
exits 1.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(rootOpts, args, cmd)
		},
	}
}

func runRecord(rootOpts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := rootOpts.formatter(cmd)

	chain, err := parseChainArg(args[0])
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidArg, err)
	}
	var seq wire.SequenceID
	if len(args) == 2 {
		seq, err = wire.ParseSequenceID(args[1])
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInvalidArg, fmt.Errorf("sequence id: %w", err))
		}
	}

	backend, err := rootOpts.openBackend(cmd.Context(), formatter)
	if err != nil {
		return err
	}
	defer backend.Close()

	if len(args) == 1 {
		records, err := backend.ListRecords(cmd.Context(), chain)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeBackend, err)
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%d record(s) on chain %s\n", len(records), chain)
		for _, r := range records {
			fmt.Fprintf(&b, "  %s  %s  %s\n", r.SequenceID, r.Digest, r.AttemptID)
		}
		if records == nil {
			records = []admission.AdmissionRecord{}
		}
		return formatter.Render(records, b.String())
	}

	record, err := backend.Record(cmd.Context(), chain, seq)
	if isRecordNotFound(err) {
		return formatter.Fail(ExitFailure, ErrCodeNotFound, err)
	}
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeBackend, err)
	}

	text := fmt.Sprintf("chain %s sequence %s\n  key:     %s\n  digest:  %s\n  attempt: %s\n",
		record.SourceChainID, record.SequenceID, record.Key, record.Digest, record.AttemptID)
	return formatter.Render(record, text)
}
