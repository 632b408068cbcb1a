package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/msggate/internal/admission"
	"github.com/roach88/msggate/internal/store"
)

// AuditResult is the output of the audit command.
type AuditResult struct {
	Consistent bool               `json:"consistent"`
	Chains     []store.ChainAudit `json:"chains"`
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "audit [chain-id]",
		Short: "Check stored counters against their admission records",
		Long: `Re-derive each chain's watermark from its admission records and report
any chain whose records are out of order, whose keys are malformed, or
whose watermark disagrees with its last committed record. Exits 1 when a
violation is found.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(rootOpts, args, cmd)
		},
	}
}

func runAudit(rootOpts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := rootOpts.formatter(cmd)

	backend, err := rootOpts.openBackend(cmd.Context(), formatter)
	if err != nil {
		return err
	}
	defer backend.Close()

	var audits []store.ChainAudit
	if len(args) == 1 {
		chain, err := parseChainArg(args[0])
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInvalidArg, err)
		}
		a, err := store.Audit(cmd.Context(), backend, chain)
		if errors.Is(err, admission.ErrCounterNotFound) {
			return formatter.Reject(err)
		}
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeBackend, err)
		}
		audits = []store.ChainAudit{a}
	} else {
		audits, err = store.AuditEach(cmd.Context(), backend)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeBackend, err)
		}
	}

	result := AuditResult{Consistent: true, Chains: audits}
	var b strings.Builder
	for _, a := range audits {
		if a.Consistent() {
			fmt.Fprintf(&b, "✓ chain %s: watermark %s, %d record(s)\n",
				a.Counter.SourceChainID, a.Counter.HighestSequenceSeen, a.RecordCount)
			continue
		}
		result.Consistent = false
		fmt.Fprintf(&b, "✗ chain %s: watermark %s, %d record(s)\n",
			a.Counter.SourceChainID, a.Counter.HighestSequenceSeen, a.RecordCount)
		for _, v := range a.Violations {
			fmt.Fprintf(&b, "    %s\n", v)
		}
	}
	if len(audits) == 0 {
		b.WriteString("No counters initialized\n")
	}

	if !result.Consistent {
		if formatter.Format == "json" {
			_ = formatter.Problem(&CLIError{Code: ErrCodeAuditFailed, Message: "audit found violations", Details: result})
		} else {
			fmt.Fprint(formatter.Writer, b.String())
		}
		return NewExitError(ExitFailure, "audit found violations")
	}
	return formatter.Render(result, b.String())
}
