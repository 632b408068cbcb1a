package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/msggate/internal/config"
)

// CheckConfigResult summarizes a valid gateway configuration.
type CheckConfigResult struct {
	Valid   bool           `json:"valid"`
	Path    string         `json:"path"`
	Gateway config.Gateway `json:"gateway"`
}

// NewCheckConfigCommand creates the check-config command.
func NewCheckConfigCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config [path]",
		Short: "Validate a gateway configuration file",
		Long: `Validate a gateway configuration against the embedded schema, apply the
MSGGATE_ENV override and build its signature policy, without touching
storage. Defaults to --config when no path is given.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				rootOpts.ConfigPath = args[0]
			}
			return runCheckConfig(rootOpts, cmd)
		},
	}
}

func runCheckConfig(rootOpts *RootOptions, cmd *cobra.Command) error {
	formatter := rootOpts.formatter(cmd)

	gateway, err := rootOpts.loadGateway(formatter)
	if err != nil {
		return err
	}
	policy, err := rootOpts.newPolicy(gateway)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✓ %s is valid\n", rootOpts.ConfigPath)
	fmt.Fprintf(&b, "  authority:   %s\n", gateway.Authority)
	fmt.Fprintf(&b, "  enabled:     %t\n", gateway.SystemEnabled)
	fmt.Fprintf(&b, "  destination: %s\n", gateway.DestChainID)
	fmt.Fprintf(&b, "  environment: %s\n", gateway.Environment)
	if policy.Enabled() {
		fmt.Fprintf(&b, "  signatures:  %d of %d\n", policy.Threshold(), len(gateway.Signatures.Signers))
	} else {
		b.WriteString("  signatures:  DISABLED\n")
	}

	return formatter.Render(CheckConfigResult{Valid: true, Path: rootOpts.ConfigPath, Gateway: gateway}, b.String())
}
