package cli

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/msggate/internal/config"
	"github.com/roach88/msggate/internal/wire"
)

// DigestResult is the output of the digest command.
type DigestResult struct {
	Digest     wire.Digest `json:"digest"`
	CounterKey string      `json:"counter_key"`
	RecordKey  string      `json:"record_key"`
	Encoding   string      `json:"encoding,omitempty"` // hex, verbose only
}

// NewDigestCommand creates the digest command.
func NewDigestCommand(rootOpts *RootOptions) *cobra.Command {
	msg := &messageFlags{}

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Compute a message's digest and storage keys",
		Long: `Compute the digest signers sign, plus the counter and record keys the
message maps to. Nothing is read or written.

The destination chain is part of the digest. Without --dest (or a dest in
the message file) it is taken from the gateway configuration, as admit
does; if there is none, --dest is required.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDigest(rootOpts, msg, cmd)
		},
	}

	msg.register(cmd)
	return cmd
}

func runDigest(rootOpts *RootOptions, flags *messageFlags, cmd *cobra.Command) error {
	formatter := rootOpts.formatter(cmd)

	msg, err := flags.build(cmd, 0)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidArg, err)
	}
	if msg.DestChainID == 0 {
		dest, err := rootOpts.gatewayDestination()
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInvalidArg, fmt.Errorf("--dest is required: %w", err))
		}
		formatter.VerboseLog("Using destination %s from %s", dest, rootOpts.ConfigPath)
		msg.DestChainID = dest
	}

	result := DigestResult{
		Digest:     wire.MessageDigest(msg),
		CounterKey: wire.CounterKey(msg.SourceChainID),
		RecordKey:  wire.RecordKey(msg.SourceChainID, msg.SequenceID),
	}
	if rootOpts.Verbose {
		result.Encoding = hex.EncodeToString(wire.EncodeMessage(msg))
	}

	text := fmt.Sprintf("digest:      %s\ncounter key: %s\nrecord key:  %s\n",
		result.Digest, result.CounterKey, result.RecordKey)
	if result.Encoding != "" {
		text += fmt.Sprintf("encoding:    %s\n", result.Encoding)
	}
	return formatter.Render(result, text)
}

// gatewayDestination returns the destination admit would fill in.
func (o *RootOptions) gatewayDestination() (wire.ChainID, error) {
	if o.ConfigPath == "" {
		return 0, errors.New("no gateway configuration")
	}
	g, err := config.LoadFile(o.ConfigPath)
	if err != nil {
		return 0, err
	}
	if g.DestChainID == 0 {
		return 0, fmt.Errorf("gateway %q accepts any destination", g.GatewayRef)
	}
	return g.DestChainID, nil
}
