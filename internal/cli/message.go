package cli

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/msggate/internal/wire"
)

// messageFlags are the flags that describe one candidate message.
type messageFlags struct {
	File       string
	Chain      uint64
	Sequence   string
	Dest       uint64
	Sender     string
	Recipient  string
	Payload    string
	PayloadRef string
	Hex        bool
	Signatures []string
}

func (m *messageFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&m.File, "message", "m", "", "read the message as JSON from this file (- for stdin)")
	f.Uint64Var(&m.Chain, "chain", 0, "source chain id")
	f.StringVar(&m.Sequence, "seq", "", "message sequence id (decimal, up to 2^128-1)")
	f.Uint64Var(&m.Dest, "dest", 0, "destination chain id (default: the gateway's)")
	f.StringVar(&m.Sender, "sender", "", "sender address")
	f.StringVar(&m.Recipient, "recipient", "", "recipient address")
	f.StringVar(&m.Payload, "payload", "", "on-chain payload")
	f.StringVar(&m.PayloadRef, "payload-ref", "", "off-chain payload reference")
	f.BoolVar(&m.Hex, "hex", false, "sender, recipient, payload and payload-ref are hex encoded")
	f.StringArrayVar(&m.Signatures, "signature", nil, "signer-pubkey-hex:signature-hex (repeatable)")
}

// build assembles the message. Flags given alongside --message override the
// file's fields. defaultDest fills the destination when none is set.
func (m *messageFlags) build(cmd *cobra.Command, defaultDest wire.ChainID) (wire.Message, error) {
	var msg wire.Message
	if m.File != "" {
		var err error
		msg, err = readMessage(cmd.InOrStdin(), m.File)
		if err != nil {
			return wire.Message{}, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("chain") {
		msg.SourceChainID = wire.ChainID(m.Chain)
	}
	if flags.Changed("seq") {
		seq, err := wire.ParseSequenceID(m.Sequence)
		if err != nil {
			return wire.Message{}, fmt.Errorf("--seq: %w", err)
		}
		msg.SequenceID = seq
	}
	if m.File == "" && !flags.Changed("seq") {
		return wire.Message{}, fmt.Errorf("--seq is required")
	}
	if flags.Changed("dest") {
		msg.DestChainID = wire.ChainID(m.Dest)
	}
	if msg.DestChainID == 0 {
		msg.DestChainID = defaultDest
	}

	fields := []struct {
		name string
		val  string
		dst  *[]byte
	}{
		{"sender", m.Sender, &msg.Sender},
		{"recipient", m.Recipient, &msg.Recipient},
		{"payload", m.Payload, &msg.OnChainPayload},
		{"payload-ref", m.PayloadRef, &msg.OffChainPayloadRef},
	}
	for _, fld := range fields {
		if !flags.Changed(fld.name) {
			continue
		}
		b, err := m.decode(fld.val)
		if err != nil {
			return wire.Message{}, fmt.Errorf("--%s: %w", fld.name, err)
		}
		*fld.dst = b
	}

	if len(m.Signatures) > 0 {
		msg.Signatures = msg.Signatures[:0]
		for _, raw := range m.Signatures {
			sig, err := parseSignature(raw)
			if err != nil {
				return wire.Message{}, err
			}
			msg.Signatures = append(msg.Signatures, sig)
		}
	}
	return msg, nil
}

func (m *messageFlags) decode(s string) ([]byte, error) {
	if m.Hex {
		return hex.DecodeString(s)
	}
	return []byte(s), nil
}

func readMessage(stdin io.Reader, path string) (wire.Message, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return wire.Message{}, fmt.Errorf("read message: %w", err)
	}
	var msg wire.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return wire.Message{}, fmt.Errorf("parse message %s: %w", path, err)
	}
	return msg, nil
}

// parseSignature parses "signer:signature", both hex.
func parseSignature(raw string) (wire.Signature, error) {
	signer, sig, ok := strings.Cut(raw, ":")
	if !ok {
		return wire.Signature{}, fmt.Errorf("--signature %q: want signer-hex:signature-hex", raw)
	}
	pub, err := hex.DecodeString(signer)
	if err != nil {
		return wire.Signature{}, fmt.Errorf("--signature signer: %w", err)
	}
	s, err := hex.DecodeString(sig)
	if err != nil {
		return wire.Signature{}, fmt.Errorf("--signature value: %w", err)
	}
	return wire.Signature{Signer: pub, Signature: s}, nil
}

// parseChainArg parses a positional chain id.
func parseChainArg(s string) (wire.ChainID, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("chain id %q: %w", s, err)
	}
	return wire.ChainID(id), nil
}
