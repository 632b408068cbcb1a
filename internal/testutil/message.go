package testutil

import (
	"bytes"

	"github.com/roach88/msggate/internal/wire"
)

// DefaultDestChainID is the destination used by NewMessage.
const DefaultDestChainID wire.ChainID = 1

// NewMessage returns a well-formed candidate message from chain with the
// given sequence id and small fixed payloads.
func NewMessage(chain wire.ChainID, seq uint64) wire.Message {
	return wire.Message{
		SequenceID:         wire.Seq(seq),
		SourceChainID:      chain,
		DestChainID:        DefaultDestChainID,
		Sender:             []byte("sender-001"),
		Recipient:          []byte("recipient-001"),
		OnChainPayload:     []byte("hello"),
		OffChainPayloadRef: []byte("ipfs://bafy-ref"),
	}
}

// Signed returns m with one signature per signer over its digest,
// replacing any attached signatures.
func Signed(m wire.Message, signers ...Signer) wire.Message {
	digest := wire.MessageDigest(m)
	m.Signatures = make([]wire.Signature, len(signers))
	for i, s := range signers {
		m.Signatures[i] = s.Sign(digest)
	}
	return m
}

// Oversized returns a field value n bytes longer than limit.
func Oversized(limit, n int) []byte {
	return bytes.Repeat([]byte{'x'}, limit+n)
}
