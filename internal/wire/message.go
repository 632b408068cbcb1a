package wire

import (
	"math"
	"strconv"
)

// Size bounds on candidate message fields. They are enforced before any
// digest computation so oversized submissions are rejected cheaply.
const (
	MaxSenderSize       = 64
	MaxRecipientSize    = 64
	MaxOnChainDataSize  = 1024
	MaxOffChainDataSize = 1024

	// MaxSignatures bounds the number of attached signatures handed to the
	// verification oracle for a single message.
	MaxSignatures = 16
)

// MaxSupportedChainID is the largest accepted chain id (2^64 - 1).
const MaxSupportedChainID ChainID = math.MaxUint64

// ChainID identifies a ledger. Zero is never a valid chain id.
type ChainID uint64

// Valid reports whether id is within 0 < id <= MaxSupportedChainID.
func (id ChainID) Valid() bool {
	return id > 0 && id <= MaxSupportedChainID
}

// String returns the base-10 representation.
func (id ChainID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Signature is one attestation attached to a message: an Ed25519 public key
// and its signature over the message digest.
type Signature struct {
	Signer    []byte `json:"signer" yaml:"signer"`
	Signature []byte `json:"signature" yaml:"signature"`
}

// Message is a candidate cross-chain message submitted by a relayer.
// It is transient: stores persist only the admission record it produces.
type Message struct {
	SequenceID         SequenceID  `json:"sequence_id"`
	SourceChainID      ChainID     `json:"source_chain_id"`
	DestChainID        ChainID     `json:"dest_chain_id"`
	Sender             []byte      `json:"sender"`
	Recipient          []byte      `json:"recipient"`
	OnChainPayload     []byte      `json:"on_chain_payload"`
	OffChainPayloadRef []byte      `json:"off_chain_payload_ref"`
	Signatures         []Signature `json:"signatures,omitempty"`
}
