package wire

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// DomainMessage is the domain tag of the message digest encoding.
// The version suffix changes whenever the encoding below changes.
const DomainMessage = "msggate/message/v1"

// DigestSize is the size of a message digest in bytes.
const DigestSize = 32

// Digest is the canonical fingerprint of a candidate message. It is the
// object attached signatures attest to.
type Digest [DigestSize]byte

// EncodeMessage returns the v1 digest preimage of m.
//
// Layout (all integers little-endian):
//
//	DomainMessage || 0x00
//	sequence_id      16 bytes
//	source_chain_id   8 bytes
//	dest_chain_id     8 bytes
//	u32 len || sender
//	u32 len || recipient
//	u32 len || on_chain_payload
//	u32 len || off_chain_payload_ref
//
// Signatures are not part of the preimage.
func EncodeMessage(m Message) []byte {
	size := len(DomainMessage) + 1 + SequenceIDSize + 8 + 8 +
		4*4 + len(m.Sender) + len(m.Recipient) + len(m.OnChainPayload) + len(m.OffChainPayloadRef)

	buf := make([]byte, 0, size)
	buf = append(buf, DomainMessage...)
	buf = append(buf, 0x00)
	buf = append(buf, m.SequenceID.BytesLE()...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(m.SourceChainID))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(m.DestChainID))
	for _, field := range [][]byte{m.Sender, m.Recipient, m.OnChainPayload, m.OffChainPayloadRef} {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(field)))
		buf = append(buf, field...)
	}
	return buf
}

// MessageDigest computes the Keccak-256 digest of the v1 encoding of m.
func MessageDigest(m Message) Digest {
	h := sha3.NewLegacyKeccak256()
	h.Write(EncodeMessage(m))
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// ParseDigest decodes a hex-encoded digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("parse digest: %w", err)
	}
	if len(b) != DigestSize {
		return d, fmt.Errorf("parse digest: want %d bytes, got %d", DigestSize, len(b))
	}
	copy(d[:], b)
	return d, nil
}

// Bytes returns the digest as a slice.
func (d Digest) Bytes() []byte {
	return d[:]
}

// String returns the lowercase hex encoding.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// MarshalText encodes d as lowercase hex.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes lowercase or uppercase hex.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := ParseDigest(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
