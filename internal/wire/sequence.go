package wire

import (
	"fmt"

	"lukechampine.com/uint128"
)

// SequenceID is a source chain's ordinal for a message.
//
// Sequence ids are unique and strictly increasing per source chain. Gaps are
// allowed. The zero value is the initial watermark of every chain counter.
type SequenceID struct {
	u uint128.Uint128
}

// SequenceIDSize is the encoded width of a SequenceID in bytes.
const SequenceIDSize = 16

// Seq returns the SequenceID for a 64-bit value.
func Seq(n uint64) SequenceID {
	return SequenceID{u: uint128.From64(n)}
}

// NewSequenceID builds a SequenceID from its high and low 64-bit halves.
func NewSequenceID(hi, lo uint64) SequenceID {
	return SequenceID{u: uint128.New(lo, hi)}
}

// ParseSequenceID parses a base-10 sequence id.
func ParseSequenceID(s string) (SequenceID, error) {
	u, err := uint128.FromString(s)
	if err != nil {
		return SequenceID{}, fmt.Errorf("parse sequence id %q: %w", s, err)
	}
	return SequenceID{u: u}, nil
}

// MustParseSequenceID is like ParseSequenceID but panics on error.
// Use only in tests or with constant inputs.
func MustParseSequenceID(s string) SequenceID {
	id, err := ParseSequenceID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// SequenceIDFromBE decodes a 16-byte big-endian sequence id.
func SequenceIDFromBE(b []byte) (SequenceID, error) {
	if len(b) != SequenceIDSize {
		return SequenceID{}, fmt.Errorf("sequence id: want %d bytes, got %d", SequenceIDSize, len(b))
	}
	return SequenceID{u: uint128.FromBytesBE(b)}, nil
}

// Cmp compares s and o and returns -1, 0 or +1.
func (s SequenceID) Cmp(o SequenceID) int {
	return s.u.Cmp(o.u)
}

// After reports whether s is strictly greater than o.
func (s SequenceID) After(o SequenceID) bool {
	return s.u.Cmp(o.u) > 0
}

// IsZero reports whether s is zero.
func (s SequenceID) IsZero() bool {
	return s.u.IsZero()
}

// Halves returns the high and low 64-bit halves of s.
func (s SequenceID) Halves() (hi, lo uint64) {
	return s.u.Hi, s.u.Lo
}

// String returns the base-10 representation.
func (s SequenceID) String() string {
	return s.u.String()
}

// BytesBE returns the 16-byte big-endian encoding.
// Byte order equals numeric order, so stores may compare encoded values directly.
func (s SequenceID) BytesBE() []byte {
	b := make([]byte, SequenceIDSize)
	s.u.PutBytesBE(b)
	return b
}

// BytesLE returns the 16-byte little-endian encoding used by the digest and
// storage key derivation.
func (s SequenceID) BytesLE() []byte {
	b := make([]byte, SequenceIDSize)
	s.u.PutBytes(b)
	return b
}

// MarshalText encodes s as a base-10 string.
func (s SequenceID) MarshalText() ([]byte, error) {
	return []byte(s.u.String()), nil
}

// UnmarshalText decodes a base-10 string.
func (s *SequenceID) UnmarshalText(text []byte) error {
	id, err := ParseSequenceID(string(text))
	if err != nil {
		return err
	}
	*s = id
	return nil
}
