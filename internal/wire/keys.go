package wire

import (
	"encoding/binary"
	"encoding/hex"
)

// Seed tags for storage key derivation. Each entity kind has its own tag so
// keys of different kinds never collide.
const (
	SeedCounter = "counter"
	SeedMessage = "message"
)

// CounterKey derives the storage key of a chain counter.
//
// Format: "counter/" + hex(chain id, 8 bytes LE)
func CounterKey(chain ChainID) string {
	return SeedCounter + "/" + ChainHex(chain)
}

// RecordKey derives the storage key of an admission record.
//
// Format: "message/" + hex(chain id, 8 bytes LE) + "/" + hex(sequence id, 16 bytes LE)
//
// Both components are fixed width, so distinct (chain, sequence) pairs
// always map to distinct keys.
func RecordKey(chain ChainID, seq SequenceID) string {
	return SeedMessage + "/" + ChainHex(chain) + "/" + hex.EncodeToString(seq.BytesLE())
}

// ChainHex is the fixed-width key component of a chain id: 8 bytes LE, hex.
func ChainHex(chain ChainID) string {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(chain))
	return hex.EncodeToString(b[:])
}
