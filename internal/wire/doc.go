// Package wire provides the foundational types of the message gateway.
//
// This package contains the candidate message shape, 128-bit sequence ids,
// chain ids, size bounds and the versioned digest encoding that signatures
// attest to. All other internal packages import wire; wire imports nothing
// internal.
//
// Key design constraints:
//   - Sequence ids are unsigned 128-bit, compared numerically, never as strings
//   - Chain id 0 is never valid
//   - The digest encoding is a protocol constant (see digest.go); changing
//     field order or length prefixes requires a new domain version
//   - Event payloads persisted by stores use canonical JSON (canonical.go)
package wire
