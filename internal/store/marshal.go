package store

import (
	"fmt"

	"github.com/roach88/msggate/internal/admission"
	"github.com/roach88/msggate/internal/wire"
)

// chainArg converts a chain id to the bit-cast int64 stored in SQLite.
// database/sql rejects uint64 values with the high bit set.
func chainArg(chain wire.ChainID) int64 {
	return int64(chain)
}

func chainFromColumn(v int64) wire.ChainID {
	return wire.ChainID(uint64(v))
}

// marshalEvent converts an event payload to canonical JSON TEXT for storage.
func marshalEvent(ev admission.Event) (string, error) {
	data, err := wire.MarshalCanonical(ev.Payload())
	if err != nil {
		return "", fmt.Errorf("marshal %s event: %w", ev.Kind(), err)
	}
	return string(data), nil
}

func sequenceFromColumn(b []byte) (wire.SequenceID, error) {
	seq, err := wire.SequenceIDFromBE(b)
	if err != nil {
		return wire.SequenceID{}, fmt.Errorf("decode sequence column: %w", err)
	}
	return seq, nil
}
