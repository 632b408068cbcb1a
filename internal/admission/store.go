package admission

import (
	"context"

	"github.com/roach88/msggate/internal/wire"
)

// Store is the durable storage collaborator.
//
// Implementations must make existence-check-and-create atomic (no
// read-then-write window) and must apply a Commit as one unit.
type Store interface {
	// CreateCounter inserts c if no counter exists for its chain and
	// records ev alongside it. Returns ErrAlreadyInitialized otherwise.
	CreateCounter(ctx context.Context, c ChainCounter, ev CounterInitialized) error

	// Counter returns the current counter for chain, or ErrCounterNotFound.
	Counter(ctx context.Context, chain wire.ChainID) (ChainCounter, error)

	// HasRecord reports whether (chain, seq) has been admitted.
	HasRecord(ctx context.Context, chain wire.ChainID, seq wire.SequenceID) (bool, error)

	// CommitAdmission atomically creates c.Record and moves the counter from
	// c.Previous to c.Next. Returns ErrDuplicateMessage if the record exists,
	// ErrConflict if the stored watermark no longer equals
	// c.Previous.HighestSequenceSeen, ErrCounterNotFound if the counter is
	// gone. On any error nothing is written.
	CommitAdmission(ctx context.Context, c Commit) error
}

// Commit is the unit of work of one successful admission.
type Commit struct {
	// Previous is the counter as read by the attempt; Next is the advanced copy.
	Previous ChainCounter
	Next     ChainCounter
	Record   AdmissionRecord
	Event    MessageAdmitted
}
