package admission

import "github.com/roach88/msggate/internal/wire"

// AdmissionRecord proves that (SourceChainID, SequenceID) was admitted.
// Records are created once, inside the atomic commit, and never change.
type AdmissionRecord struct {
	SourceChainID wire.ChainID    `json:"source_chain_id"`
	SequenceID    wire.SequenceID `json:"message_sequence_id"`
	Digest        wire.Digest     `json:"digest"`
	AttemptID     string          `json:"attempt_id"`
	Key           string          `json:"key"`
}

// NewRecord builds the record an admission will create. Creation itself
// happens in Store.CommitAdmission, which fails with ErrDuplicateMessage if
// the key already exists.
func NewRecord(chain wire.ChainID, seq wire.SequenceID, digest wire.Digest, attemptID string) AdmissionRecord {
	return AdmissionRecord{
		SourceChainID: chain,
		SequenceID:    seq,
		Digest:        digest,
		AttemptID:     attemptID,
		Key:           wire.RecordKey(chain, seq),
	}
}
