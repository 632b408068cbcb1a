package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/msggate/internal/admission"
	"github.com/roach88/msggate/internal/wire"
)

// StoredEvent is an outbox row.
type StoredEvent struct {
	ID            int64        `json:"id"`
	Kind          string       `json:"kind"`
	SourceChainID wire.ChainID `json:"source_chain_id"`
	Payload       string       `json:"payload"` // canonical JSON
}

// Counter retrieves the counter for chain.
// Returns admission.ErrCounterNotFound if it was never initialized.
func (s *Store) Counter(ctx context.Context, chain wire.ChainID) (admission.ChainCounter, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT source_chain_id, counter_key, highest_sequence_seen, initialized_by, gateway_ref
		FROM chain_counters
		WHERE source_chain_id = ?
	`, chainArg(chain))

	c, err := scanCounter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return admission.ChainCounter{}, fmt.Errorf("chain %s: %w", chain, admission.ErrCounterNotFound)
	}
	if err != nil {
		return admission.ChainCounter{}, fmt.Errorf("read counter: %w", err)
	}
	return c, nil
}

// Counters returns every counter in chain order. Chain ids above 2^63 are
// stored negative, so they sort after the non-negative ones.
func (s *Store) Counters(ctx context.Context) ([]admission.ChainCounter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_chain_id, counter_key, highest_sequence_seen, initialized_by, gateway_ref
		FROM chain_counters
		ORDER BY source_chain_id < 0, source_chain_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query counters: %w", err)
	}
	defer rows.Close()

	var counters []admission.ChainCounter
	for rows.Next() {
		c, err := scanCounter(rows)
		if err != nil {
			return nil, fmt.Errorf("read counters: %w", err)
		}
		counters = append(counters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counters: %w", err)
	}
	return counters, nil
}

// HasRecord reports whether (chain, seq) has been admitted.
func (s *Store) HasRecord(ctx context.Context, chain wire.ChainID, seq wire.SequenceID) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM admission_records
		WHERE source_chain_id = ? AND message_sequence_id = ?
	`, chainArg(chain), seq.BytesBE()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check record: %w", err)
	}
	return count > 0, nil
}

// ErrRecordNotFound is returned by Record for ids that were never admitted.
var ErrRecordNotFound = errors.New("admission record not found")

// Record retrieves the admission record for (chain, seq).
// Returns ErrRecordNotFound if the message was never admitted.
func (s *Store) Record(ctx context.Context, chain wire.ChainID, seq wire.SequenceID) (admission.AdmissionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT record_key, source_chain_id, message_sequence_id, digest, attempt_id
		FROM admission_records
		WHERE source_chain_id = ? AND message_sequence_id = ?
	`, chainArg(chain), seq.BytesBE())

	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return admission.AdmissionRecord{}, fmt.Errorf("record %s: %w", wire.RecordKey(chain, seq), ErrRecordNotFound)
	}
	if err != nil {
		return admission.AdmissionRecord{}, fmt.Errorf("read record %s: %w", wire.RecordKey(chain, seq), err)
	}
	return r, nil
}

// ListRecords returns the records of chain in commit order.
func (s *Store) ListRecords(ctx context.Context, chain wire.ChainID) ([]admission.AdmissionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_key, source_chain_id, message_sequence_id, digest, attempt_id
		FROM admission_records
		WHERE source_chain_id = ?
		ORDER BY commit_seq ASC
	`, chainArg(chain))
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []admission.AdmissionRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("read records: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Events returns up to limit outbox events with id > afterID, oldest first.
// A limit <= 0 returns all of them.
func (s *Store) Events(ctx context.Context, afterID int64, limit int) ([]StoredEvent, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, source_chain_id, payload
		FROM events
		WHERE id > ?
		ORDER BY id ASC
		LIMIT ?
	`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var ev StoredEvent
		var chain int64
		if err := rows.Scan(&ev.ID, &ev.Kind, &chain, &ev.Payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.SourceChainID = chainFromColumn(chain)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCounter(row rowScanner) (admission.ChainCounter, error) {
	var c admission.ChainCounter
	var chain int64
	var highest []byte
	if err := row.Scan(&chain, &c.Key, &highest, &c.InitializedBy, &c.GatewayRef); err != nil {
		return admission.ChainCounter{}, err
	}
	seq, err := sequenceFromColumn(highest)
	if err != nil {
		return admission.ChainCounter{}, err
	}
	c.SourceChainID = chainFromColumn(chain)
	c.HighestSequenceSeen = seq
	return c, nil
}

func scanRecord(row rowScanner) (admission.AdmissionRecord, error) {
	var r admission.AdmissionRecord
	var chain int64
	var seqBytes []byte
	var digest string
	if err := row.Scan(&r.Key, &chain, &seqBytes, &digest, &r.AttemptID); err != nil {
		return admission.AdmissionRecord{}, err
	}
	seq, err := sequenceFromColumn(seqBytes)
	if err != nil {
		return admission.AdmissionRecord{}, err
	}
	d, err := wire.ParseDigest(digest)
	if err != nil {
		return admission.AdmissionRecord{}, fmt.Errorf("decode digest column: %w", err)
	}
	r.SourceChainID = chainFromColumn(chain)
	r.SequenceID = seq
	r.Digest = d
	return r, nil
}
