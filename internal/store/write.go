package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/msggate/internal/admission"
)

// CreateCounter inserts a counter with its CounterInitialized event.
//
// Uses ON CONFLICT(source_chain_id) DO NOTHING and RowsAffected to decide
// the winner, so concurrent initializations of one chain produce exactly one
// row and every loser gets ErrAlreadyInitialized.
func (s *Store) CreateCounter(ctx context.Context, c admission.ChainCounter, ev admission.CounterInitialized) error {
	payload, err := marshalEvent(ev)
	if err != nil {
		return fmt.Errorf("create counter: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create counter: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO chain_counters
		(source_chain_id, counter_key, highest_sequence_seen, initialized_by, gateway_ref)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_chain_id) DO NOTHING
	`,
		chainArg(c.SourceChainID),
		c.Key,
		c.HighestSequenceSeen.BytesBE(),
		c.InitializedBy,
		c.GatewayRef,
	)
	if err != nil {
		return fmt.Errorf("create counter: insert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("create counter: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("counter %s: %w", c.Key, admission.ErrAlreadyInitialized)
	}

	if err := insertEvent(ctx, tx, ev, payload); err != nil {
		return fmt.Errorf("create counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create counter: commit: %w", err)
	}
	return nil
}

// CommitAdmission applies one admission in a single transaction:
// record insert, watermark compare-and-swap, event append.
//
// The record is inserted before the watermark moves so that a replayed id
// reports ErrDuplicateMessage rather than ErrConflict.
func (s *Store) CommitAdmission(ctx context.Context, c admission.Commit) error {
	if err := checkCommit(c); err != nil {
		return fmt.Errorf("commit admission: %w", err)
	}

	payload, err := marshalEvent(c.Event)
	if err != nil {
		return fmt.Errorf("commit admission: %w", err)
	}

	chain := chainArg(c.Next.SourceChainID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit admission: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	// The counter must exist before the record insert, which would otherwise
	// fail on the foreign key with a driver error instead of a sentinel.
	var current []byte
	err = tx.QueryRowContext(ctx, `
		SELECT highest_sequence_seen FROM chain_counters WHERE source_chain_id = ?
	`, chain).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("commit admission: chain %s: %w", c.Next.SourceChainID, admission.ErrCounterNotFound)
	}
	if err != nil {
		return fmt.Errorf("commit admission: read counter: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO admission_records
		(record_key, source_chain_id, message_sequence_id, digest, attempt_id, commit_seq)
		VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(commit_seq), 0) + 1 FROM admission_records))
		ON CONFLICT DO NOTHING
	`,
		c.Record.Key,
		chain,
		c.Record.SequenceID.BytesBE(),
		c.Record.Digest.String(),
		c.Record.AttemptID,
	)
	if err != nil {
		return fmt.Errorf("commit admission: insert record: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("commit admission: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("commit admission: record %s: %w", c.Record.Key, admission.ErrDuplicateMessage)
	}

	result, err = tx.ExecContext(ctx, `
		UPDATE chain_counters
		SET highest_sequence_seen = ?
		WHERE source_chain_id = ? AND highest_sequence_seen = ?
	`,
		c.Next.HighestSequenceSeen.BytesBE(),
		chain,
		c.Previous.HighestSequenceSeen.BytesBE(),
	)
	if err != nil {
		return fmt.Errorf("commit admission: update counter: %w", err)
	}
	rowsAffected, err = result.RowsAffected()
	if err != nil {
		return fmt.Errorf("commit admission: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		stored, _ := sequenceFromColumn(current)
		return fmt.Errorf("commit admission: chain %s watermark is %s, attempt read %s: %w",
			c.Next.SourceChainID, stored, c.Previous.HighestSequenceSeen, admission.ErrConflict)
	}

	if err := insertEvent(ctx, tx, c.Event, payload); err != nil {
		return fmt.Errorf("commit admission: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit admission: commit: %w", err)
	}
	return nil
}

// checkCommit rejects a Commit that would move a watermark backwards or
// record an id other than the new watermark. The controller never builds
// one; this guards other callers.
func checkCommit(c admission.Commit) error {
	if c.Previous.SourceChainID != c.Next.SourceChainID || c.Record.SourceChainID != c.Next.SourceChainID {
		return fmt.Errorf("chain mismatch: previous %s, next %s, record %s",
			c.Previous.SourceChainID, c.Next.SourceChainID, c.Record.SourceChainID)
	}
	if !c.Next.HighestSequenceSeen.After(c.Previous.HighestSequenceSeen) {
		return fmt.Errorf("watermark %s -> %s: %w",
			c.Previous.HighestSequenceSeen, c.Next.HighestSequenceSeen, admission.ErrSequenceTooOld)
	}
	if c.Record.SequenceID != c.Next.HighestSequenceSeen {
		return fmt.Errorf("record %s does not match new watermark %s",
			c.Record.SequenceID, c.Next.HighestSequenceSeen)
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, ev admission.Event, payload string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO events (kind, source_chain_id, payload) VALUES (?, ?, ?)
	`, ev.Kind(), chainArg(ev.Chain()), payload)
	if err != nil {
		return fmt.Errorf("insert %s event: %w", ev.Kind(), err)
	}
	return nil
}
