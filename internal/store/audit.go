package store

import (
	"context"
	"fmt"

	"github.com/roach88/msggate/internal/admission"
	"github.com/roach88/msggate/internal/wire"
)

// ChainAudit is the result of checking one chain's stored state against the
// admission rules.
type ChainAudit struct {
	Counter     admission.ChainCounter `json:"counter"`
	RecordCount int                    `json:"record_count"`
	// HighestRecord is the largest admitted sequence id (zero if none).
	HighestRecord wire.SequenceID `json:"highest_record"`
	// Violations is empty when the chain is consistent.
	Violations []string `json:"violations"`
}

// Consistent reports whether no violations were found.
func (a ChainAudit) Consistent() bool {
	return len(a.Violations) == 0
}

// AuditSource is the read side an audit needs. Both the SQLite store and
// redisstore.Store satisfy it.
type AuditSource interface {
	Counter(ctx context.Context, chain wire.ChainID) (admission.ChainCounter, error)
	Counters(ctx context.Context) ([]admission.ChainCounter, error)
	ListRecords(ctx context.Context, chain wire.ChainID) ([]admission.AdmissionRecord, error)
}

// AuditChain audits chain in s. See Audit.
func (s *Store) AuditChain(ctx context.Context, chain wire.ChainID) (ChainAudit, error) {
	return Audit(ctx, s, chain)
}

// AuditAll audits every initialized chain in s.
func (s *Store) AuditAll(ctx context.Context) ([]ChainAudit, error) {
	return AuditEach(ctx, s)
}

// Audit re-derives the watermark of chain from its records.
//
// A consistent chain satisfies:
//  1. Records taken in commit order have strictly increasing sequence ids
//  2. The watermark equals the sequence id of the last committed record
//     (or zero if there are none)
//  3. Every record key matches wire.RecordKey of its (chain, sequence)
func Audit(ctx context.Context, src AuditSource, chain wire.ChainID) (ChainAudit, error) {
	counter, err := src.Counter(ctx, chain)
	if err != nil {
		return ChainAudit{}, fmt.Errorf("audit chain: %w", err)
	}

	records, err := src.ListRecords(ctx, chain)
	if err != nil {
		return ChainAudit{}, fmt.Errorf("audit chain: %w", err)
	}

	audit := ChainAudit{
		Counter:     counter,
		RecordCount: len(records),
		Violations:  []string{},
	}

	var prev wire.SequenceID
	for i, r := range records {
		if i > 0 && !r.SequenceID.After(prev) {
			audit.Violations = append(audit.Violations, fmt.Sprintf(
				"record %s committed after %s but is not greater", r.SequenceID, prev))
		}
		if want := wire.RecordKey(chain, r.SequenceID); r.Key != want {
			audit.Violations = append(audit.Violations, fmt.Sprintf(
				"record %s has key %q, want %q", r.SequenceID, r.Key, want))
		}
		if r.SequenceID.After(audit.HighestRecord) {
			audit.HighestRecord = r.SequenceID
		}
		prev = r.SequenceID
	}

	if counter.HighestSequenceSeen != prev {
		audit.Violations = append(audit.Violations, fmt.Sprintf(
			"watermark %s does not match last committed record %s", counter.HighestSequenceSeen, prev))
	}

	return audit, nil
}

// AuditEach audits every initialized chain in src.
func AuditEach(ctx context.Context, src AuditSource) ([]ChainAudit, error) {
	counters, err := src.Counters(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit all: %w", err)
	}

	audits := make([]ChainAudit, 0, len(counters))
	for _, c := range counters {
		a, err := Audit(ctx, src, c.SourceChainID)
		if err != nil {
			return nil, err
		}
		audits = append(audits, a)
	}
	return audits, nil
}
