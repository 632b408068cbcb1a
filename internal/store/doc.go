// Package store provides SQLite-backed durable storage for admission state.
//
// The store holds three tables:
//   - chain_counters: one watermark per source chain
//   - admission_records: one row per admitted (chain, sequence id), append-only
//   - events: outbox of CounterInitialized / MessageAdmitted notifications
//
// # Critical Patterns
//
// Atomic create-if-absent:
//   - INSERT ... ON CONFLICT DO NOTHING, then RowsAffected decides
//   - No SELECT-then-INSERT window, so two writers can never both create
//
// Compare-and-swap watermark:
//   - UPDATE ... WHERE highest_sequence_seen = <value the attempt read>
//   - Zero rows affected means another attempt committed first (ErrConflict)
//
// All-or-nothing commit:
//   - record insert, counter CAS and event append share one transaction
//   - any failure rolls back every write
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: records must reference an initialized counter
package store
