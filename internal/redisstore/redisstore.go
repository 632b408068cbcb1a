package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/msggate/internal/admission"
	"github.com/roach88/msggate/internal/wire"
)

// DefaultNamespace prefixes every key written by the store.
const DefaultNamespace = "msggate"

const (
	fieldHighest       = "highest"
	fieldInitializedBy = "initialized_by"
	fieldGatewayRef    = "gateway_ref"
	fieldDigest        = "digest"
	fieldAttemptID     = "attempt_id"
)

// Store is the Redis implementation of admission.Store.
type Store struct {
	rdb *redis.Client
	ns  string
}

var _ admission.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithNamespace sets the key prefix. Tests use it to isolate runs.
func WithNamespace(ns string) Option {
	return func(s *Store) {
		s.ns = ns
	}
}

// New wraps an existing client.
func New(rdb *redis.Client, opts ...Option) *Store {
	s := &Store{rdb: rdb, ns: DefaultNamespace}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr string, opts ...Option) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return New(rdb, opts...), nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) counterKey(chain wire.ChainID) string {
	return s.ns + ":" + wire.CounterKey(chain)
}

func (s *Store) recordKey(chain wire.ChainID, seq wire.SequenceID) string {
	return s.ns + ":" + wire.RecordKey(chain, seq)
}

func (s *Store) recordIndexKey(chain wire.ChainID) string {
	return s.ns + ":records/" + wire.ChainHex(chain)
}

func (s *Store) countersKey() string { return s.ns + ":counters" }

func (s *Store) eventsKey() string { return s.ns + ":events" }

// CreateCounter implements admission.Store.
func (s *Store) CreateCounter(ctx context.Context, c admission.ChainCounter, ev admission.CounterInitialized) error {
	payload, err := wire.MarshalCanonical(ev.Payload())
	if err != nil {
		return fmt.Errorf("create counter: marshal event: %w", err)
	}
	key := s.counterKey(c.SourceChainID)

	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("check counter: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("counter %s: %w", c.Key, admission.ErrAlreadyInitialized)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				fieldHighest, c.HighestSequenceSeen.String(),
				fieldInitializedBy, c.InitializedBy,
				fieldGatewayRef, c.GatewayRef,
			)
			pipe.SAdd(ctx, s.countersKey(), strconv.FormatUint(uint64(c.SourceChainID), 10))
			s.appendEvent(ctx, pipe, ev, payload)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		// Someone else wrote the key between WATCH and EXEC.
		return fmt.Errorf("counter %s: %w", c.Key, admission.ErrAlreadyInitialized)
	}
	if err != nil {
		return fmt.Errorf("create counter: %w", err)
	}
	return nil
}

// CommitAdmission implements admission.Store.
func (s *Store) CommitAdmission(ctx context.Context, c admission.Commit) error {
	if !c.Next.HighestSequenceSeen.After(c.Previous.HighestSequenceSeen) {
		return fmt.Errorf("commit admission: watermark %s -> %s: %w",
			c.Previous.HighestSequenceSeen, c.Next.HighestSequenceSeen, admission.ErrSequenceTooOld)
	}
	if c.Record.SequenceID != c.Next.HighestSequenceSeen || c.Record.SourceChainID != c.Next.SourceChainID {
		return fmt.Errorf("commit admission: record %s does not match new watermark %s",
			c.Record.Key, c.Next.HighestSequenceSeen)
	}

	payload, err := wire.MarshalCanonical(c.Event.Payload())
	if err != nil {
		return fmt.Errorf("commit admission: marshal event: %w", err)
	}

	chain := c.Next.SourceChainID
	counterKey := s.counterKey(chain)
	recordKey := s.recordKey(chain, c.Record.SequenceID)

	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		highest, err := tx.HGet(ctx, counterKey, fieldHighest).Result()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("chain %s: %w", chain, admission.ErrCounterNotFound)
		}
		if err != nil {
			return fmt.Errorf("read counter: %w", err)
		}

		n, err := tx.Exists(ctx, recordKey).Result()
		if err != nil {
			return fmt.Errorf("check record: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("record %s: %w", c.Record.Key, admission.ErrDuplicateMessage)
		}

		if highest != c.Previous.HighestSequenceSeen.String() {
			return fmt.Errorf("chain %s watermark is %s, attempt read %s: %w",
				chain, highest, c.Previous.HighestSequenceSeen, admission.ErrConflict)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, recordKey,
				fieldDigest, c.Record.Digest.String(),
				fieldAttemptID, c.Record.AttemptID,
			)
			pipe.RPush(ctx, s.recordIndexKey(chain), c.Record.SequenceID.String())
			pipe.HSet(ctx, counterKey, fieldHighest, c.Next.HighestSequenceSeen.String())
			s.appendEvent(ctx, pipe, c.Event, payload)
			return nil
		})
		return err
	}, counterKey, recordKey)

	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("commit admission: chain %s: %w", chain, admission.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("commit admission: %w", err)
	}
	return nil
}

func (s *Store) appendEvent(ctx context.Context, pipe redis.Pipeliner, ev admission.Event, payload []byte) {
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: s.eventsKey(),
		Values: map[string]any{
			"kind":            ev.Kind(),
			"source_chain_id": strconv.FormatUint(uint64(ev.Chain()), 10),
			"payload":         string(payload),
		},
	})
}

// Counter implements admission.Store.
func (s *Store) Counter(ctx context.Context, chain wire.ChainID) (admission.ChainCounter, error) {
	fields, err := s.rdb.HGetAll(ctx, s.counterKey(chain)).Result()
	if err != nil {
		return admission.ChainCounter{}, fmt.Errorf("read counter: %w", err)
	}
	if len(fields) == 0 {
		return admission.ChainCounter{}, fmt.Errorf("chain %s: %w", chain, admission.ErrCounterNotFound)
	}
	highest, err := wire.ParseSequenceID(fields[fieldHighest])
	if err != nil {
		return admission.ChainCounter{}, fmt.Errorf("read counter: %w", err)
	}
	return admission.ChainCounter{
		SourceChainID:       chain,
		HighestSequenceSeen: highest,
		InitializedBy:       fields[fieldInitializedBy],
		GatewayRef:          fields[fieldGatewayRef],
		Key:                 wire.CounterKey(chain),
	}, nil
}

// Counters returns every initialized counter ordered by chain id.
func (s *Store) Counters(ctx context.Context) ([]admission.ChainCounter, error) {
	members, err := s.rdb.SMembers(ctx, s.countersKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list counters: %w", err)
	}
	chains := make([]wire.ChainID, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("list counters: bad member %q: %w", m, err)
		}
		chains = append(chains, wire.ChainID(id))
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })

	counters := make([]admission.ChainCounter, 0, len(chains))
	for _, chain := range chains {
		c, err := s.Counter(ctx, chain)
		if err != nil {
			return nil, err
		}
		counters = append(counters, c)
	}
	return counters, nil
}

// HasRecord implements admission.Store.
func (s *Store) HasRecord(ctx context.Context, chain wire.ChainID, seq wire.SequenceID) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.recordKey(chain, seq)).Result()
	if err != nil {
		return false, fmt.Errorf("check record: %w", err)
	}
	return n > 0, nil
}

// ErrRecordNotFound is returned by Record for ids that were never admitted.
var ErrRecordNotFound = errors.New("admission record not found")

// Record retrieves the admission record for (chain, seq).
func (s *Store) Record(ctx context.Context, chain wire.ChainID, seq wire.SequenceID) (admission.AdmissionRecord, error) {
	fields, err := s.rdb.HGetAll(ctx, s.recordKey(chain, seq)).Result()
	if err != nil {
		return admission.AdmissionRecord{}, fmt.Errorf("read record: %w", err)
	}
	if len(fields) == 0 {
		return admission.AdmissionRecord{}, fmt.Errorf("record %s: %w", wire.RecordKey(chain, seq), ErrRecordNotFound)
	}
	digest, err := wire.ParseDigest(fields[fieldDigest])
	if err != nil {
		return admission.AdmissionRecord{}, fmt.Errorf("read record: %w", err)
	}
	return admission.NewRecord(chain, seq, digest, fields[fieldAttemptID]), nil
}

// ListRecords returns the records of chain in commit order.
func (s *Store) ListRecords(ctx context.Context, chain wire.ChainID) ([]admission.AdmissionRecord, error) {
	ids, err := s.rdb.LRange(ctx, s.recordIndexKey(chain), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	records := make([]admission.AdmissionRecord, 0, len(ids))
	for _, id := range ids {
		seq, err := wire.ParseSequenceID(id)
		if err != nil {
			return nil, fmt.Errorf("list records: %w", err)
		}
		r, err := s.Record(ctx, chain, seq)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// Event is one entry of the events stream.
type Event struct {
	ID            string       `json:"id"`
	Kind          string       `json:"kind"`
	SourceChainID wire.ChainID `json:"source_chain_id"`
	Payload       string       `json:"payload"`
}

// Events returns up to count stream entries with id greater than after
// ("" or "0" for the beginning). A count <= 0 returns all of them.
func (s *Store) Events(ctx context.Context, after string, count int64) ([]Event, error) {
	start := "-"
	if after != "" && after != "0" {
		start = "(" + after
	}
	var msgs []redis.XMessage
	var err error
	if count > 0 {
		msgs, err = s.rdb.XRangeN(ctx, s.eventsKey(), start, "+", count).Result()
	} else {
		msgs, err = s.rdb.XRange(ctx, s.eventsKey(), start, "+").Result()
	}
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}

	events := make([]Event, 0, len(msgs))
	for _, m := range msgs {
		ev := Event{ID: m.ID}
		ev.Kind, _ = m.Values["kind"].(string)
		ev.Payload, _ = m.Values["payload"].(string)
		if raw, ok := m.Values["source_chain_id"].(string); ok {
			id, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("read events: entry %s: %w", m.ID, err)
			}
			ev.SourceChainID = wire.ChainID(id)
		}
		events = append(events, ev)
	}
	return events, nil
}
