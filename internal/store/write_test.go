package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/roach88/msggate/internal/admission"
	"github.com/roach88/msggate/internal/wire"
)

func TestCreateCounter_Basic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	initCounter(t, s, 42)

	c, err := s.Counter(ctx, 42)
	if err != nil {
		t.Fatalf("Counter() failed: %v", err)
	}
	if c.SourceChainID != 42 {
		t.Errorf("SourceChainID = %s, want 42", c.SourceChainID)
	}
	if !c.HighestSequenceSeen.IsZero() {
		t.Errorf("HighestSequenceSeen = %s, want 0", c.HighestSequenceSeen)
	}
	if c.Key != wire.CounterKey(42) {
		t.Errorf("Key = %q, want %q", c.Key, wire.CounterKey(42))
	}
	if c.InitializedBy != testGrant.Authority || c.GatewayRef != testGrant.GatewayRef {
		t.Errorf("grant = (%q, %q), want (%q, %q)",
			c.InitializedBy, c.GatewayRef, testGrant.Authority, testGrant.GatewayRef)
	}
}

func TestCreateCounter_AlreadyInitialized(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	initCounter(t, s, 42)
	admit(t, s, 42, wire.Seq(7))

	c := admission.NewChainCounter(42, testGrant)
	err := s.CreateCounter(ctx, c, admission.CounterInitialized{SourceChainID: 42})
	if !errors.Is(err, admission.ErrAlreadyInitialized) {
		t.Fatalf("second CreateCounter() = %v, want ErrAlreadyInitialized", err)
	}

	// Existing watermark is untouched.
	got, err := s.Counter(ctx, 42)
	if err != nil {
		t.Fatalf("Counter() failed: %v", err)
	}
	if got.HighestSequenceSeen != wire.Seq(7) {
		t.Errorf("watermark = %s, want 7", got.HighestSequenceSeen)
	}

	events, err := s.Events(ctx, 0, 0)
	if err != nil {
		t.Fatalf("Events() failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("got %d events, want 2 (one init, one admit)", len(events))
	}
}

func TestCreateCounter_MaxChainID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	initCounter(t, s, wire.MaxSupportedChainID)

	c, err := s.Counter(ctx, wire.MaxSupportedChainID)
	if err != nil {
		t.Fatalf("Counter() failed: %v", err)
	}
	if c.SourceChainID != wire.MaxSupportedChainID {
		t.Errorf("SourceChainID = %s, want %s", c.SourceChainID, wire.MaxSupportedChainID)
	}
}

func TestCreateCounter_Concurrent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := admission.NewChainCounter(9, testGrant)
			errs[i] = s.CreateCounter(ctx, c, admission.CounterInitialized{SourceChainID: 9, CounterRef: c.Key})
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, admission.ErrAlreadyInitialized):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if created != 1 {
		t.Errorf("%d initializations succeeded, want exactly 1", created)
	}
}

func TestCommitAdmission_Basic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	initCounter(t, s, 42)
	admit(t, s, 42, wire.Seq(5))

	c, err := s.Counter(ctx, 42)
	if err != nil {
		t.Fatalf("Counter() failed: %v", err)
	}
	if c.HighestSequenceSeen != wire.Seq(5) {
		t.Errorf("watermark = %s, want 5", c.HighestSequenceSeen)
	}

	r, err := s.Record(ctx, 42, wire.Seq(5))
	if err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if r.Key != wire.RecordKey(42, wire.Seq(5)) {
		t.Errorf("Key = %q, want %q", r.Key, wire.RecordKey(42, wire.Seq(5)))
	}
	if r.Digest != (wire.Digest{0x01}) {
		t.Errorf("Digest = %s, want 01...", r.Digest)
	}
	if r.AttemptID != "attempt-5" {
		t.Errorf("AttemptID = %q, want attempt-5", r.AttemptID)
	}
}

func TestCommitAdmission_Duplicate(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	initCounter(t, s, 42)
	prev, _ := s.Counter(ctx, 42)
	commit := buildCommit(t, prev, wire.Seq(5))
	if err := s.CommitAdmission(ctx, commit); err != nil {
		t.Fatalf("first commit failed: %v", err)
	}

	// Same commit again: the record exists, so this is a duplicate even
	// though the watermark snapshot is also stale.
	err := s.CommitAdmission(ctx, commit)
	if !errors.Is(err, admission.ErrDuplicateMessage) {
		t.Fatalf("replayed commit = %v, want ErrDuplicateMessage", err)
	}

	records, _ := s.ListRecords(ctx, 42)
	if len(records) != 1 {
		t.Errorf("got %d records, want 1", len(records))
	}
}

func TestCommitAdmission_StaleSnapshotConflicts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	initCounter(t, s, 42)
	stale, _ := s.Counter(ctx, 42)

	// Two attempts read watermark 0; 10 commits first.
	if err := s.CommitAdmission(ctx, buildCommit(t, stale, wire.Seq(10))); err != nil {
		t.Fatalf("commit 10 failed: %v", err)
	}
	err := s.CommitAdmission(ctx, buildCommit(t, stale, wire.Seq(11)))
	if !errors.Is(err, admission.ErrConflict) {
		t.Fatalf("stale commit = %v, want ErrConflict", err)
	}

	// The losing attempt left nothing behind.
	has, err := s.HasRecord(ctx, 42, wire.Seq(11))
	if err != nil {
		t.Fatalf("HasRecord() failed: %v", err)
	}
	if has {
		t.Error("record for losing attempt was written")
	}
	events, _ := s.Events(ctx, 0, 0)
	if len(events) != 2 {
		t.Errorf("got %d events, want 2", len(events))
	}
	c, _ := s.Counter(ctx, 42)
	if c.HighestSequenceSeen != wire.Seq(10) {
		t.Errorf("watermark = %s, want 10", c.HighestSequenceSeen)
	}
}

func TestCommitAdmission_CounterNotFound(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	prev := admission.NewChainCounter(77, testGrant)
	err := s.CommitAdmission(ctx, buildCommit(t, prev, wire.Seq(1)))
	if !errors.Is(err, admission.ErrCounterNotFound) {
		t.Fatalf("CommitAdmission() = %v, want ErrCounterNotFound", err)
	}
}

func TestCommitAdmission_RejectsMalformedCommit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	prev := initCounter(t, s, 42)

	t.Run("watermark does not advance", func(t *testing.T) {
		commit := buildCommit(t, prev, wire.Seq(3))
		commit.Next = prev
		err := s.CommitAdmission(ctx, commit)
		if !errors.Is(err, admission.ErrSequenceTooOld) {
			t.Errorf("CommitAdmission() = %v, want ErrSequenceTooOld", err)
		}
	})

	t.Run("record does not match watermark", func(t *testing.T) {
		commit := buildCommit(t, prev, wire.Seq(3))
		commit.Record = admission.NewRecord(42, wire.Seq(4), wire.Digest{}, "x")
		if err := s.CommitAdmission(ctx, commit); err == nil {
			t.Error("CommitAdmission() with mismatched record should fail")
		}
	})

	t.Run("chain mismatch", func(t *testing.T) {
		commit := buildCommit(t, prev, wire.Seq(3))
		commit.Record = admission.NewRecord(43, wire.Seq(3), wire.Digest{}, "x")
		if err := s.CommitAdmission(ctx, commit); err == nil {
			t.Error("CommitAdmission() with mismatched chain should fail")
		}
	})

	c, _ := s.Counter(ctx, 42)
	if !c.HighestSequenceSeen.IsZero() {
		t.Errorf("watermark = %s after rejected commits, want 0", c.HighestSequenceSeen)
	}
}

func TestCommitAdmission_ChainsAreIndependent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	initCounter(t, s, 1)
	initCounter(t, s, 2)
	admit(t, s, 1, wire.Seq(100))
	admit(t, s, 2, wire.Seq(5))
	admit(t, s, 2, wire.Seq(100))

	for chain, want := range map[wire.ChainID]wire.SequenceID{1: wire.Seq(100), 2: wire.Seq(100)} {
		c, err := s.Counter(ctx, chain)
		if err != nil {
			t.Fatalf("Counter(%s) failed: %v", chain, err)
		}
		if c.HighestSequenceSeen != want {
			t.Errorf("chain %s watermark = %s, want %s", chain, c.HighestSequenceSeen, want)
		}
	}
}

func TestCommitAdmission_LargeSequenceIDs(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	initCounter(t, s, 42)
	// High half set: BLOB order must follow numeric order.
	low := wire.NewSequenceID(0, ^uint64(0))
	high := wire.NewSequenceID(1, 0)
	admit(t, s, 42, low)
	admit(t, s, 42, high)

	c, _ := s.Counter(ctx, 42)
	if c.HighestSequenceSeen != high {
		t.Errorf("watermark = %s, want %s", c.HighestSequenceSeen, high)
	}
}

// Concurrent commits from one snapshot: exactly one wins, the rest conflict.
func TestCommitAdmission_ConcurrentSameSnapshot(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	initCounter(t, s, 42)
	prev, _ := s.Counter(ctx, 42)

	const workers = 10
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		commit := buildCommit(t, prev, wire.Seq(uint64(i+1)))
		wg.Add(1)
		go func(i int, c admission.Commit) {
			defer wg.Done()
			errs[i] = s.CommitAdmission(ctx, c)
		}(i, commit)
	}
	wg.Wait()

	wins := 0
	var winner wire.SequenceID
	for i, err := range errs {
		switch {
		case err == nil:
			wins++
			winner = wire.Seq(uint64(i + 1))
		case errors.Is(err, admission.ErrConflict):
		default:
			t.Errorf("worker %d: unexpected error %v", i, err)
		}
	}
	if wins != 1 {
		t.Fatalf("%d commits won, want exactly 1", wins)
	}

	c, _ := s.Counter(ctx, 42)
	if c.HighestSequenceSeen != winner {
		t.Errorf("watermark = %s, want winner %s", c.HighestSequenceSeen, winner)
	}
	records, _ := s.ListRecords(ctx, 42)
	if len(records) != 1 {
		t.Errorf("got %d records, want 1", len(records))
	}
}
