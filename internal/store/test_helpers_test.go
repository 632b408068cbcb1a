package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/msggate/internal/admission"
	"github.com/roach88/msggate/internal/wire"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testGrant = admission.Grant{Authority: "gateway-authority", GatewayRef: "gateway-1"}

// initCounter creates the counter for chain and returns it.
func initCounter(t *testing.T, s *Store, chain wire.ChainID) admission.ChainCounter {
	t.Helper()
	c := admission.NewChainCounter(chain, testGrant)
	ev := admission.CounterInitialized{
		SourceChainID: chain,
		CounterRef:    c.Key,
		Authority:     testGrant.Authority,
		GatewayRef:    testGrant.GatewayRef,
	}
	if err := s.CreateCounter(context.Background(), c, ev); err != nil {
		t.Fatalf("CreateCounter(%s) failed: %v", chain, err)
	}
	return c
}

// buildCommit builds the Commit that advances prev to seq.
func buildCommit(t *testing.T, prev admission.ChainCounter, seq wire.SequenceID) admission.Commit {
	t.Helper()
	next, err := prev.Advance(seq)
	if err != nil {
		t.Fatalf("Advance(%s) failed: %v", seq, err)
	}
	chain := prev.SourceChainID
	return admission.Commit{
		Previous: prev,
		Next:     next,
		Record:   admission.NewRecord(chain, seq, wire.Digest{0x01}, "attempt-"+seq.String()),
		Event:    admission.MessageAdmitted{SequenceID: seq, SourceChainID: chain},
	}
}

// admit reads the current counter and commits seq on top of it.
func admit(t *testing.T, s *Store, chain wire.ChainID, seq wire.SequenceID) {
	t.Helper()
	ctx := context.Background()
	prev, err := s.Counter(ctx, chain)
	if err != nil {
		t.Fatalf("Counter(%s) failed: %v", chain, err)
	}
	if err := s.CommitAdmission(ctx, buildCommit(t, prev, seq)); err != nil {
		t.Fatalf("CommitAdmission(%s, %s) failed: %v", chain, seq, err)
	}
}
