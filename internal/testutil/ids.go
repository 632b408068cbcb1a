package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates attempt ids "<prefix>-0001", "<prefix>-0002", ...
//
// Unlike admission.FixedGenerator it never runs out, and it can be reset so
// the same scenario produces identical ids on every run.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. An empty prefix becomes "attempt".
//
// The first call to Generate() returns "<prefix>-0001".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "attempt"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate implements admission.AttemptIDGenerator.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

// Issued returns how many ids have been generated.
func (g *SequentialIDs) Issued() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}

// Reset restarts numbering at 1.
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
