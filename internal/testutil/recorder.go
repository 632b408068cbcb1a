package testutil

import (
	"context"
	"sync"

	"github.com/roach88/msggate/internal/admission"
)

// RecordingSink is an admission.EventSink that keeps every event.
//
// Thread-safety: safe for concurrent use.
type RecordingSink struct {
	mu     sync.Mutex
	events []admission.Event
}

// Emit implements admission.EventSink.
func (s *RecordingSink) Emit(_ context.Context, ev admission.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

// Events returns a copy of the recorded events.
func (s *RecordingSink) Events() []admission.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]admission.Event(nil), s.events...)
}

// Kinds returns the kinds of the recorded events in order.
func (s *RecordingSink) Kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]string, len(s.events))
	for i, ev := range s.events {
		kinds[i] = ev.Kind()
	}
	return kinds
}

// StageRecorder collects the stages passed by admission attempts.
// Pass Hook to admission.WithStageHook.
type StageRecorder struct {
	mu     sync.Mutex
	stages []admission.Stage
}

// Hook records s.
func (r *StageRecorder) Hook(s admission.Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, s)
}

// Stages returns the recorded stages in order.
func (r *StageRecorder) Stages() []admission.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]admission.Stage(nil), r.stages...)
}

// Reached reports whether any attempt passed stage s.
func (r *StageRecorder) Reached(s admission.Stage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.stages {
		if got == s {
			return true
		}
	}
	return false
}

// Reset forgets recorded stages.
func (r *StageRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = nil
}
