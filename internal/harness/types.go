package harness

import "github.com/roach88/msggate/internal/wire"

// Trace phases.
const (
	PhaseSetup = "setup"
	PhaseFlow  = "flow"
)

// Step operations.
const (
	OpInitCounter = "init_counter"
	OpAdmit       = "admit"
)

// CodeOK is the trace code of a step that succeeded.
const CodeOK = "OK"

// TraceEvent is the observed outcome of one setup or flow step.
type TraceEvent struct {
	Phase         string       `json:"phase"`
	Step          int          `json:"step"`
	Op            string       `json:"op"`
	SourceChainID wire.ChainID `json:"source_chain_id"`
	SequenceID    string       `json:"sequence_id,omitempty"`

	// Code is CodeOK or the admission error code of the rejection.
	Code string `json:"code"`

	// Watermark is the chain's watermark after the step, empty if the chain
	// has no counter.
	Watermark string `json:"watermark,omitempty"`

	// AttemptID and Digest are set for admitted messages only.
	AttemptID string `json:"attempt_id,omitempty"`
	Digest    string `json:"digest,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per executed step, setup first.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends ev to the trace.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
