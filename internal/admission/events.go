package admission

import (
	"context"

	"go.uber.org/zap"

	"github.com/roach88/msggate/internal/wire"
)

// Event kinds.
const (
	KindCounterInitialized = "CounterInitialized"
	KindMessageAdmitted    = "MessageAdmitted"
)

// Event is a notification for downstream observers. Events are
// observational only; they carry no part of the consistency contract.
type Event interface {
	Kind() string
	Chain() wire.ChainID
	// Payload returns the event fields for canonical serialization.
	Payload() map[string]any
}

// CounterInitialized is emitted when a chain counter is created.
type CounterInitialized struct {
	SourceChainID       wire.ChainID
	CounterRef          string
	Authority           string
	GatewayRef          string
	HighestSequenceSeen wire.SequenceID // always zero
}

func (e CounterInitialized) Kind() string        { return KindCounterInitialized }
func (e CounterInitialized) Chain() wire.ChainID { return e.SourceChainID }

func (e CounterInitialized) Payload() map[string]any {
	return map[string]any{
		"source_chain_id":       e.SourceChainID,
		"counter_ref":           e.CounterRef,
		"authority":             e.Authority,
		"gateway_ref":           e.GatewayRef,
		"highest_sequence_seen": e.HighestSequenceSeen,
	}
}

// MessageAdmitted is emitted when a message is committed.
type MessageAdmitted struct {
	SequenceID    wire.SequenceID
	SourceChainID wire.ChainID
}

func (e MessageAdmitted) Kind() string        { return KindMessageAdmitted }
func (e MessageAdmitted) Chain() wire.ChainID { return e.SourceChainID }

func (e MessageAdmitted) Payload() map[string]any {
	return map[string]any{
		"message_sequence_id": e.SequenceID,
		"source_chain_id":     e.SourceChainID,
	}
}

// EventSink receives events. Emit is fire-and-forget: it must not block
// for long and has no way to fail the operation that produced the event.
type EventSink interface {
	Emit(ctx context.Context, ev Event)
}

// DiscardSink drops every event.
type DiscardSink struct{}

// Emit implements EventSink.
func (DiscardSink) Emit(context.Context, Event) {}

// LogSink writes events to a zap logger.
type LogSink struct {
	Logger *zap.Logger
}

// Emit implements EventSink.
func (s LogSink) Emit(_ context.Context, ev Event) {
	fields := []zap.Field{zap.String("event", ev.Kind())}
	for k, v := range ev.Payload() {
		fields = append(fields, zap.Any(k, v))
	}
	s.Logger.Info("event", fields...)
}

// MultiSink fans events out to several sinks in order.
type MultiSink []EventSink

// Emit implements EventSink.
func (m MultiSink) Emit(ctx context.Context, ev Event) {
	for _, s := range m {
		s.Emit(ctx, ev)
	}
}
