package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/msggate/internal/admission"
	"github.com/roach88/msggate/internal/store"
	"github.com/roach88/msggate/internal/wire"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for i, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s/%d %s chain=%s", i+1, event.Phase, event.Step, event.Op, event.SourceChainID)
		if event.SequenceID != "" {
			fmt.Fprintf(&buf, " seq=%s", event.SequenceID)
		}
		fmt.Fprintf(&buf, " -> %s\n", event.Code)
	}

	return buf.String()
}

// AssertionContext provides access to the final state.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns the failure messages, empty if every assertion held.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertWatermark, AssertRecordExists, AssertRecordAbsent,
			AssertRecordCount, AssertEventCount, AssertAuditConsistent:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires database context", i, assertion.Type)
			} else {
				err = assertState(actx.Ctx, actx.Store, result.Trace, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	return errs
}

// assertTraceContains checks that some trace event matches the assertion's
// op and code, and its chain and sequence id when given.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Op != assertion.Op {
			continue
		}
		if assertion.Chain != 0 && event.SourceChainID != wire.ChainID(assertion.Chain) {
			continue
		}
		if assertion.SequenceID != "" && !sameSequence(event.SequenceID, assertion.SequenceID) {
			continue
		}
		if assertion.Code != "" && event.Code != assertion.Code {
			continue
		}
		return nil
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("%s chain=%d seq=%q code=%q", assertion.Op, assertion.Chain, assertion.SequenceID, assertion.Code),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceCount checks that exactly Count trace events carry Code.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Code == assertion.Code && (assertion.Op == "" || event.Op == assertion.Op) {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d events with code %s", assertion.Count, assertion.Code),
			Actual:   fmt.Sprintf("%d events", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertState checks the assertion against the store.
func assertState(ctx context.Context, st *store.Store, trace []TraceEvent, assertion Assertion) error {
	chain := wire.ChainID(assertion.Chain)
	fail := func(expected, actual string) error {
		return &AssertionError{Type: assertion.Type, Expected: expected, Actual: actual, Trace: trace}
	}

	switch assertion.Type {
	case AssertWatermark:
		want := wire.MustParseSequenceID(assertion.Equals)
		c, err := st.Counter(ctx, chain)
		if errors.Is(err, admission.ErrCounterNotFound) {
			return fail(fmt.Sprintf("chain %s watermark %s", chain, want), "no counter")
		}
		if err != nil {
			return fmt.Errorf("%s: %w", assertion.Type, err)
		}
		if c.HighestSequenceSeen != want {
			return fail(fmt.Sprintf("chain %s watermark %s", chain, want), c.HighestSequenceSeen.String())
		}

	case AssertRecordExists, AssertRecordAbsent:
		seq := wire.MustParseSequenceID(assertion.SequenceID)
		found, err := st.HasRecord(ctx, chain, seq)
		if err != nil {
			return fmt.Errorf("%s: %w", assertion.Type, err)
		}
		want := assertion.Type == AssertRecordExists
		if found != want {
			return fail(fmt.Sprintf("record %s exists=%t", wire.RecordKey(chain, seq), want),
				fmt.Sprintf("exists=%t", found))
		}

	case AssertRecordCount:
		records, err := st.ListRecords(ctx, chain)
		if err != nil {
			return fmt.Errorf("%s: %w", assertion.Type, err)
		}
		if len(records) != assertion.Count {
			return fail(fmt.Sprintf("%d records on chain %s", assertion.Count, chain),
				fmt.Sprintf("%d records", len(records)))
		}

	case AssertEventCount:
		events, err := st.Events(ctx, 0, 0)
		if err != nil {
			return fmt.Errorf("%s: %w", assertion.Type, err)
		}
		count := 0
		for _, ev := range events {
			if assertion.Kind == "" || ev.Kind == assertion.Kind {
				count++
			}
		}
		if count != assertion.Count {
			return fail(fmt.Sprintf("%d %q events", assertion.Count, assertion.Kind),
				fmt.Sprintf("%d events", count))
		}

	case AssertAuditConsistent:
		audits, err := st.AuditAll(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", assertion.Type, err)
		}
		var violations []string
		for _, a := range audits {
			for _, v := range a.Violations {
				violations = append(violations, fmt.Sprintf("chain %s: %s", a.Counter.SourceChainID, v))
			}
		}
		if len(violations) > 0 {
			return fail("no audit violations", strings.Join(violations, "; "))
		}
	}

	return nil
}

func sameSequence(a, b string) bool {
	x, errX := wire.ParseSequenceID(a)
	y, errY := wire.ParseSequenceID(b)
	return errX == nil && errY == nil && x == y
}
