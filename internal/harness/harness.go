package harness

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/msggate/internal/admission"
	"github.com/roach88/msggate/internal/store"
	"github.com/roach88/msggate/internal/testutil"
	"github.com/roach88/msggate/internal/wire"
)

// Harness is the test execution engine.
// It runs scenarios with sequential attempt ids and fixed signer keys.
type Harness struct {
	store       *store.Store
	initializer *admission.Initializer
	controller  *admission.Controller
	authority   string
	logger      *zap.Logger
}

// Option configures a scenario run.
type Option func(*runConfig)

type runConfig struct {
	logger   *zap.Logger
	observer admission.Observer
}

// WithLogger sets the logger handed to the admission components.
// Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(c *runConfig) {
		c.logger = l
	}
}

// WithObserver reports every attempt and initialization to o.
func WithObserver(o admission.Observer) Option {
	return func(c *runConfig) {
		c.observer = o
	}
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Build the authority, signature policy, initializer and controller
// 3. Execute setup steps (any rejection aborts the run)
// 4. Execute flow steps with expect validation
// 5. Evaluate assertions and return the result
//
// The returned error reports a broken scenario or environment; expectation
// and assertion failures are recorded in the Result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	cfg := runConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(st, scenario, cfg)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	result := NewResult()

	if err := h.executeSetup(ctx, scenario.Setup, result); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

func newHarness(st *store.Store, scenario *Scenario, cfg runConfig) (*Harness, error) {
	gw := scenario.Gateway

	authority := gw.Authority
	if authority == "" {
		authority = DefaultAuthority
	}
	ref := gw.GatewayRef
	if ref == "" {
		ref = "gateway-" + scenario.Name
	}

	var initOpts []admission.InitializerOption
	ctrlOpts := []admission.Option{
		admission.WithLogger(cfg.logger),
		admission.WithAttemptIDs(testutil.NewSequentialIDs(scenario.AttemptPrefix)),
		admission.WithDestination(wire.ChainID(gw.DestChainID)),
	}
	initOpts = append(initOpts, admission.WithInitializerLogger(cfg.logger))
	if cfg.observer != nil {
		ctrlOpts = append(ctrlOpts, admission.WithObserver(cfg.observer))
		initOpts = append(initOpts, admission.WithInitializerObserver(cfg.observer))
	}

	policy, err := scenarioPolicy(gw, cfg.logger)
	if err != nil {
		return nil, fmt.Errorf("signature policy: %w", err)
	}

	controller, err := admission.New(st, policy, ctrlOpts...)
	if err != nil {
		return nil, err
	}

	return &Harness{
		store: st,
		initializer: admission.NewInitializer(admission.StaticAuthority{
			Identity:   authority,
			Enabled:    !gw.Disabled,
			GatewayRef: ref,
		}, st, initOpts...),
		controller: controller,
		authority:  authority,
		logger:     cfg.logger,
	}, nil
}

// scenarioPolicy enforces signatures from the configured test signers, or
// bypasses checks when there are none.
func scenarioPolicy(gw GatewaySetup, logger *zap.Logger) (*admission.Policy, error) {
	if len(gw.Signers) == 0 {
		return admission.DisabledPolicy(logger), nil
	}
	threshold := gw.Threshold
	if threshold == 0 {
		threshold = 1
	}
	return admission.NewPolicy(admission.PolicyConfig{
		Enabled:   true,
		Threshold: threshold,
		Signers:   testutil.PublicKeys(signers(gw.Signers)...),
	}, admission.Ed25519Verifier{}, logger)
}

// executeSetup runs all setup steps. Setup steps must succeed.
func (h *Harness) executeSetup(ctx context.Context, setup []Step, result *Result) error {
	for i, step := range setup {
		ev, stepErr, err := h.execute(ctx, PhaseSetup, i, step)
		if err != nil {
			return err
		}
		result.AddTrace(ev)
		if stepErr != nil {
			return fmt.Errorf("setup step %d (%s): %w", i, ev.Op, stepErr)
		}
	}
	return nil
}

// executeFlow runs all flow steps and validates expect clauses.
func (h *Harness) executeFlow(ctx context.Context, flow []Step, result *Result) error {
	for i, step := range flow {
		ev, _, err := h.execute(ctx, PhaseFlow, i, step)
		if err != nil {
			return err
		}
		result.AddTrace(ev)

		if step.Expect == nil {
			continue
		}
		if ev.Code != step.Expect.Code {
			result.AddError(fmt.Sprintf("flow[%d] %s: expected %s, got %s", i, ev.Op, step.Expect.Code, ev.Code))
		}
		if step.Expect.Watermark != "" {
			want := wire.MustParseSequenceID(step.Expect.Watermark).String()
			if ev.Watermark != want {
				result.AddError(fmt.Sprintf("flow[%d] %s: expected watermark %s, got %q", i, ev.Op, want, ev.Watermark))
			}
		}

		h.logger.Debug("flow step validated",
			zap.Int("step", i),
			zap.String("op", ev.Op),
			zap.String("expected_code", step.Expect.Code),
			zap.String("actual_code", ev.Code),
		)
	}
	return nil
}

// execute runs one step. stepErr is the admission outcome; err is a failure
// of the harness itself.
func (h *Harness) execute(ctx context.Context, phase string, i int, step Step) (ev TraceEvent, stepErr error, err error) {
	ev = TraceEvent{Phase: phase, Step: i}

	switch {
	case step.InitCounter != nil:
		requester := step.InitCounter.Requester
		if requester == "" {
			requester = h.authority
		}
		ev.Op = OpInitCounter
		ev.SourceChainID = wire.ChainID(step.InitCounter.Chain)
		_, stepErr = h.initializer.InitializeCounter(ctx, ev.SourceChainID, requester)

	case step.Admit != nil:
		msg := buildMessage(step.Admit)
		ev.Op = OpAdmit
		ev.SourceChainID = msg.SourceChainID
		ev.SequenceID = msg.SequenceID.String()
		var adm admission.Admission
		adm, stepErr = h.controller.Admit(ctx, msg)
		if stepErr == nil {
			ev.AttemptID = adm.AttemptID
			ev.Digest = adm.Digest.String()
		}
	}

	ev.Code = outcomeCode(stepErr)
	ev.Watermark, err = h.watermark(ctx, ev.SourceChainID)
	if err != nil {
		return ev, stepErr, fmt.Errorf("%s step %d: %w", phase, i, err)
	}
	return ev, stepErr, nil
}

func (h *Harness) watermark(ctx context.Context, chain wire.ChainID) (string, error) {
	c, err := h.store.Counter(ctx, chain)
	if errors.Is(err, admission.ErrCounterNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return c.HighestSequenceSeen.String(), nil
}

func outcomeCode(err error) string {
	if err == nil {
		return CodeOK
	}
	return string(admission.CodeOf(err))
}

// buildMessage applies the step's overrides to testutil.NewMessage.
// The sequence id was checked by validateScenario.
func buildMessage(a *AdmitStep) wire.Message {
	msg := testutil.NewMessage(wire.ChainID(a.Chain), 0)
	msg.SequenceID = wire.MustParseSequenceID(a.SequenceID)

	if a.DestChain != nil {
		msg.DestChainID = wire.ChainID(*a.DestChain)
	}
	if a.Sender != nil {
		msg.Sender = []byte(*a.Sender)
	}
	if a.Recipient != nil {
		msg.Recipient = []byte(*a.Recipient)
	}
	if a.Payload != nil {
		msg.OnChainPayload = []byte(*a.Payload)
	}
	if a.PayloadRef != nil {
		msg.OffChainPayloadRef = []byte(*a.PayloadRef)
	}

	switch a.Oversize {
	case "sender":
		msg.Sender = testutil.Oversized(wire.MaxSenderSize, 1)
	case "recipient":
		msg.Recipient = testutil.Oversized(wire.MaxRecipientSize, 1)
	case "payload":
		msg.OnChainPayload = testutil.Oversized(wire.MaxOnChainDataSize, 1)
	case "payload_ref":
		msg.OffChainPayloadRef = testutil.Oversized(wire.MaxOffChainDataSize, 1)
	}

	if len(a.SignWith) > 0 {
		msg = testutil.Signed(msg, signers(a.SignWith)...)
	}
	return msg
}

func signers(seeds []int) []testutil.Signer {
	out := make([]testutil.Signer, len(seeds))
	for i, seed := range seeds {
		out[i] = testutil.NewSigner(byte(seed))
	}
	return out
}
