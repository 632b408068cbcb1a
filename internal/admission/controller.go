package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/msggate/internal/wire"
)

// EnvProduction is the environment name in which disabled signature
// enforcement is refused.
const EnvProduction = "production"

// Admission is the outcome of a successful Admit.
type Admission struct {
	AttemptID         string          `json:"attempt_id"`
	SourceChainID     wire.ChainID    `json:"source_chain_id"`
	SequenceID        wire.SequenceID `json:"message_sequence_id"`
	Digest            wire.Digest     `json:"digest"`
	PreviousWatermark wire.SequenceID `json:"previous_watermark"`
	Watermark         wire.SequenceID `json:"watermark"`
}

// Controller runs admission attempts.
//
// Thread-safety: Admit is safe for concurrent use. Attempts on the same
// chain are linearized by the Store's compare-and-swap commit; attempts on
// different chains do not interact.
type Controller struct {
	store       Store
	policy      *Policy
	sink        EventSink
	observer    Observer
	ids         AttemptIDGenerator
	logger      *zap.Logger
	destination wire.ChainID
	environment string
	stageHook   func(Stage)
	retries     int
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithEventSink sets where MessageAdmitted events are sent after commit.
func WithEventSink(s EventSink) Option {
	return func(c *Controller) {
		c.sink = s
	}
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		c.observer = o
	}
}

// WithAttemptIDs overrides the attempt id generator (default UUIDv7).
func WithAttemptIDs(g AttemptIDGenerator) Option {
	return func(c *Controller) {
		c.ids = g
	}
}

// WithDestination restricts admission to messages addressed to chain.
// Zero accepts any destination.
func WithDestination(chain wire.ChainID) Option {
	return func(c *Controller) {
		c.destination = chain
	}
}

// WithEnvironment names the deployment environment. In EnvProduction,
// New fails unless the policy enforces signatures.
func WithEnvironment(env string) Option {
	return func(c *Controller) {
		c.environment = env
	}
}

// WithStageHook registers a function called each time an attempt passes a
// gate. Used by tests to observe how far an attempt got.
func WithStageHook(fn func(Stage)) Option {
	return func(c *Controller) {
		c.stageHook = fn
	}
}

// WithConflictRetries re-runs an attempt up to n more times when its commit
// loses a race (ErrConflict). Each retry starts from a fresh counter read,
// so it ends admitted or with a definitive rejection such as
// ErrSequenceTooOld. Default 0: conflicts are returned to the caller.
func WithConflictRetries(n int) Option {
	return func(c *Controller) {
		c.retries = n
	}
}

// New creates a Controller.
func New(store Store, policy *Policy, opts ...Option) (*Controller, error) {
	if store == nil {
		return nil, errors.New("admission: nil store")
	}
	if policy == nil {
		return nil, errors.New("admission: nil signature policy")
	}

	c := &Controller{
		store:     store,
		policy:    policy,
		sink:      DiscardSink{},
		observer:  nopObserver{},
		ids:       UUIDv7Generator{},
		logger:    zap.NewNop(),
		stageHook: func(Stage) {},
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.environment == EnvProduction {
		if err := policy.AssertEnforced(); err != nil {
			return nil, fmt.Errorf("admission: refusing to start in %s: %w", EnvProduction, err)
		}
	}
	if !policy.Enabled() {
		c.logger.Warn("admission controller running without signature enforcement",
			zap.String("environment", c.environment),
		)
	}

	return c, nil
}

// Admit runs msg through every gate and commits it, or rejects it with an
// *Error leaving storage unchanged.
func (c *Controller) Admit(ctx context.Context, msg wire.Message) (Admission, error) {
	start := time.Now()
	adm := Admission{
		AttemptID:     c.ids.Generate(),
		SourceChainID: msg.SourceChainID,
		SequenceID:    msg.SequenceID,
	}

	reached, err := c.admit(ctx, msg, &adm)
	for retry := 1; retry <= c.retries && IsConflict(err); retry++ {
		c.logger.Debug("admission conflict, retrying",
			zap.String("attempt_id", adm.AttemptID),
			zap.Stringer("source_chain_id", msg.SourceChainID),
			zap.Int("retry", retry),
		)
		reached, err = c.admit(ctx, msg, &adm)
	}
	c.observer.AdmissionAttempt(msg.SourceChainID, reached, CodeOf(err), time.Since(start))

	if err != nil {
		c.logger.Info("message rejected",
			zap.String("attempt_id", adm.AttemptID),
			zap.Stringer("source_chain_id", msg.SourceChainID),
			zap.Stringer("message_sequence_id", msg.SequenceID),
			zap.Stringer("stage", reached),
			zap.String("code", string(CodeOf(err))),
			zap.Error(err),
		)
		return Admission{}, err
	}

	c.logger.Info("message admitted",
		zap.String("attempt_id", adm.AttemptID),
		zap.Stringer("source_chain_id", msg.SourceChainID),
		zap.Stringer("message_sequence_id", msg.SequenceID),
		zap.Stringer("digest", adm.Digest),
		zap.Stringer("watermark", adm.Watermark),
	)
	return adm, nil
}

// admit returns the last gate passed and the rejection, if any.
func (c *Controller) admit(ctx context.Context, msg wire.Message, adm *Admission) (Stage, error) {
	chain, seq := msg.SourceChainID, msg.SequenceID
	c.enter(StageReceived)

	if err := validate(msg, c.destination); err != nil {
		return StageReceived, reject(StageValidated, chain, seq, err)
	}
	c.enter(StageValidated)

	adm.Digest = wire.MessageDigest(msg)
	c.enter(StageDigestComputed)

	if err := c.policy.Check(adm.Digest, msg.Signatures); err != nil {
		return StageDigestComputed, reject(StageSignaturePolicyChecked, chain, seq, err)
	}
	c.enter(StageSignaturePolicyChecked)

	counter, err := c.store.Counter(ctx, chain)
	if err != nil {
		return StageSignaturePolicyChecked, reject(StageOrderingChecked, chain, seq, fmt.Errorf("read counter: %w", err))
	}

	// Uniqueness before ordering: a replay of an admitted id is reported as
	// a duplicate even though it also fails the watermark check.
	exists, err := c.store.HasRecord(ctx, chain, seq)
	if err != nil {
		return StageSignaturePolicyChecked, reject(StageOrderingChecked, chain, seq, fmt.Errorf("check record: %w", err))
	}
	if exists {
		return StageSignaturePolicyChecked, reject(StageOrderingChecked, chain, seq,
			fmt.Errorf("record %s: %w", wire.RecordKey(chain, seq), ErrDuplicateMessage))
	}

	next, err := counter.Advance(seq)
	if err != nil {
		return StageSignaturePolicyChecked, reject(StageOrderingChecked, chain, seq, err)
	}
	c.enter(StageOrderingChecked)

	commit := Commit{
		Previous: counter,
		Next:     next,
		Record:   NewRecord(chain, seq, adm.Digest, adm.AttemptID),
		Event:    MessageAdmitted{SequenceID: seq, SourceChainID: chain},
	}
	if err := c.store.CommitAdmission(ctx, commit); err != nil {
		return StageOrderingChecked, reject(StageCommitted, chain, seq, fmt.Errorf("commit: %w", err))
	}
	c.enter(StageCommitted)

	adm.PreviousWatermark = counter.HighestSequenceSeen
	adm.Watermark = next.HighestSequenceSeen
	c.sink.Emit(ctx, commit.Event)

	return StageCommitted, nil
}

func (c *Controller) enter(s Stage) {
	c.stageHook(s)
}
