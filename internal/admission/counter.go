package admission

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/msggate/internal/wire"
)

// ChainCounter is the admission watermark of one source chain.
//
// INVARIANTS:
//   - exactly one counter exists per SourceChainID
//   - HighestSequenceSeen never decreases
//   - SourceChainID never changes after creation
type ChainCounter struct {
	SourceChainID       wire.ChainID    `json:"source_chain_id"`
	HighestSequenceSeen wire.SequenceID `json:"highest_sequence_seen"`

	// InitializedBy and GatewayRef record the authorization the counter
	// was created under.
	InitializedBy string `json:"initialized_by"`
	GatewayRef    string `json:"gateway_ref"`

	// Key is the deterministic storage key (wire.CounterKey).
	Key string `json:"key"`
}

// NewChainCounter returns a counter for chain with watermark zero.
func NewChainCounter(chain wire.ChainID, grant Grant) ChainCounter {
	return ChainCounter{
		SourceChainID: chain,
		InitializedBy: grant.Authority,
		GatewayRef:    grant.GatewayRef,
		Key:           wire.CounterKey(chain),
	}
}

// Advance returns c with its watermark moved to candidate.
//
// The check is strictly greater-than: an id equal to the watermark is a
// replay, not an admission. Gaps are allowed.
func (c ChainCounter) Advance(candidate wire.SequenceID) (ChainCounter, error) {
	if !candidate.After(c.HighestSequenceSeen) {
		return c, fmt.Errorf("advance chain %s to %s (watermark %s): %w",
			c.SourceChainID, candidate, c.HighestSequenceSeen, ErrSequenceTooOld)
	}
	c.HighestSequenceSeen = candidate
	return c, nil
}

// Initializer creates chain counters. It is the only way a counter comes
// into existence.
type Initializer struct {
	authority Authority
	store     Store
	sink      EventSink
	observer  Observer
	logger    *zap.Logger
}

// InitializerOption configures an Initializer.
type InitializerOption func(*Initializer)

// WithInitializerLogger sets the logger.
func WithInitializerLogger(l *zap.Logger) InitializerOption {
	return func(i *Initializer) {
		i.logger = l
	}
}

// WithInitializerEventSink sets where CounterInitialized events are sent.
func WithInitializerEventSink(s EventSink) InitializerOption {
	return func(i *Initializer) {
		i.sink = s
	}
}

// WithInitializerObserver sets the metrics observer.
func WithInitializerObserver(o Observer) InitializerOption {
	return func(i *Initializer) {
		i.observer = o
	}
}

// NewInitializer returns an Initializer that checks requesters against
// authority before touching store.
func NewInitializer(authority Authority, store Store, opts ...InitializerOption) *Initializer {
	i := &Initializer{
		authority: authority,
		store:     store,
		sink:      DiscardSink{},
		observer:  nopObserver{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// InitializeCounter creates the counter for chain on behalf of requester.
//
// Checks, in order: requester is the gateway authority (ErrUnauthorized),
// the gateway is enabled (ErrSystemDisabled), 0 < chain <= MaxSupportedChainID
// (ErrInvalidChainID), no counter exists yet (ErrAlreadyInitialized).
// Nothing is written unless every check passes.
func (i *Initializer) InitializeCounter(ctx context.Context, chain wire.ChainID, requester string) (ChainCounter, error) {
	start := time.Now()
	counter, err := i.initialize(ctx, chain, requester)
	i.observer.CounterInitialization(chain, CodeOf(err), time.Since(start))
	if err != nil {
		i.logger.Info("counter initialization rejected",
			zap.Stringer("source_chain_id", chain),
			zap.String("requester", requester),
			zap.String("code", string(CodeOf(err))),
			zap.Error(err),
		)
		return ChainCounter{}, err
	}
	return counter, nil
}

func (i *Initializer) initialize(ctx context.Context, chain wire.ChainID, requester string) (ChainCounter, error) {
	grant, err := i.authority.Authorize(ctx, requester)
	if err != nil {
		return ChainCounter{}, reject(StageReceived, chain, wire.SequenceID{}, err)
	}

	if !chain.Valid() {
		return ChainCounter{}, reject(StageValidated, chain, wire.SequenceID{},
			fmt.Errorf("chain id %s out of range (0, %s]: %w", chain, wire.MaxSupportedChainID, ErrInvalidChainID))
	}

	counter := NewChainCounter(chain, grant)
	event := CounterInitialized{
		SourceChainID:       chain,
		CounterRef:          counter.Key,
		Authority:           grant.Authority,
		GatewayRef:          grant.GatewayRef,
		HighestSequenceSeen: counter.HighestSequenceSeen,
	}

	if err := i.store.CreateCounter(ctx, counter, event); err != nil {
		return ChainCounter{}, reject(StageCommitted, chain, wire.SequenceID{}, err)
	}

	i.logger.Info("counter initialized",
		zap.Stringer("source_chain_id", chain),
		zap.String("counter_ref", counter.Key),
		zap.String("authority", grant.Authority),
		zap.String("gateway_ref", grant.GatewayRef),
	)
	i.sink.Emit(ctx, event)

	return counter, nil
}
