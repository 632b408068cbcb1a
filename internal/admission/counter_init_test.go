package admission_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/msggate/internal/admission"
	"github.com/roach88/msggate/internal/testutil"
	"github.com/roach88/msggate/internal/wire"
)

func TestInitializeCounter(t *testing.T) {
	s := openStore(t)
	sink := &testutil.RecordingSink{}
	initializer := admission.NewInitializer(gatewayAuthority, s, admission.WithInitializerEventSink(sink))

	c, err := initializer.InitializeCounter(context.Background(), 42, authorityID)
	require.NoError(t, err)

	assert.Equal(t, wire.ChainID(42), c.SourceChainID)
	assert.True(t, c.HighestSequenceSeen.IsZero())
	assert.Equal(t, authorityID, c.InitializedBy)
	assert.Equal(t, "gw-main", c.GatewayRef)

	events := sink.Events()
	require.Len(t, events, 1)
	ev, ok := events[0].(admission.CounterInitialized)
	require.True(t, ok)
	assert.Equal(t, wire.ChainID(42), ev.SourceChainID)
	assert.Equal(t, wire.CounterKey(42), ev.CounterRef)
	assert.Equal(t, authorityID, ev.Authority)
	assert.True(t, ev.HighestSequenceSeen.IsZero())
}

func TestInitializeCounter_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		authority admission.StaticAuthority
		chain     wire.ChainID
		requester string
		want      error
	}{
		{"wrong requester", gatewayAuthority, 42, "someone-else", admission.ErrUnauthorized},
		{"empty identity never matches", admission.StaticAuthority{Enabled: true}, 42, "", admission.ErrUnauthorized},
		{"system disabled", admission.StaticAuthority{Identity: authorityID}, 42, authorityID, admission.ErrSystemDisabled},
		{"chain zero", gatewayAuthority, 0, authorityID, admission.ErrInvalidChainID},
		// Authorization is checked before the chain id.
		{"unauthorized with bad chain", gatewayAuthority, 0, "someone-else", admission.ErrUnauthorized},
		{"disabled with bad chain", admission.StaticAuthority{Identity: authorityID}, 0, authorityID, admission.ErrSystemDisabled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openStore(t)
			sink := &testutil.RecordingSink{}
			initializer := admission.NewInitializer(tt.authority, s, admission.WithInitializerEventSink(sink))

			_, err := initializer.InitializeCounter(context.Background(), tt.chain, tt.requester)
			assert.ErrorIs(t, err, tt.want)

			counters, err := s.Counters(context.Background())
			require.NoError(t, err)
			assert.Empty(t, counters, "rejected initialization must not write")
			assert.Empty(t, sink.Events())
		})
	}
}

func TestInitializeCounter_MaxChainID(t *testing.T) {
	initializer := admission.NewInitializer(gatewayAuthority, openStore(t))

	c, err := initializer.InitializeCounter(context.Background(), wire.MaxSupportedChainID, authorityID)
	require.NoError(t, err)
	assert.Equal(t, wire.MaxSupportedChainID, c.SourceChainID)
}

// Second initialization is rejected and leaves the watermark alone.
func TestInitializeCounter_AlreadyInitialized(t *testing.T) {
	ctx := context.Background()
	c, s := newController(t)
	initializer := admission.NewInitializer(gatewayAuthority, s)

	_, err := initializer.InitializeCounter(ctx, 42, authorityID)
	require.NoError(t, err)
	_, err = c.Admit(ctx, testutil.NewMessage(42, 5))
	require.NoError(t, err)

	_, err = initializer.InitializeCounter(ctx, 42, authorityID)
	assert.ErrorIs(t, err, admission.ErrAlreadyInitialized)
	assert.Equal(t, admission.ClassAlreadyInitialized, admission.ClassOf(err))

	counter, err := s.Counter(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, wire.Seq(5), counter.HighestSequenceSeen)
}

func TestInitializeCounter_ConcurrentSameChain(t *testing.T) {
	initializer := admission.NewInitializer(gatewayAuthority, openStore(t))

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = initializer.InitializeCounter(context.Background(), 9, authorityID)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, admission.ErrAlreadyInitialized)
	}
	assert.Equal(t, 1, ok)
}
