package kernel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/consensusai/commbus"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/testutil"
)

// =============================================================================
// WATCH TESTS
// =============================================================================

func TestWatch_DeliversOnlyOwnSessionEvents(t *testing.T) {
	bus := commbus.NewInMemoryCommBus(time.Second, nil)
	k := NewKernel(nil, bus, fastConfig())

	watched, err := k.CreateSession(testutil.GeneralScenario(), testutil.NewMockOracle())
	require.NoError(t, err)
	other, err := k.CreateSession(testutil.GeneralScenario(), testutil.NewMockOracle())
	require.NoError(t, err)

	sess, sub, err := k.Watch(watched.ID(), 64)
	require.NoError(t, err)
	defer sub.Close()
	assert.Same(t, watched, sess)

	_, err = k.EvaluateRound(context.Background(), other.ID())
	require.NoError(t, err)
	_, err = k.EvaluateRound(context.Background(), watched.ID())
	require.NoError(t, err)

	var types []string
	for {
		msg := <-sub.Events()
		ev := msg.(commbus.SessionEvent)
		assert.Equal(t, watched.ID(), ev.Session())
		eventType := commbus.GetMessageType(msg)
		types = append(types, eventType)
		if commbus.IsTerminalEvent(eventType) {
			break
		}
	}
	assert.Equal(t, commbus.TypeRoundStarted, types[0])
	assert.Equal(t, commbus.TypeNegotiationConverged, types[len(types)-1])
}

func TestWatch_CloseReleasesBlockedPublisher(t *testing.T) {
	bus := commbus.NewInMemoryCommBus(time.Second, nil)
	k := NewKernel(nil, bus, fastConfig())

	sess, err := k.CreateSession(testutil.GeneralScenario(), testutil.NewMockOracle())
	require.NoError(t, err)

	// A zero buffer blocks the first publish until the subscription closes.
	_, sub, err := k.Watch(sess.ID(), 0)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_, _ = k.EvaluateRound(context.Background(), sess.ID())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	sub.Close()
	sub.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("round stayed blocked after Close")
	}
}

func TestWatch_Errors(t *testing.T) {
	_, _, err := NewKernel(nil, nil, fastConfig()).Watch("any", 1)
	assert.ErrorIs(t, err, ErrNoBus)

	bus := commbus.NewInMemoryCommBus(time.Second, nil)
	k := NewKernel(nil, bus, fastConfig())
	_, _, err = k.Watch("missing", 1)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	for _, et := range commbus.NegotiationEventTypes() {
		assert.Equal(t, 0, bus.SubscriberCount(et))
	}
}
