package kernel

import (
	"context"
	"errors"
	"sync"

	"github.com/jeeves-cluster-organization/consensusai/commbus"
)

// ErrNoBus is returned by Watch on a kernel created without a bus.
var ErrNoBus = errors.New("kernel: no event bus")

// Subscription delivers the events of one session in publish order.
type Subscription struct {
	events chan commbus.Message
	done   chan struct{}
	stops  []func()
	once   sync.Once
}

// Events returns the event channel. It is never closed; select on your own
// cancellation alongside it.
func (s *Subscription) Events() <-chan commbus.Message {
	return s.events
}

// Close unsubscribes and releases publishers blocked on a full buffer.
func (s *Subscription) Close() {
	s.once.Do(func() {
		for _, stop := range s.stops {
			stop()
		}
		close(s.done)
	})
}

// Watch subscribes to every negotiation event of session id and returns the
// session. The subscription is taken before the lookup, so a snapshot read
// from the session afterwards misses no event. Once buffer events are
// pending, publishers wait for the reader.
func (k *Kernel) Watch(id string, buffer int) (*Session, *Subscription, error) {
	if k.bus == nil {
		return nil, nil, ErrNoBus
	}

	sub := &Subscription{
		events: make(chan commbus.Message, buffer),
		done:   make(chan struct{}),
	}
	for _, eventType := range commbus.NegotiationEventTypes() {
		sub.stops = append(sub.stops, k.bus.Subscribe(eventType, func(_ context.Context, msg commbus.Message) (any, error) {
			ev, ok := msg.(commbus.SessionEvent)
			if !ok || ev.Session() != id {
				return nil, nil
			}
			select {
			case sub.events <- msg:
			case <-sub.done:
			}
			return nil, nil
		}))
	}

	sess, err := k.GetSession(id)
	if err != nil {
		sub.Close()
		return nil, nil, err
	}
	return sess, sub, nil
}
