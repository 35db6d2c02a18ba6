package broker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tenzoki/cellorg/internal/message"
)

// subscription is one registered topic pattern; when queue is non-empty,
// multiple subscriptions sharing the same queue name form a queue group
// that receives messages round-robin, the way a physical broker's shared
// queue binding would.
type subscription struct {
	pattern string
	queue   string
	handler Handler
}

// DevBroker is an in-process Broker implementation with no external
// dependency: it matches the wildcard pattern language directly against
// published topics and delivers synchronously to matching subscribers. It
// is meant for local development and tests, standing in for the real
// broker a production deployment would configure.
type DevBroker struct {
	mu      sync.RWMutex
	status  Status
	matcher Matcher

	subs map[string][]*subscription // keyed by pattern
	// queueRoundRobin tracks the next member index to deliver to for a
	// given queue name, so a shared queue's subscribers alternate turns.
	queueRoundRobin map[string]*uint64

	reconnectFns []reconnectEntry
}

type reconnectEntry struct {
	restoreWithRebind bool
	fn                ReconnectFunc
}

// NewDevBroker creates an unconnected DevBroker.
func NewDevBroker() *DevBroker {
	return &DevBroker{
		matcher:         WildcardMatcher{},
		subs:            make(map[string][]*subscription),
		queueRoundRobin: make(map[string]*uint64),
	}
}

func (b *DevBroker) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = Connected
	return nil
}

func (b *DevBroker) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = Disconnected
	return nil
}

func (b *DevBroker) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

func (b *DevBroker) Send(_ context.Context, topic string, payload []byte, userProps map[string]any) error {
	b.mu.RLock()
	if b.status != Connected {
		b.mu.RUnlock()
		return ErrNotConnected
	}

	// Snapshot matching subscriptions grouped by queue (queue name "" is
	// treated as its own group of fan-out-to-everyone subscribers).
	type target struct {
		queue string
		subs  []*subscription
	}
	groups := make(map[string]*target)
	for pattern, subs := range b.subs {
		if !b.matcher.Match(pattern, topic) {
			continue
		}
		for _, s := range subs {
			key := s.queue
			if key == "" {
				key = "fanout:" + pattern + ":" + s.queue
			}
			g, ok := groups[key]
			if !ok {
				g = &target{queue: s.queue}
				groups[key] = g
			}
			g.subs = append(g.subs, s)
		}
	}
	b.mu.RUnlock()

	for key, g := range groups {
		if g.queue == "" {
			for _, s := range g.subs {
				b.deliver(s, topic, payload, userProps)
			}
			continue
		}
		b.mu.Lock()
		counter, ok := b.queueRoundRobin[key]
		if !ok {
			var c uint64
			counter = &c
			b.queueRoundRobin[key] = counter
		}
		b.mu.Unlock()

		n := atomic.AddUint64(counter, 1) - 1
		chosen := g.subs[int(n%uint64(len(g.subs)))]
		b.deliver(chosen, topic, payload, userProps)
	}

	return nil
}

func (b *DevBroker) deliver(s *subscription, topic string, payload []byte, userProps map[string]any) {
	s.handler(Delivery{
		Topic:          topic,
		Payload:        payload,
		UserProperties: userProps,
		Ack:            func() {},
		Nack:           func(message.Outcome) {},
	})
}

func (b *DevBroker) Subscribe(topic, queue string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], &subscription{pattern: topic, queue: queue, handler: handler})
	return nil
}

func (b *DevBroker) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, topic)
	return nil
}

func (b *DevBroker) OnReconnect(restoreWithRebind bool, fn ReconnectFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reconnectFns = append(b.reconnectFns, reconnectEntry{restoreWithRebind: restoreWithRebind, fn: fn})
}

// SimulateReconnect is a test/dev hook that replays every registered
// reconnect callback, exercising restore-subscriptions-with-rebind logic
// without a real network dependency.
func (b *DevBroker) SimulateReconnect() {
	b.mu.RLock()
	fns := make([]reconnectEntry, len(b.reconnectFns))
	copy(fns, b.reconnectFns)
	b.mu.RUnlock()

	for _, e := range fns {
		if e.restoreWithRebind {
			b.mu.Lock()
			b.subs = make(map[string][]*subscription)
			b.mu.Unlock()
		}
		e.fn()
	}
}
