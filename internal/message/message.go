// Package message defines the Message and Event types that flow between
// components, and the ack/nack bookkeeping every component participates in.
package message

import (
	"sync"

	"github.com/google/uuid"
)

// Outcome is the disposition a component (or the broker) assigns a message
// when it finishes with it.
type Outcome int

const (
	// Accepted means the message was processed and should be acked upstream.
	Accepted Outcome = iota
	// Failed means processing failed transiently; redelivery may help.
	Failed
	// Rejected means processing failed terminally; redelivery will not help.
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "ACCEPTED"
	case Failed:
		return "FAILED"
	default:
		return "REJECTED"
	}
}

// AckCallback runs when a message reaches a terminal outcome. Callbacks are
// invoked in LIFO order: the most recently registered callback (closest to
// where the message currently is in the flow) fires first.
type AckCallback func(outcome Outcome)

// Message is the unit of data that travels through a flow. A single Message
// may be wrapped, cloned for fan-out (iterate), or handed to multiple
// components; Ack/Nack bookkeeping is therefore guarded by a mutex.
type Message struct {
	mu sync.Mutex

	ID             string
	Topic          string
	Payload        any
	UserProperties map[string]any

	// Previous holds the return value of the component that most recently
	// produced this message's Payload, for the "previous" expression source.
	Previous any

	// UserData is free-form application scratch space, namespaced by the
	// caller (expression source "user_data.<ns>").
	UserData map[string]any

	// PrivateData is framework-internal scratch space (e.g. the
	// request/response correlator's rendezvous key); not reachable from
	// user expressions.
	PrivateData map[string]any

	// IterationItem and IterationIndex hold the (item, index) pair an
	// iterate component has projected onto this message; HasIteration
	// reports whether they are set.
	IterationItem  any
	IterationIndex int
	HasIteration   bool

	acks    []AckCallback
	settled bool
}

// New creates a Message with a fresh ID.
func New(topic string, payload any, userProps map[string]any) *Message {
	if userProps == nil {
		userProps = make(map[string]any)
	}
	return &Message{
		ID:             uuid.NewString(),
		Topic:          topic,
		Payload:        payload,
		UserProperties: userProps,
		UserData:       make(map[string]any),
		PrivateData:    make(map[string]any),
	}
}

// Clone produces a copy of m with a fresh ID, used when a component
// (iterate, fan-out) needs to emit more than one downstream message from a
// single input. The UserProperties, UserData and PrivateData maps are
// copied one level deep; Payload, Previous and any nested maps or slices
// inside those maps are shared with m. The clone starts with its own
// empty ack list; callers are responsible for wiring it back to m's
// disposition if the two must be settled together.
func (m *Message) Clone() *Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	props := make(map[string]any, len(m.UserProperties))
	for k, v := range m.UserProperties {
		props[k] = v
	}
	userData := make(map[string]any, len(m.UserData))
	for k, v := range m.UserData {
		userData[k] = v
	}
	priv := make(map[string]any, len(m.PrivateData))
	for k, v := range m.PrivateData {
		priv[k] = v
	}

	return &Message{
		ID:             uuid.NewString(),
		Topic:          m.Topic,
		Payload:        m.Payload,
		UserProperties: props,
		Previous:       m.Previous,
		UserData:       userData,
		PrivateData:    priv,
		IterationItem:  m.IterationItem,
		IterationIndex: m.IterationIndex,
		HasIteration:   m.HasIteration,
	}
}

// RegisterAck pushes a callback onto the ack stack. Whoever needs to learn
// the message's final outcome registers one (broker-input does, to settle
// the underlying broker delivery); discarding or finally settling the
// message unwinds callbacks in reverse registration order.
func (m *Message) RegisterAck(cb AckCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acks = append(m.acks, cb)
}

// Settle fires every registered ack callback in LIFO order with the given
// outcome. Settle is idempotent: only the first call has effect, matching
// the invariant that a nack anywhere suppresses any later ack delivery for
// the same message traversal.
func (m *Message) Settle(outcome Outcome) {
	m.mu.Lock()
	if m.settled {
		m.mu.Unlock()
		return
	}
	m.settled = true
	acks := make([]AckCallback, len(m.acks))
	copy(acks, m.acks)
	m.mu.Unlock()

	for i := len(acks) - 1; i >= 0; i-- {
		acks[i](outcome)
	}
}

// Ack is shorthand for Settle(Accepted).
func (m *Message) Ack() { m.Settle(Accepted) }

// Nack is shorthand for Settle(outcome) with a non-accepted outcome.
func (m *Message) Nack(outcome Outcome) {
	if outcome == Accepted {
		outcome = Rejected
	}
	m.Settle(outcome)
}

// SetUserData stores v under namespace ns (expression source "user_data.ns").
func (m *Message) SetUserData(ns string, v any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UserData[ns] = v
}

// GetUserData retrieves the value stored under namespace ns, if any.
func (m *Message) GetUserData(ns string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.UserData[ns]
	return v, ok
}

// SetPrivateData stores v under key for framework-internal use.
func (m *Message) SetPrivateData(key string, v any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PrivateData[key] = v
}

// GetPrivateData retrieves the value stored under key, if any.
func (m *Message) GetPrivateData(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.PrivateData[key]
	return v, ok
}

// TopicLevels splits Topic on "/" for the "input.topic_levels" expression
// source.
func (m *Message) TopicLevels() []string {
	if m.Topic == "" {
		return nil
	}
	return splitTopic(m.Topic)
}

func splitTopic(topic string) []string {
	var levels []string
	start := 0
	for i := 0; i < len(topic); i++ {
		if topic[i] == '/' {
			levels = append(levels, topic[start:i])
			start = i + 1
		}
	}
	levels = append(levels, topic[start:])
	return levels
}

// EventKind tags the payload carried by an Event.
type EventKind int

const (
	EventMessage EventKind = iota
	EventTimer
	EventCacheExpiry
)

// Event is what travels on a component's input channel: almost always a
// Message, but timer-input components and cache-expiry notifications emit
// the other two kinds without synthesizing a fake Message.
type Event struct {
	Kind    EventKind
	Message *Message
	Timer   *TimerPayload
	Cache   *CacheExpiry
}

// TimerPayload is the payload of an EventTimer event.
type TimerPayload struct {
	Name string
	Tick int64
}

// CacheExpiry is the payload of an EventCacheExpiry event.
type CacheExpiry struct {
	Key string
}
