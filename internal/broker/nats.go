package broker

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/tenzoki/cellorg/internal/message"
)

// NATSBroker adapts a NATS connection to the Broker interface. Topics use
// this runtime's "/"-delimited wildcard grammar ("*" single level, ">"
// trailing multi-level); NATS subjects are "."-delimited with the same two
// wildcard characters, so translation is a straight separator swap.
type NATSBroker struct {
	url  string
	opts []nats.Option

	mu           sync.RWMutex
	conn         *nats.Conn
	status       Status
	subs         map[string]*nats.Subscription
	reconnectFns []reconnectEntry
}

// NewNATSBroker creates an adapter that will dial url on Connect.
func NewNATSBroker(url string, opts ...nats.Option) *NATSBroker {
	return &NATSBroker{url: url, opts: opts, subs: make(map[string]*nats.Subscription)}
}

func (b *NATSBroker) Connect(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil && b.conn.IsConnected() {
		return nil
	}

	opts := append([]nats.Option{
		nats.ReconnectHandler(func(*nats.Conn) {
			b.handleReconnect()
		}),
	}, b.opts...)

	conn, err := nats.Connect(b.url, opts...)
	if err != nil {
		return fmt.Errorf("natsbroker: connect: %w", err)
	}
	b.conn = conn
	b.status = Connected
	return nil
}

func (b *NATSBroker) handleReconnect() {
	b.mu.Lock()
	b.status = Reconnecting
	fns := make([]reconnectEntry, len(b.reconnectFns))
	copy(fns, b.reconnectFns)
	rebind := false
	for _, e := range fns {
		rebind = rebind || e.restoreWithRebind
	}
	var stale []*nats.Subscription
	if rebind {
		for _, s := range b.subs {
			stale = append(stale, s)
		}
		b.subs = make(map[string]*nats.Subscription)
	}
	b.status = Connected
	b.mu.Unlock()

	for _, s := range stale {
		_ = s.Unsubscribe()
	}
	for _, e := range fns {
		e.fn()
	}
}

func (b *NATSBroker) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		b.conn.Close()
	}
	b.status = Disconnected
	return nil
}

func (b *NATSBroker) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

func (b *NATSBroker) Send(_ context.Context, topic string, payload []byte, userProps map[string]any) error {
	b.mu.RLock()
	conn := b.conn
	b.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	msg := nats.NewMsg(toSubject(topic))
	msg.Data = payload
	for k, v := range userProps {
		msg.Header.Set(k, fmt.Sprintf("%v", v))
	}
	if err := conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("natsbroker: publish: %w", err)
	}
	return nil
}

func (b *NATSBroker) Subscribe(topic, queue string, handler Handler) error {
	b.mu.RLock()
	conn := b.conn
	b.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	cb := func(m *nats.Msg) {
		props := make(map[string]any, len(m.Header))
		for k := range m.Header {
			props[k] = m.Header.Get(k)
		}
		handler(Delivery{
			Topic:          fromSubject(m.Subject),
			Payload:        m.Data,
			UserProperties: props,
			Ack:            func() { _ = m.Ack() },
			Nack:           func(message.Outcome) { _ = m.Nak() },
		})
	}

	subject := toSubject(topic)
	var sub *nats.Subscription
	var err error
	if queue != "" {
		sub, err = conn.QueueSubscribe(subject, queue, cb)
	} else {
		sub, err = conn.Subscribe(subject, cb)
	}
	if err != nil {
		return fmt.Errorf("natsbroker: subscribe %q: %w", topic, err)
	}

	b.mu.Lock()
	b.subs[topic] = sub
	b.mu.Unlock()
	return nil
}

func (b *NATSBroker) Unsubscribe(topic string) error {
	b.mu.Lock()
	sub, ok := b.subs[topic]
	delete(b.subs, topic)
	b.mu.Unlock()
	if !ok {
		return nil
	}
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("natsbroker: unsubscribe %q: %w", topic, err)
	}
	return nil
}

func (b *NATSBroker) OnReconnect(restoreWithRebind bool, fn ReconnectFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reconnectFns = append(b.reconnectFns, reconnectEntry{restoreWithRebind: restoreWithRebind, fn: fn})
}

func toSubject(topic string) string   { return strings.ReplaceAll(topic, "/", ".") }
func fromSubject(subject string) string { return strings.ReplaceAll(subject, ".", "/") }
