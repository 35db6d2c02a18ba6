// Package rrc implements the request/response correlator: a companion
// internal flow that matches published requests to their replies by
// injecting a generated request ID into user properties and waiting for a
// reply carrying the same ID back on a dedicated reply topic.
package rrc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tenzoki/cellorg/internal/broker"
	"github.com/tenzoki/cellorg/internal/cerr"
	"github.com/tenzoki/cellorg/internal/message"
)

// RequestIDProperty is the user-properties key the correlator injects
// into every outbound request and expects echoed back on the reply.
const RequestIDProperty = "__request_id"

// Mode selects how a caller consumes a request's response(s).
type Mode int

const (
	// Sync blocks the caller until exactly one reply arrives or the
	// request times out.
	Sync Mode = iota
	// Async delivers the single reply to a callback instead of blocking.
	Async
	// Streaming delivers zero or more replies to a channel until the
	// caller cancels or the correlator is closed.
	Streaming
)

type pending struct {
	mode     Mode
	replies  chan *message.Message
	callback func(*message.Message, error)
	done     bool
}

// Correlator matches requests it sends to replies it receives on
// replyTopic, using RequestIDProperty to pair them.
type Correlator struct {
	br         broker.Broker
	replyTopic string

	mu       sync.Mutex
	pending  map[string]*pending
	closed   bool
	closedCh chan struct{}
}

// New creates a Correlator that subscribes to replyTopic immediately.
func New(br broker.Broker, replyTopic string) (*Correlator, error) {
	c := &Correlator{br: br, replyTopic: replyTopic, pending: make(map[string]*pending), closedCh: make(chan struct{})}
	if err := br.Subscribe(replyTopic, "", c.onReply); err != nil {
		return nil, fmt.Errorf("rrc: subscribing to reply topic %q: %w", replyTopic, err)
	}
	return c, nil
}

func (c *Correlator) onReply(d broker.Delivery) {
	id, _ := d.UserProperties[RequestIDProperty].(string)
	if id == "" {
		d.Ack()
		return
	}

	c.mu.Lock()
	p, ok := c.pending[id]
	if ok && p.mode != Streaming {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		// No one is waiting any more (timed out, or an unsolicited
		// reply); ack it so the broker doesn't keep redelivering.
		d.Ack()
		return
	}

	msg := message.New(d.Topic, d.Payload, d.UserProperties)
	msg.RegisterAck(func(outcome message.Outcome) {
		if outcome == message.Accepted {
			d.Ack()
		} else {
			d.Nack(outcome)
		}
	})

	switch p.mode {
	case Async:
		p.callback(msg, nil)
	case Streaming:
		select {
		case p.replies <- msg:
		default:
		}
	default: // Sync
		p.replies <- msg
	}
}

// Request publishes payload to topic with a generated request ID and
// blocks until a matching reply arrives, ctx is done, or timeout elapses,
// whichever is first.
func (c *Correlator) Request(ctx context.Context, topic string, payload []byte, userProps map[string]any, timeout time.Duration) (*message.Message, error) {
	id, replies, err := c.register(Sync, nil)
	if err != nil {
		return nil, err
	}
	defer c.forget(id)

	if err := c.publish(ctx, topic, payload, userProps, id); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-replies:
		return msg, nil
	case <-timer.C:
		return nil, cerr.New(cerr.Runtime, "rrc.Request", cerr.ErrRequestTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closedCh:
		return nil, cerr.ErrCorrelatorClosed
	}
}

// RequestAsync publishes the request and returns immediately; cb is
// invoked from the correlator's delivery goroutine when the reply
// arrives, or with an error if timeout elapses first.
func (c *Correlator) RequestAsync(ctx context.Context, topic string, payload []byte, userProps map[string]any, timeout time.Duration, cb func(*message.Message, error)) error {
	id, _, err := c.register(Async, cb)
	if err != nil {
		return err
	}

	if err := c.publish(ctx, topic, payload, userProps, id); err != nil {
		c.forget(id)
		return err
	}

	go func() {
		time.Sleep(timeout)
		c.mu.Lock()
		p, ok := c.pending[id]
		if ok {
			delete(c.pending, id)
		}
		c.mu.Unlock()
		if ok && !p.done {
			cb(nil, cerr.New(cerr.Runtime, "rrc.RequestAsync", cerr.ErrRequestTimeout))
		}
	}()
	return nil
}

// RequestStream publishes the request and returns a channel of every
// reply sharing its request ID until cancel is called or the correlator
// closes.
func (c *Correlator) RequestStream(ctx context.Context, topic string, payload []byte, userProps map[string]any) (<-chan *message.Message, func(), error) {
	id, replies, err := c.register(Streaming, nil)
	if err != nil {
		return nil, nil, err
	}

	if err := c.publish(ctx, topic, payload, userProps, id); err != nil {
		c.forget(id)
		return nil, nil, err
	}

	cancel := func() { c.forget(id) }
	return replies, cancel, nil
}

func (c *Correlator) register(mode Mode, cb func(*message.Message, error)) (string, chan *message.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", nil, cerr.ErrCorrelatorClosed
	}

	id := uuid.NewString()
	replies := make(chan *message.Message, 8)
	c.pending[id] = &pending{mode: mode, replies: replies, callback: cb}
	return id, replies, nil
}

func (c *Correlator) forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}

func (c *Correlator) publish(ctx context.Context, topic string, payload []byte, userProps map[string]any, requestID string) error {
	props := make(map[string]any, len(userProps)+1)
	for k, v := range userProps {
		props[k] = v
	}
	props[RequestIDProperty] = requestID

	if err := c.br.Send(ctx, topic, payload, props); err != nil {
		return fmt.Errorf("rrc: publishing request: %w", err)
	}
	return nil
}

// Close unsubscribes from the reply topic and releases every pending
// waiter: Sync and Async waiters receive ErrCorrelatorClosed, and each
// Streaming waiter's reply channel is closed.
func (c *Correlator) Close() error {
	c.mu.Lock()
	c.closed = true
	pending := c.pending
	c.pending = make(map[string]*pending)
	close(c.closedCh)
	c.mu.Unlock()

	for _, p := range pending {
		switch {
		case p.callback != nil:
			p.callback(nil, cerr.ErrCorrelatorClosed)
		case p.mode == Streaming:
			close(p.replies)
		}
		// Sync waiters learn of the close via Request's select on
		// closedCh; their reply channel is simply abandoned.
	}
	return c.br.Unsubscribe(c.replyTopic)
}
