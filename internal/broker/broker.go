// Package broker defines the pluggable message-broker abstraction every
// broker-input/broker-output component talks to, plus an in-process dev
// broker and adapters for NATS and RabbitMQ.
package broker

import (
	"context"
	"fmt"

	"github.com/tenzoki/cellorg/internal/message"
)

// Status is a broker connection's current state.
type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
	Reconnecting
)

func (s Status) String() string {
	switch s {
	case Connected:
		return "connected"
	case Connecting:
		return "connecting"
	case Reconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Delivery is one inbound message handed to a subscriber, carrying enough
// to ack/nack it against the broker that delivered it.
type Delivery struct {
	Topic          string
	Payload        []byte
	UserProperties map[string]any
	Ack            func()
	Nack           func(outcome message.Outcome)
}

// Handler receives deliveries for a subscription.
type Handler func(Delivery)

// ReconnectFunc is invoked after a broker re-establishes its connection,
// so callers can restore subscriptions.
type ReconnectFunc func()

// Broker is the interface every broker driver (dev, NATS, AMQP) implements.
// A single instance may be shared by multiple components within an app
// implementations must be safe for concurrent use.
type Broker interface {
	// Connect establishes the broker connection. Calling Connect on an
	// already-connected broker is a no-op.
	Connect(ctx context.Context) error
	// Disconnect tears down the connection.
	Disconnect() error
	// Status reports the current connection state.
	Status() Status

	// Send publishes payload to topic with the given user properties.
	Send(ctx context.Context, topic string, payload []byte, userProps map[string]any) error

	// Subscribe registers handler for topic, which may contain "*"
	// (exactly one path segment) and "/>"  (one or more trailing
	// segments) wildcards. queue, if non-empty, binds a shared queue so
	// that only one subscriber among those sharing the queue name
	// receives each message.
	Subscribe(topic, queue string, handler Handler) error
	// Unsubscribe removes a previously registered subscription.
	Unsubscribe(topic string) error

	// OnReconnect registers fn to run after the broker reconnects. When
	// restoreWithRebind is true the driver must unbind and rebind every
	// queue subscription rather than assuming the broker preserved it.
	OnReconnect(restoreWithRebind bool, fn ReconnectFunc)
}

// ErrNotConnected is returned by Send/Subscribe when called before Connect
// succeeds.
var ErrNotConnected = fmt.Errorf("broker: not connected")
