// Package component implements the component runtime: worker-group
// execution of a configured component implementation, the transform
// pipeline that runs ahead of it, and the built-in component
// implementations the connector ships with.
package component

import (
	"fmt"

	"github.com/tenzoki/cellorg/internal/broker"
	"github.com/tenzoki/cellorg/internal/message"
)

// discardType is the sentinel result type a component returns to mean
// "stop propagation here, without error". Components
// return the package-level Discard value, never construct this directly.
type discardType struct{}

// Discard is the sentinel Invoke result meaning the message should be
// acked and not forwarded downstream (e.g. message_filter's false case).
var Discard = discardType{}

// IsDiscard reports whether an Invoke result is the Discard sentinel.
func IsDiscard(v any) bool {
	_, ok := v.(discardType)
	return ok
}

// Component is the interface every flow component implementation
// satisfies: given the inbound message (already transformed by the
// component's configured transform pipeline), produce the value that
// becomes the outbound message's payload.
type Component interface {
	Invoke(msg *message.Message) (any, error)
}

// Source is implemented by components that originate messages rather than
// reacting to one handed to them (broker-input, stdin-input, timer-input,
// file-input). Run pushes messages to emit: stdin-input and file-input
// block until their input is exhausted, timer-input blocks for as long as
// the process runs, and broker-input registers its broker subscriptions
// and returns, after which deliveries reach emit from the broker. Run
// takes no context and has no stop signal; it must close no channel itself.
type Source interface {
	Component
	Run(emit func(*message.Message)) error
}

// Closer is implemented by components that hold a resource (a broker
// connection, an open file) that needs releasing at flow shutdown.
type Closer interface {
	Close() error
}

// TickSource is a Source with no natural per-tick Message (timer-input):
// instead of constructing one, it reports raw ticks through OnTick, which
// the flow builder wires to push EventTimer events directly onto the
// first stage's input.
type TickSource interface {
	Source
	OnTick(func(message.TimerPayload))
}

// Config is what a Factory receives to construct one component instance
// group: the component's own parameter map (for "self:" expressions) plus
// identifying names for logging.
type Config struct {
	App    string
	Flow   string
	Name   string
	Params map[string]any

	// Broker is the app's shared broker instance, set only when building
	// broker-input/broker-output components.
	Broker broker.Broker

	// Subscriptions and QueueName configure a broker-input component;
	// Topic configures a broker-output component's destination
	// ("source:path" expression evaluated per message, or a literal
	// topic string with no colon).
	Subscriptions []SubscriptionSpec
	QueueName     string
	Topic         string
}

// SubscriptionSpec is a broker-input component's topic subscription.
type SubscriptionSpec struct {
	Topic string
	Queue string
}

// Factory constructs a Component from Config.
type Factory func(cfg Config) (Component, error)

var registry = make(map[string]Factory)

// Register adds a named component implementation to the registry,
// resolved by a flow's component_class/component_module configuration
// value (dynamic dispatch resolved through a registry lookup).
func Register(name string, factory Factory) {
	registry[name] = factory
}

// Build resolves name through the registry and constructs a Component.
func Build(name string, cfg Config) (Component, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("component: %q is not registered", name)
	}
	return factory(cfg)
}
