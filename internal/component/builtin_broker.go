package component

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tenzoki/cellorg/internal/broker"
	"github.com/tenzoki/cellorg/internal/expr"
	"github.com/tenzoki/cellorg/internal/logging"
	"github.com/tenzoki/cellorg/internal/message"
	"github.com/tenzoki/cellorg/internal/router"
)

func jsonMarshal(v any) ([]byte, error) { return json.Marshal(v) }

func init() {
	Register("broker-input", newBrokerInput)
	Register("broker-output", newBrokerOutput)
}

// brokerInput is a Source component that subscribes to the configured
// topics on the app's shared broker and turns each delivery into a
// Message, registering an ack callback that settles the underlying
// broker delivery.
type brokerInput struct {
	br            broker.Broker
	subscriptions []SubscriptionSpec
	queue         string
}

func newBrokerInput(cfg Config) (Component, error) {
	if cfg.Broker == nil {
		return nil, fmt.Errorf("broker-input: no broker configured for component %q", cfg.Name)
	}
	if len(cfg.Subscriptions) == 0 {
		return nil, fmt.Errorf("broker-input: component %q needs at least one subscription", cfg.Name)
	}
	return &brokerInput{br: cfg.Broker, subscriptions: cfg.Subscriptions, queue: cfg.QueueName}, nil
}

// Invoke is never called on the ingress path directly: Run pushes
// already-constructed Messages to emit. It exists so brokerInput still
// satisfies Component for registry bookkeeping and tests that hand it a
// message synthetically.
func (b *brokerInput) Invoke(msg *message.Message) (any, error) {
	return msg.Payload, nil
}

func (b *brokerInput) Run(emit func(*message.Message)) error {
	// A Router sits between the broker subscriptions and emit so that
	// overlapping patterns on this component resolve to exactly one
	// handler (the most specific), and so the deliver-time logging
	// middleware runs uniformly regardless of which pattern matched.
	r := router.New()
	r.Use(loggingMiddleware(b.queue))

	for _, sub := range b.subscriptions {
		r.Handle(sub.Topic, func(d broker.Delivery) {
			msg := message.New(d.Topic, d.Payload, d.UserProperties)
			msg.RegisterAck(func(outcome message.Outcome) {
				if outcome == message.Accepted {
					d.Ack()
				} else {
					d.Nack(outcome)
				}
			})
			emit(msg)
		})
	}

	subscribeAll := func() error {
		for _, sub := range b.subscriptions {
			queue := sub.Queue
			if queue == "" {
				queue = b.queue
			}
			err := b.br.Subscribe(sub.Topic, queue, func(d broker.Delivery) {
				if err := r.Dispatch(d); err != nil {
					// No route matches: the broker's own pattern match
					// already guarantees one does, so this only fires on a
					// bug in the matcher implementations disagreeing.
					_ = err
				}
			})
			if err != nil {
				return fmt.Errorf("broker-input: subscribing to %q: %w", sub.Topic, err)
			}
		}
		return nil
	}

	if err := subscribeAll(); err != nil {
		return err
	}

	// restoreWithRebind: the broker drops its subscription table across a
	// reconnect, so every currently-active subscription has to be re-added
	// rather than assumed still in place.
	b.br.OnReconnect(true, func() {
		if err := subscribeAll(); err != nil {
			logging.Root.Error().Err(err).Str("queue", b.queue).
				Msg("broker-input: failed to restore subscriptions after reconnect")
		}
	})
	return nil
}

func loggingMiddleware(queue string) router.Middleware {
	log := logging.Root.With().Str("queue", queue).Logger()
	return func(next broker.Handler) broker.Handler {
		return func(d broker.Delivery) {
			log.Debug().Str("topic", d.Topic).Msg("broker delivery routed")
			next(d)
		}
	}
}

// brokerOutput publishes its input payload to the broker, evaluating a
// topic expression per message. A literal string with no
// "source:"-style colon prefix is treated as a fixed topic.
type brokerOutput struct {
	br        broker.Broker
	topicExpr string
}

func newBrokerOutput(cfg Config) (Component, error) {
	if cfg.Broker == nil {
		return nil, fmt.Errorf("broker-output: no broker configured for component %q", cfg.Name)
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("broker-output: component %q needs a topic", cfg.Name)
	}
	return &brokerOutput{br: cfg.Broker, topicExpr: cfg.Topic}, nil
}

func (b *brokerOutput) Invoke(msg *message.Message) (any, error) {
	topic := b.topicExpr
	if containsColon(topic) {
		v, err := expr.Eval(topic, expr.Scope{Msg: msg})
		if err != nil {
			return nil, fmt.Errorf("broker-output: evaluating topic expression: %w", err)
		}
		topic, _ = v.(string)
	}

	payload, err := toBytes(msg.Payload)
	if err != nil {
		return nil, fmt.Errorf("broker-output: encoding payload: %w", err)
	}

	if err := b.br.Send(context.Background(), topic, payload, msg.UserProperties); err != nil {
		return nil, fmt.Errorf("broker-output: send: %w", err)
	}
	return msg.Payload, nil
}

func toBytes(v any) ([]byte, error) {
	switch p := v.(type) {
	case []byte:
		return p, nil
	case string:
		return []byte(p), nil
	default:
		return jsonMarshal(p)
	}
}

func containsColon(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return true
		}
	}
	return false
}
