package broker

import (
	"context"
	"fmt"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tenzoki/cellorg/internal/message"
)

// AMQPBroker adapts a RabbitMQ topic exchange to the Broker interface.
// AMQP topic routing keys use "."-delimited segments with "*" (one
// segment) and "#" (zero or more segments); this runtime's grammar is
// "/"-delimited with "*" (one segment) and a trailing ">" (one or more
// segments), so subscribe translates ">" to "#" and publish/subscribe both
// swap the separator.
type AMQPBroker struct {
	url      string
	exchange string

	mu     sync.RWMutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	status Status

	queues       map[string]string // subscription topic -> queue name
	reconnectFns []reconnectEntry
}

// NewAMQPBroker creates an adapter that dials url and declares exchange
// (a topic exchange) on Connect.
func NewAMQPBroker(url, exchange string) *AMQPBroker {
	return &AMQPBroker{url: url, exchange: exchange, queues: make(map[string]string)}
}

func (b *AMQPBroker) Connect(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil && !b.conn.IsClosed() {
		return nil
	}

	conn, err := amqp.Dial(b.url)
	if err != nil {
		return fmt.Errorf("amqpbroker: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("amqpbroker: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(b.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("amqpbroker: declare exchange: %w", err)
	}

	closed := make(chan *amqp.Error, 1)
	conn.NotifyClose(closed)
	go b.watchClose(closed)

	b.conn = conn
	b.ch = ch
	b.status = Connected
	return nil
}

func (b *AMQPBroker) watchClose(closed chan *amqp.Error) {
	if _, ok := <-closed; !ok {
		return
	}
	b.mu.Lock()
	b.status = Reconnecting
	fns := make([]reconnectEntry, len(b.reconnectFns))
	copy(fns, b.reconnectFns)
	b.mu.Unlock()
	for _, e := range fns {
		e.fn()
	}
}

func (b *AMQPBroker) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ch != nil {
		b.ch.Close()
	}
	if b.conn != nil {
		b.conn.Close()
	}
	b.status = Disconnected
	return nil
}

func (b *AMQPBroker) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

func (b *AMQPBroker) Send(ctx context.Context, topic string, payload []byte, userProps map[string]any) error {
	b.mu.RLock()
	ch := b.ch
	b.mu.RUnlock()
	if ch == nil {
		return ErrNotConnected
	}

	headers := make(amqp.Table, len(userProps))
	for k, v := range userProps {
		headers[k] = v
	}

	err := ch.PublishWithContext(ctx, b.exchange, toRoutingKey(topic), false, false, amqp.Publishing{
		ContentType: "application/octet-stream",
		Body:        payload,
		Headers:     headers,
	})
	if err != nil {
		return fmt.Errorf("amqpbroker: publish: %w", err)
	}
	return nil
}

func (b *AMQPBroker) Subscribe(topic, queue string, handler Handler) error {
	b.mu.Lock()
	ch := b.ch
	b.mu.Unlock()
	if ch == nil {
		return ErrNotConnected
	}

	queueName := queue
	exclusive := false
	if queueName == "" {
		queueName = ""
		exclusive = true
	}

	q, err := ch.QueueDeclare(queueName, true, false, exclusive, false, nil)
	if err != nil {
		return fmt.Errorf("amqpbroker: declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, toRoutingKey(topic), b.exchange, false, nil); err != nil {
		return fmt.Errorf("amqpbroker: bind queue: %w", err)
	}

	deliveries, err := ch.Consume(q.Name, "", false, exclusive, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqpbroker: consume: %w", err)
	}

	b.mu.Lock()
	b.queues[topic] = q.Name
	b.mu.Unlock()

	go func() {
		for d := range deliveries {
			props := make(map[string]any, len(d.Headers))
			for k, v := range d.Headers {
				props[k] = v
			}
			delivery := d
			handler(Delivery{
				Topic:          fromRoutingKey(delivery.RoutingKey),
				Payload:        delivery.Body,
				UserProperties: props,
				Ack:            func() { _ = delivery.Ack(false) },
				Nack: func(outcome message.Outcome) {
					_ = delivery.Nack(false, outcome == message.Failed)
				},
			})
		}
	}()

	return nil
}

func (b *AMQPBroker) Unsubscribe(topic string) error {
	b.mu.Lock()
	ch := b.ch
	queueName, ok := b.queues[topic]
	delete(b.queues, topic)
	b.mu.Unlock()
	if !ok || ch == nil {
		return nil
	}
	if _, err := ch.QueueDelete(queueName, false, false, false); err != nil {
		return fmt.Errorf("amqpbroker: delete queue: %w", err)
	}
	return nil
}

func (b *AMQPBroker) OnReconnect(restoreWithRebind bool, fn ReconnectFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reconnectFns = append(b.reconnectFns, reconnectEntry{restoreWithRebind: restoreWithRebind, fn: fn})
}

func toRoutingKey(topic string) string {
	key := strings.ReplaceAll(topic, "/", ".")
	if strings.HasSuffix(key, ".>") {
		key = strings.TrimSuffix(key, ">") + "#"
	}
	return key
}

func fromRoutingKey(key string) string {
	topic := strings.ReplaceAll(key, ".", "/")
	if strings.HasSuffix(topic, "/#") {
		topic = strings.TrimSuffix(topic, "#") + ">"
	}
	return topic
}
