package component_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenzoki/cellorg/internal/broker"
	"github.com/tenzoki/cellorg/internal/component"
	"github.com/tenzoki/cellorg/internal/message"
)

func TestBrokerInputEmitsMessagesForSubscribedTopics(t *testing.T) {
	b := broker.NewDevBroker()
	require.NoError(t, b.Connect(context.Background()))

	impl, err := component.Build("broker-input", component.Config{
		Broker:        b,
		Subscriptions: []component.SubscriptionSpec{{Topic: "events/>", Queue: "workers"}},
	})
	require.NoError(t, err)

	src := impl.(component.Source)

	var mu sync.Mutex
	var topics []string
	// Run registers its broker subscription and returns; deliveries then
	// reach emit from the broker's Send.
	require.NoError(t, src.Run(func(msg *message.Message) {
		mu.Lock()
		topics = append(topics, msg.Topic)
		mu.Unlock()
		msg.Ack()
	}))

	require.NoError(t, b.Send(context.Background(), "events/created", []byte("x"), nil))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(topics) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"events/created"}, topics)
}

func TestBrokerOutputPublishesToFixedTopic(t *testing.T) {
	b := broker.NewDevBroker()
	require.NoError(t, b.Connect(context.Background()))

	var mu sync.Mutex
	var received []byte
	require.NoError(t, b.Subscribe("out/fixed", "", func(d broker.Delivery) {
		mu.Lock()
		received = d.Payload
		mu.Unlock()
	}))

	impl, err := component.Build("broker-output", component.Config{Broker: b, Topic: "out/fixed"})
	require.NoError(t, err)

	_, err = impl.Invoke(message.New("", "hello", nil))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) > 0
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "hello", string(received))
}
