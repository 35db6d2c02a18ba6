package rrc_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenzoki/cellorg/internal/broker"
	"github.com/tenzoki/cellorg/internal/cerr"
	"github.com/tenzoki/cellorg/internal/rrc"
)

// newEchoBroker returns a connected DevBroker whose "svc/echo" subscriber
// bounces every request straight back to replyTopic, preserving the request
// ID the correlator injected into user properties.
func newEchoBroker(t *testing.T, replyTopic string) *broker.DevBroker {
	t.Helper()
	b := broker.NewDevBroker()
	require.NoError(t, b.Connect(context.Background()))
	require.NoError(t, b.Subscribe("svc/echo", "", func(d broker.Delivery) {
		_ = b.Send(context.Background(), replyTopic, d.Payload, d.UserProperties)
	}))
	return b
}

func TestRequestRoundTripsThroughEchoResponder(t *testing.T) {
	b := newEchoBroker(t, "reply/echo")
	c, err := rrc.New(b, "reply/echo")
	require.NoError(t, err)
	defer c.Close()

	msg, err := c.Request(context.Background(), "svc/echo", []byte("ping"), nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), msg.Payload)
}

func TestRequestTimesOutWithNoResponder(t *testing.T) {
	b := broker.NewDevBroker()
	require.NoError(t, b.Connect(context.Background()))

	c, err := rrc.New(b, "reply/nobody")
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Request(context.Background(), "svc/nobody", []byte("ping"), nil, 20*time.Millisecond)
	assert.True(t, cerr.IsTimeout(err))
}

func TestConcurrentRequestsGetDistinctRequestIDs(t *testing.T) {
	b := newEchoBroker(t, "reply/echo2")
	c, err := rrc.New(b, "reply/echo2")
	require.NoError(t, err)
	defer c.Close()

	seen := make(map[string]bool)
	type result struct {
		id  string
		err error
	}
	results := make(chan result, 5)
	for i := 0; i < 5; i++ {
		go func() {
			msg, err := c.Request(context.Background(), "svc/echo", []byte("y"), nil, time.Second)
			if err != nil {
				results <- result{err: err}
				return
			}
			id, _ := msg.UserProperties[rrc.RequestIDProperty].(string)
			results <- result{id: id}
		}()
	}
	for i := 0; i < 5; i++ {
		r := <-results
		require.NoError(t, r.err)
		assert.False(t, seen[r.id])
		seen[r.id] = true
	}
}

func TestRequestStreamDeliversUntilCanceled(t *testing.T) {
	b := broker.NewDevBroker()
	require.NoError(t, b.Connect(context.Background()))

	c, err := rrc.New(b, "reply/stream")
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, b.Subscribe("svc/stream", "", func(d broker.Delivery) {
		for i := 0; i < 3; i++ {
			_ = b.Send(context.Background(), "reply/stream", d.Payload, d.UserProperties)
		}
	}))

	replies, cancel, err := c.RequestStream(context.Background(), "svc/stream", []byte("go"), nil)
	require.NoError(t, err)
	defer cancel()

	for i := 0; i < 3; i++ {
		select {
		case msg := <-replies:
			assert.Equal(t, []byte("go"), msg.Payload)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for streamed reply")
		}
	}
}

func TestCloseReleasesPendingSyncRequestsWithClosedError(t *testing.T) {
	b := broker.NewDevBroker()
	require.NoError(t, b.Connect(context.Background()))

	c, err := rrc.New(b, "reply/close")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := c.Request(context.Background(), "svc/close", []byte("x"), nil, 5*time.Second)
		done <- err
	}()

	// Give the request time to register before closing.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, c.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, cerr.ErrCorrelatorClosed)
	case <-time.After(time.Second):
		t.Fatal("Close did not release the pending sync request")
	}
}
