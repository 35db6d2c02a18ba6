package message_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenzoki/cellorg/internal/message"
)

func TestSettleFiresCallbacksInReverseOrder(t *testing.T) {
	msg := message.New("a/b", map[string]any{"x": 1}, nil)

	var order []int
	msg.RegisterAck(func(message.Outcome) { order = append(order, 1) })
	msg.RegisterAck(func(message.Outcome) { order = append(order, 2) })
	msg.RegisterAck(func(message.Outcome) { order = append(order, 3) })

	msg.Ack()

	assert.Equal(t, []int{3, 2, 1}, order)
}

func TestSettleIsIdempotent(t *testing.T) {
	msg := message.New("a/b", nil, nil)

	calls := 0
	msg.RegisterAck(func(message.Outcome) { calls++ })

	msg.Ack()
	msg.Nack(message.Rejected)
	msg.Ack()

	assert.Equal(t, 1, calls)
}

func TestNackDefaultsAcceptedToRejected(t *testing.T) {
	msg := message.New("a/b", nil, nil)

	var got message.Outcome
	msg.RegisterAck(func(o message.Outcome) { got = o })

	msg.Nack(message.Accepted)

	assert.Equal(t, message.Rejected, got)
}

func TestUserDataRoundtrip(t *testing.T) {
	msg := message.New("a/b", nil, nil)

	msg.SetUserData("temp", map[string]any{"greeting": "hi"})

	v, ok := msg.GetUserData("temp")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"greeting": "hi"}, v)
}

func TestTopicLevels(t *testing.T) {
	msg := message.New("a/b/c", nil, nil)
	assert.Equal(t, []string{"a", "b", "c"}, msg.TopicLevels())
}

func TestCloneIsIndependent(t *testing.T) {
	msg := message.New("a/b", nil, nil)
	msg.SetUserData("ns", "original")

	clone := msg.Clone()
	clone.SetUserData("ns", "changed")

	orig, _ := msg.GetUserData("ns")
	cloned, _ := clone.GetUserData("ns")

	assert.Equal(t, "original", orig)
	assert.Equal(t, "changed", cloned)
	assert.NotEqual(t, msg.ID, clone.ID)
}
