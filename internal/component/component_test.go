package component_test

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenzoki/cellorg/internal/component"
	"github.com/tenzoki/cellorg/internal/message"
)

func TestPassThroughReturnsPayloadUnchanged(t *testing.T) {
	impl, err := component.Build("pass_through", component.Config{})
	require.NoError(t, err)

	msg := message.New("a/b", "hello", nil)
	result, err := impl.Invoke(msg)
	require.NoError(t, err)
	assert.Equal(t, "hello", result)
}

func TestMessageFilterDiscardsFalsyResult(t *testing.T) {
	impl, err := component.Build("message_filter", component.Config{
		Params: map[string]any{"filter_expression": "input.payload:keep"},
	})
	require.NoError(t, err)

	drop := message.New("", map[string]any{"keep": false}, nil)
	result, err := impl.Invoke(drop)
	require.NoError(t, err)
	assert.True(t, component.IsDiscard(result))

	keep := message.New("", map[string]any{"keep": true}, nil)
	result, err = impl.Invoke(keep)
	require.NoError(t, err)
	assert.False(t, component.IsDiscard(result))
}

func TestMessageFilterRequiresFilterExpression(t *testing.T) {
	_, err := component.Build("message_filter", component.Config{})
	assert.Error(t, err)
}

func TestIterateEmitsOneMessagePerElementAndTagsPrevious(t *testing.T) {
	impl, err := component.Build("iterate", component.Config{
		Params: map[string]any{"list_expression": "input.payload:items"},
	})
	require.NoError(t, err)

	emitter := impl.(component.Emitter)
	var emitted []*message.Message
	emitter.SetEmit(func(m *message.Message) { emitted = append(emitted, m) })

	msg := message.New("", map[string]any{"items": []any{1.0, 2.0, 3.0}}, nil)
	result, err := impl.Invoke(msg)
	require.NoError(t, err)

	// The last element returns through Invoke's normal result path rather
	// than being emitted, so only the first two elements appear in emitted.
	require.Len(t, emitted, 2)
	assert.Equal(t, 1.0, emitted[0].Payload)
	assert.Equal(t, 1.0, emitted[0].Previous)
	assert.Equal(t, 0, emitted[0].IterationIndex)
	assert.Equal(t, 2.0, emitted[1].Payload)
	assert.Equal(t, 2.0, emitted[1].Previous)
	assert.Equal(t, 1, emitted[1].IterationIndex)
	assert.Equal(t, 3.0, result)
}

func TestIterateDiscardsEmptyList(t *testing.T) {
	impl, err := component.Build("iterate", component.Config{
		Params: map[string]any{"list_expression": "input.payload:items"},
	})
	require.NoError(t, err)

	msg := message.New("", map[string]any{"items": []any{}}, nil)
	result, err := impl.Invoke(msg)
	require.NoError(t, err)
	assert.True(t, component.IsDiscard(result))
}

// stageComponent is a minimal Component stub used by the Stage-level tests
// below, independent of the registered builtins.
type stageComponent struct {
	fn func(*message.Message) (any, error)
}

func (s stageComponent) Invoke(msg *message.Message) (any, error) { return s.fn(msg) }

func TestStageAcksDiscardedMessagesWithoutForwarding(t *testing.T) {
	filter, err := component.Build("message_filter", component.Config{
		Params: map[string]any{"filter_expression": "input.payload:keep"},
	})
	require.NoError(t, err)

	stage := component.NewStage("filter", filter, nil, nil, 4, zerolog.Nop())
	sink := component.NewStage("sink", stageComponent{fn: func(m *message.Message) (any, error) { return m.Payload, nil }}, nil, nil, 4, zerolog.Nop())
	stage.Next = sink

	stage.Start(1)
	sink.Start(1)
	defer func() {
		stage.Stop()
		sink.Stop()
		stage.Wait()
		sink.Wait()
	}()

	var mu sync.Mutex
	var outcomes []message.Outcome

	send := func(keep bool) {
		msg := message.New("", map[string]any{"keep": keep}, nil)
		msg.RegisterAck(func(o message.Outcome) {
			mu.Lock()
			outcomes = append(outcomes, o)
			mu.Unlock()
		})
		require.NoError(t, stage.Send(msg))
	}

	send(true)
	send(false)
	send(true)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(outcomes) == 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, o := range outcomes {
		assert.Equal(t, message.Accepted, o)
	}
}
