package transform_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenzoki/cellorg/internal/message"
	"github.com/tenzoki/cellorg/internal/transform"
)

func TestCopyChainBuildsUserData(t *testing.T) {
	msg := message.New("", map[string]any{"greeting": "hi"}, nil)

	pipeline, err := transform.Build([]transform.Config{
		{Type: "copy", Source: "input.payload:greeting", Dest: "user_data.temp:greeting"},
		{Type: "copy", Source: "static:World", Dest: "user_data.temp:name"},
	})
	require.NoError(t, err)

	require.NoError(t, pipeline.Apply(msg, nil))

	v, ok := msg.GetUserData("temp")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"greeting": "hi", "name": "World"}, v)
}

func TestCopyListItemRequiresIterationContext(t *testing.T) {
	msg := message.New("", nil, nil)

	pipeline, err := transform.Build([]transform.Config{
		{Type: "copy_list_item", Source: "item", Dest: "user_data.temp:"},
	})
	require.NoError(t, err)

	err = pipeline.Apply(msg, nil)
	assert.Error(t, err)
}

func TestCopyListItemUsesBoundIterationItem(t *testing.T) {
	msg := message.New("", nil, nil)
	msg.HasIteration = true
	msg.IterationIndex = 2
	msg.IterationItem = "c"

	pipeline, err := transform.Build([]transform.Config{
		{Type: "copy_list_item", Source: "item", Dest: "user_data.temp:letter"},
		{Type: "copy_list_item", Source: "index", Dest: "user_data.temp:position"},
	})
	require.NoError(t, err)

	require.NoError(t, pipeline.Apply(msg, nil))

	v, ok := msg.GetUserData("temp")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"letter": "c", "position": 2}, v)
}

func TestFilterDropsNonMatchingListItems(t *testing.T) {
	msg := message.New("", map[string]any{"items": []any{1.0, 2.0, 3.0, 4.0}}, nil)

	pipeline, err := transform.Build([]transform.Config{
		{
			Type:             "filter",
			ListExpression:   "input.payload:items",
			OutputExpression: `invoke:{"module":"builtin","function":"greater_than","params":{"positional":["item","input.payload:items[0]"]}}`,
			Dest:             "input.payload:above_first",
		},
	})
	require.NoError(t, err)
	require.NoError(t, pipeline.Apply(msg, nil))

	payload, ok := msg.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{2.0, 3.0, 4.0}, payload["above_first"])
}

func TestBuildRejectsUnknownTransformType(t *testing.T) {
	_, err := transform.Build([]transform.Config{{Type: "bogus"}})
	assert.Error(t, err)
}

func TestBuildRejectsMissingCopyExpressions(t *testing.T) {
	_, err := transform.Build([]transform.Config{{Type: "copy"}})
	assert.Error(t, err)
}
