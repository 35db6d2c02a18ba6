package expr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenzoki/cellorg/internal/expr"
	"github.com/tenzoki/cellorg/internal/message"
)

func TestEvalInputPayloadPath(t *testing.T) {
	msg := message.New("", map[string]any{"text": "Hello, World!"}, nil)

	v, err := expr.Eval("input.payload:text", expr.Scope{Msg: msg})
	require.NoError(t, err)
	assert.Equal(t, "Hello, World!", v)
}

func TestEvalStaticAndPrevious(t *testing.T) {
	msg := message.New("", nil, nil)
	msg.Previous = "Hello, World!"

	v, err := expr.Eval("static:Static Greeting!", expr.Scope{Msg: msg})
	require.NoError(t, err)
	assert.Equal(t, "Static Greeting!", v)

	v, err = expr.Eval("previous", expr.Scope{Msg: msg})
	require.NoError(t, err)
	assert.Equal(t, "Hello, World!", v)
}

func TestEvalSelfAttribute(t *testing.T) {
	msg := message.New("", nil, nil)
	scope := expr.Scope{Msg: msg, Self: map[string]any{"filter_expression": "equal(1,1)"}}

	v, err := expr.Eval("self:filter_expression", scope)
	require.NoError(t, err)
	assert.Equal(t, "equal(1,1)", v)
}

func TestEvalItemAndIndexRequireItemContext(t *testing.T) {
	msg := message.New("", nil, nil)
	_, err := expr.Eval("item", expr.Scope{Msg: msg})
	assert.Error(t, err)

	scope := expr.Scope{Msg: msg}.ItemScope(2, "c")
	v, err := expr.Eval("item", scope)
	require.NoError(t, err)
	assert.Equal(t, "c", v)

	idx, err := expr.Eval("index", scope)
	require.NoError(t, err)
	assert.Equal(t, 2, idx)
}

func TestEvalInvokeBuiltinCompare(t *testing.T) {
	msg := message.New("", map[string]any{"my_list": []any{1.0, 2.0, 3.0}}, nil)

	descriptor := `{"module":"builtin","function":"equal","params":{"positional":["input.payload:my_list[1]","input.payload:my_list[1]"]}}`
	v, err := expr.Eval("invoke:"+descriptor, expr.Scope{Msg: msg})
	require.NoError(t, err)
	assert.Equal(t, true, v)

	descriptor = `{"module":"builtin","function":"equal","params":{"positional":["input.payload:my_list[1]","input.payload:my_list[0]"]}}`
	v, err = expr.Eval("invoke:"+descriptor, expr.Scope{Msg: msg})
	require.NoError(t, err)
	assert.Equal(t, false, v)
}

func TestEvalInvokeBuiltinArithmetic(t *testing.T) {
	msg := message.New("", nil, nil)
	descriptor := `{"module":"builtin","function":"add","params":{"keyword":{"a":"static:1","b":"static:2"}}}`
	// builtin functions only read positional args here; keyword args map to
	// nothing named "a"/"b" so this exercises the "missing argument" path.
	_, err := expr.Eval("invoke:"+descriptor, expr.Scope{Msg: msg})
	assert.Error(t, err)
}

func TestRenderTemplateJSONEncoding(t *testing.T) {
	msg := message.New("", map[string]any{"greeting": "hi"}, nil)
	out, err := expr.RenderTemplate("value={{json://input.payload:}}", expr.Scope{Msg: msg})
	require.NoError(t, err)
	assert.Equal(t, `value={"greeting":"hi"}`, out)
}

func TestRenderTemplateBase64Encoding(t *testing.T) {
	msg := message.New("", nil, nil)
	out, err := expr.RenderTemplate("{{base64://static:hi}}", expr.Scope{Msg: msg})
	require.NoError(t, err)
	assert.Equal(t, "aGk=", out)
}

func TestEvalUnknownSourceErrors(t *testing.T) {
	msg := message.New("", nil, nil)
	_, err := expr.Eval("bogus:path", expr.Scope{Msg: msg})
	assert.Error(t, err)
}

func TestEvalMalformedExpressionErrors(t *testing.T) {
	msg := message.New("", nil, nil)
	_, err := expr.Eval("no-colon-here", expr.Scope{Msg: msg})
	assert.Error(t, err)
}
