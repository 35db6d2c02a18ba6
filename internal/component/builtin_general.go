package component

import (
	"fmt"

	"github.com/tenzoki/cellorg/internal/expr"
	"github.com/tenzoki/cellorg/internal/message"
)

func init() {
	Register("pass_through", newPassThrough)
	Register("message_filter", newMessageFilter)
	Register("iterate", newIterate)
}

// passThrough returns its input payload unchanged; the reference minimal
// component.
type passThrough struct{}

func newPassThrough(Config) (Component, error) { return passThrough{}, nil }

func (passThrough) Invoke(msg *message.Message) (any, error) {
	return msg.Payload, nil
}

// messageFilter evaluates its configured filter_expression; a falsy result
// discards the message (acking it) instead of propagating it downstream
// (grounded on the original's message_filter).
type messageFilter struct {
	filterExpr string
}

func newMessageFilter(cfg Config) (Component, error) {
	expression, _ := cfg.Params["filter_expression"].(string)
	if expression == "" {
		return nil, fmt.Errorf("message_filter: component_config.filter_expression is required")
	}
	return &messageFilter{filterExpr: expression}, nil
}

func (f *messageFilter) Invoke(msg *message.Message) (any, error) {
	v, err := expr.Eval(f.filterExpr, expr.Scope{Msg: msg, Self: nil})
	if err != nil {
		return nil, fmt.Errorf("message_filter: %w", err)
	}
	if !truthy(v) {
		return Discard, nil
	}
	return msg.Payload, nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// iterate evaluates list_expression and re-invokes the rest of the flow
// once per element, cloning the message for every element except the
// last, which reuses the original Message (so its eventual ack/nack still
// settles the upstream delivery). Element identity is decided by index,
// not equality, so repeated values iterate correctly, unlike the
// original's iterate.py which used `item != data[-1]`.
type iterate struct {
	listExpr string
	emit     func(*message.Message)
}

func newIterate(cfg Config) (Component, error) {
	listExpr, _ := cfg.Params["list_expression"].(string)
	if listExpr == "" {
		return nil, fmt.Errorf("iterate: component_config.list_expression is required")
	}
	return &iterate{listExpr: listExpr}, nil
}

// SetEmit wires the stage's downstream send function into the component,
// since iterate must produce zero-or-more outbound messages rather than
// exactly one. The flow builder calls this after construction for any
// Component implementing emitter.
func (it *iterate) SetEmit(emit func(*message.Message)) { it.emit = emit }

func (it *iterate) Invoke(msg *message.Message) (any, error) {
	v, err := expr.Eval(it.listExpr, expr.Scope{Msg: msg})
	if err != nil {
		return nil, fmt.Errorf("iterate: %w", err)
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("iterate: list_expression did not evaluate to a list (got %T)", v)
	}
	if len(items) == 0 {
		return Discard, nil
	}

	last := len(items) - 1
	for i, item := range items {
		var m *message.Message
		if i == last {
			m = msg
		} else {
			m = msg.Clone()
		}
		m.HasIteration = true
		m.IterationIndex = i
		m.IterationItem = item
		m.Payload = item
		m.Previous = item

		if it.emit != nil && i != last {
			it.emit(m)
		}
	}
	// The final element flows through the normal single-result path.
	return items[last], nil
}

// Emitter is implemented by components (iterate) that may produce more
// than one outbound message per invocation; a flow builder wires
// SetEmit to the stage's own forwarding function after linking stages,
// so these extra messages skip straight to the next stage rather than
// waiting for Invoke to return.
type Emitter interface {
	SetEmit(func(*message.Message))
}
