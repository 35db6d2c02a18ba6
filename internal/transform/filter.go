package transform

import (
	"fmt"

	"github.com/tenzoki/cellorg/internal/expr"
	"github.com/tenzoki/cellorg/internal/message"
)

// filterOp evaluates output_expression once per (index, item) of
// list_expression's result, keeping items whose evaluation is truthy, and
// assigns the surviving sublist to dest_expression.
type filterOp struct {
	list   string
	output string
	dest   string
}

func newFilter(c Config) (Op, error) {
	if c.ListExpression == "" || c.OutputExpression == "" || c.Dest == "" {
		return nil, fmt.Errorf("filter transform requires list_expression, output_expression and dest_expression")
	}
	return &filterOp{list: c.ListExpression, output: c.OutputExpression, dest: c.Dest}, nil
}

func (o *filterOp) Apply(msg *message.Message, self map[string]any) error {
	list, err := evalList(o.list, msg, self)
	if err != nil {
		return fmt.Errorf("filter: %w", err)
	}

	base := expr.Scope{Msg: msg, Self: self}
	kept := make([]any, 0, len(list))
	for i, item := range list {
		v, err := expr.Eval(o.output, base.ItemScope(i, item))
		if err != nil {
			return fmt.Errorf("filter: output_expression at index %d: %w", i, err)
		}
		if truthyExported(v) {
			kept = append(kept, item)
		}
	}

	if err := assignPath(msg, o.dest, kept); err != nil {
		return fmt.Errorf("filter: assigning dest_expression: %w", err)
	}
	return nil
}

// truthyExported mirrors expr's unexported truthy for filter's use, kept
// local to avoid exporting an internal helper solely for this call site.
func truthyExported(v any) bool {
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
