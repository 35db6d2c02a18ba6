package transform

import (
	"fmt"

	"github.com/tenzoki/cellorg/internal/expr"
	"github.com/tenzoki/cellorg/internal/message"
)

// appendOp evaluates value_expression and appends it to the list currently
// at dest_expression, creating the list if absent.
type appendOp struct {
	value string
	dest  string
}

func newAppend(c Config) (Op, error) {
	if c.AppendValue == "" || c.Dest == "" {
		return nil, fmt.Errorf("append transform requires value_expression and dest_expression")
	}
	return &appendOp{value: c.AppendValue, dest: c.Dest}, nil
}

func (o *appendOp) Apply(msg *message.Message, self map[string]any) error {
	value, err := expr.Eval(o.value, expr.Scope{Msg: msg, Self: self})
	if err != nil {
		return fmt.Errorf("append: evaluating value_expression: %w", err)
	}

	current, err := readDest(msg, self, o.dest)
	if err != nil {
		return err
	}
	list, _ := current.([]any)
	updated := append(append([]any{}, list...), value)

	if err := assignPath(msg, o.dest, updated); err != nil {
		return fmt.Errorf("append: assigning dest_expression: %w", err)
	}
	return nil
}

// readDest reads the current value at a destination expression by
// re-interpreting it as a "source:path" read, so append can find the
// existing list before growing it.
func readDest(msg *message.Message, self map[string]any, destExpr string) (any, error) {
	v, err := expr.Eval(destExpr, expr.Scope{Msg: msg, Self: self})
	if err != nil {
		// Treat "not found" as an empty starting point rather than an error.
		return nil, nil
	}
	return v, nil
}
