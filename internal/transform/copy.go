package transform

import (
	"fmt"

	"github.com/tenzoki/cellorg/internal/expr"
	"github.com/tenzoki/cellorg/internal/message"
)

// copyOp implements the "copy" and "copy_list_item" transform types: both
// evaluate source_expression and assign the result to dest_expression.
// copy_list_item additionally requires the message to carry an iteration
// binding (set by a surrounding iterate) and evaluates source_expression
// with that binding's "item" and "index" in scope, matching the original's
// separate CopyListItemTransform.
type copyOp struct {
	source    string
	dest      string
	listItem  bool
}

func newCopy(c Config, listItem bool) (Op, error) {
	if c.Source == "" || c.Dest == "" {
		return nil, fmt.Errorf("copy transform requires source_expression and dest_expression")
	}
	return &copyOp{source: c.Source, dest: c.Dest, listItem: listItem}, nil
}

func (o *copyOp) Apply(msg *message.Message, self map[string]any) error {
	scope := expr.Scope{Msg: msg, Self: self}
	if o.listItem {
		if !msg.HasIteration {
			return fmt.Errorf("copy_list_item used outside an iteration context")
		}
		scope = scope.ItemScope(msg.IterationIndex, msg.IterationItem)
	}

	value, err := expr.Eval(o.source, scope)
	if err != nil {
		return fmt.Errorf("copy: evaluating source_expression: %w", err)
	}
	if err := assignPath(msg, o.dest, value); err != nil {
		return fmt.Errorf("copy: assigning dest_expression: %w", err)
	}
	return nil
}
