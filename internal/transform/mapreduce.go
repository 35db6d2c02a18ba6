package transform

import (
	"fmt"

	"github.com/tenzoki/cellorg/internal/expr"
	"github.com/tenzoki/cellorg/internal/message"
)

// mapOp evaluates output_expression once per (index, item) pair of
// list_expression's result and assigns the collected list to
// dest_expression.
type mapOp struct {
	list   string
	output string
	dest   string
}

func newMap(c Config) (Op, error) {
	if c.ListExpression == "" || c.OutputExpression == "" || c.Dest == "" {
		return nil, fmt.Errorf("map transform requires list_expression, output_expression and dest_expression")
	}
	return &mapOp{list: c.ListExpression, output: c.OutputExpression, dest: c.Dest}, nil
}

func (o *mapOp) Apply(msg *message.Message, self map[string]any) error {
	list, err := evalList(o.list, msg, self)
	if err != nil {
		return fmt.Errorf("map: %w", err)
	}

	base := expr.Scope{Msg: msg, Self: self}
	out := make([]any, len(list))
	for i, item := range list {
		v, err := expr.Eval(o.output, base.ItemScope(i, item))
		if err != nil {
			return fmt.Errorf("map: output_expression at index %d: %w", i, err)
		}
		out[i] = v
	}

	if err := assignPath(msg, o.dest, out); err != nil {
		return fmt.Errorf("map: assigning dest_expression: %w", err)
	}
	return nil
}

// reduceOp folds list_expression's result through output_expression,
// binding "previous" to the accumulator and "item"/"index" to the current
// element, seeded by initial_expression.
type reduceOp struct {
	list    string
	output  string
	initial string
	dest    string
}

func newReduce(c Config) (Op, error) {
	if c.ListExpression == "" || c.OutputExpression == "" || c.Dest == "" {
		return nil, fmt.Errorf("reduce transform requires list_expression, output_expression and dest_expression")
	}
	return &reduceOp{list: c.ListExpression, output: c.OutputExpression, initial: c.InitialExpression, dest: c.Dest}, nil
}

func (o *reduceOp) Apply(msg *message.Message, self map[string]any) error {
	list, err := evalList(o.list, msg, self)
	if err != nil {
		return fmt.Errorf("reduce: %w", err)
	}

	base := expr.Scope{Msg: msg, Self: self}
	var acc any
	if o.initial != "" {
		acc, err = expr.Eval(o.initial, base)
		if err != nil {
			return fmt.Errorf("reduce: initial_expression: %w", err)
		}
	}

	for i, item := range list {
		prevPayload := msg.Previous
		msg.Previous = acc
		v, err := expr.Eval(o.output, base.ItemScope(i, item))
		msg.Previous = prevPayload
		if err != nil {
			return fmt.Errorf("reduce: output_expression at index %d: %w", i, err)
		}
		acc = v
	}

	if err := assignPath(msg, o.dest, acc); err != nil {
		return fmt.Errorf("reduce: assigning dest_expression: %w", err)
	}
	return nil
}
