// Package transform implements the ordered pre-invoke transform pipeline
// (copy, copy_list_item, append, map, reduce, filter) each component may
// declare, applied to a Message before the component's own invoke runs.
package transform

import (
	"fmt"
	"strings"

	"github.com/tenzoki/cellorg/internal/expr"
	"github.com/tenzoki/cellorg/internal/message"
)

// Op is a single configured transform step.
type Op interface {
	// Apply runs the transform against msg, mutating it or its payload in
	// place as appropriate for the operator.
	Apply(msg *message.Message, self map[string]any) error
}

// Config is the YAML shape of one transform entry.
type Config struct {
	Type string `yaml:"type"`

	// copy / copy_list_item
	Source string `yaml:"source_expression"`
	Dest   string `yaml:"dest_expression"`

	// append
	AppendValue string `yaml:"value_expression"`

	// map / reduce / filter
	ListExpression    string `yaml:"list_expression"`
	OutputExpression  string `yaml:"output_expression"`
	InitialExpression string `yaml:"initial_expression"`
}

// Pipeline is an ordered list of transform operators.
type Pipeline struct {
	ops []Op
}

// Build compiles a list of transform configs into a Pipeline, in the order
// given (transforms run in declared order).
func Build(configs []Config) (*Pipeline, error) {
	ops := make([]Op, 0, len(configs))
	for i, c := range configs {
		op, err := build(c)
		if err != nil {
			return nil, fmt.Errorf("transform[%d]: %w", i, err)
		}
		ops = append(ops, op)
	}
	return &Pipeline{ops: ops}, nil
}

func build(c Config) (Op, error) {
	switch c.Type {
	case "copy":
		return newCopy(c, false)
	case "copy_list_item":
		return newCopy(c, true)
	case "append":
		return newAppend(c)
	case "map":
		return newMap(c)
	case "reduce":
		return newReduce(c)
	case "filter":
		return newFilter(c)
	case "":
		return nil, fmt.Errorf("missing transform type")
	default:
		return nil, fmt.Errorf("unknown transform type %q", c.Type)
	}
}

// Apply runs every operator in order against msg.
func (p *Pipeline) Apply(msg *message.Message, self map[string]any) error {
	for i, op := range p.ops {
		if err := op.Apply(msg, self); err != nil {
			return fmt.Errorf("transform[%d]: %w", i, err)
		}
	}
	return nil
}

// assignPath writes value at the path named by a "source:path"-style
// destination expression. Only a small set of destination forms are
// supported: user_data.<ns>[:path], input.payload[:path] (writing back
// into the message payload tree).
func assignPath(msg *message.Message, destExpr string, value any) error {
	src, rest, ok := splitColon(destExpr)
	if !ok {
		return fmt.Errorf("malformed destination expression %q", destExpr)
	}
	switch {
	case strings.HasPrefix(src, "user_data."):
		ns := strings.TrimPrefix(src, "user_data.")
		if rest == "" {
			msg.SetUserData(ns, value)
			return nil
		}
		root, _ := msg.GetUserData(ns)
		updated, err := setPath(root, "."+rest, value)
		if err != nil {
			return err
		}
		msg.SetUserData(ns, updated)
		return nil
	case src == "input.payload":
		if rest == "" {
			msg.Payload = value
			return nil
		}
		updated, err := setPath(msg.Payload, "."+rest, value)
		if err != nil {
			return err
		}
		msg.Payload = updated
		return nil
	default:
		return fmt.Errorf("unsupported destination source %q", src)
	}
}

func splitColon(s string) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

// setPath writes value into root at a leading-dot path, returning the new
// root. Every dot-separated segment is a map key: brackets and list indices
// are not interpreted, and a non-map value met along the path (a list
// included) is replaced by a new map. Maps along the path are copied
// rather than modified in place.
func setPath(root any, path string, value any) (any, error) {
	if path == "" {
		return value, nil
	}
	if path[0] != '.' {
		return nil, fmt.Errorf("malformed path %q", path)
	}
	path = path[1:]
	key := path
	remainder := ""
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			key = path[:i]
			remainder = path[i:]
			break
		}
	}

	m, ok := root.(map[string]any)
	if !ok {
		m = make(map[string]any)
	} else {
		clone := make(map[string]any, len(m)+1)
		for k, v := range m {
			clone[k] = v
		}
		m = clone
	}

	if remainder == "" {
		m[key] = value
		return m, nil
	}
	child, err := setPath(m[key], remainder, value)
	if err != nil {
		return nil, err
	}
	m[key] = child
	return m, nil
}

// evalList evaluates a list_expression and type-asserts the result to a
// slice, as map/reduce/filter all require.
func evalList(listExpr string, msg *message.Message, self map[string]any) ([]any, error) {
	v, err := expr.Eval(listExpr, expr.Scope{Msg: msg, Self: self})
	if err != nil {
		return nil, err
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("list_expression %q did not evaluate to a list (got %T)", listExpr, v)
	}
	return list, nil
}
