// Package expr implements the "source:path" expression grammar, the
// {{expr}} template renderer, and the invoke() descriptor resolver that
// together form the runtime's configuration-time data-selection language.
package expr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tenzoki/cellorg/internal/message"
)

// Scope is everything an expression can be evaluated against: the message
// currently in flight, the calling component's own config attributes (for
// "self:" lookups), and an optional (index, item) pair a transform
// operator is currently projecting.
type Scope struct {
	Msg   *message.Message
	Self  map[string]any

	HasItem bool
	Item    any
	Index   int
}

// ItemScope returns a copy of s with the (index, item) pair set, used by
// the transform pipeline's map/reduce/filter operators.
func (s Scope) ItemScope(index int, item any) Scope {
	s.HasItem = true
	s.Index = index
	s.Item = item
	return s
}

// Eval evaluates a "source:path" expression against scope, where source is
// the dotted tag naming what to read (input.payload, input.topic,
// input.topic_levels, input.user_properties, static, template,
// user_data.<ns>, self, item, invoke) and path is a dot/bracket walk over
// it. previous, item, and index may also appear bare, with no colon at
// all, since they name a single value rather than an addressable tree.
func Eval(expression string, scope Scope) (any, error) {
	switch {
	case expression == "previous":
		return scope.Msg.Previous, nil
	case strings.HasPrefix(expression, "previous."):
		return evalPath(scope.Msg.Previous, strings.TrimPrefix(expression, "previous"))
	case expression == "item":
		if !scope.HasItem {
			return nil, fmt.Errorf("expr: %q used outside an item context", expression)
		}
		return scope.Item, nil
	case expression == "index":
		if !scope.HasItem {
			return nil, fmt.Errorf("expr: %q used outside an item context", expression)
		}
		return scope.Index, nil
	}

	src, rest, hasColon := strings.Cut(expression, ":")
	if !hasColon {
		return nil, fmt.Errorf("expr: malformed expression %q: missing source prefix", expression)
	}

	switch {
	case src == "input.payload":
		return evalPath(scope.Msg.Payload, dotPath(rest))
	case src == "input.topic":
		return scope.Msg.Topic, nil
	case src == "input.topic_levels":
		return scope.Msg.TopicLevels(), nil
	case src == "input.user_properties":
		return evalPath(scope.Msg.UserProperties, dotPath(rest))
	case src == "static":
		return rest, nil
	case src == "template":
		return RenderTemplate(rest, scope)
	case strings.HasPrefix(src, "user_data."):
		ns := strings.TrimPrefix(src, "user_data.")
		v, _ := scope.Msg.GetUserData(ns)
		return evalPath(v, dotPath(rest))
	case src == "self":
		attr, path, _ := strings.Cut(rest, ".")
		v, ok := scope.Self[attr]
		if !ok {
			return nil, fmt.Errorf("expr: self attribute %q not set", attr)
		}
		if path == "" {
			return v, nil
		}
		return evalPath(v, "."+path)
	case src == "item":
		if !scope.HasItem {
			return nil, fmt.Errorf("expr: %q used outside an item context", expression)
		}
		return evalPath(scope.Item, dotPath(rest))
	case src == "invoke":
		return EvalInvoke(rest, scope)
	default:
		return nil, fmt.Errorf("expr: unknown expression source in %q", expression)
	}
}

// dotPath turns a bare path following a colon ("my_list.1", "my_list[1]",
// or "") into the leading-dot/bracket form evalPath expects. A dangling
// colon with nothing after it denotes "the whole object of that source".
func dotPath(rest string) string {
	if rest == "" || rest[0] == '[' {
		return rest
	}
	return "." + rest
}

// evalPath walks a dotted/bracketed path ("", ".a.b", "[0].c") over root.
// An empty path returns root unchanged.
func evalPath(root any, path string) (any, error) {
	cur := root
	for len(path) > 0 {
		switch path[0] {
		case '.':
			path = path[1:]
			end := pathTokenEnd(path)
			key := path[:end]
			path = path[end:]
			next, err := index(cur, key)
			if err != nil {
				return nil, err
			}
			cur = next
		case '[':
			end := strings.IndexByte(path, ']')
			if end < 0 {
				return nil, fmt.Errorf("expr: unterminated [ in path")
			}
			key := path[1:end]
			path = path[end+1:]
			next, err := index(cur, key)
			if err != nil {
				return nil, err
			}
			cur = next
		default:
			return nil, fmt.Errorf("expr: malformed path at %q", path)
		}
	}
	return cur, nil
}

func pathTokenEnd(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' || s[i] == '[' {
			return i
		}
	}
	return len(s)
}

func index(cur any, key string) (any, error) {
	switch c := cur.(type) {
	case map[string]any:
		// A missing key yields nil rather than an error: indexing past the
		// end of a list is the only out-of-range case that fails.
		return c[key], nil
	case []any:
		i, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("expr: index %q is not an integer", key)
		}
		if i < 0 || i >= len(c) {
			return nil, fmt.Errorf("expr: index %d out of range (len %d)", i, len(c))
		}
		return c[i], nil
	case nil:
		return nil, fmt.Errorf("expr: cannot index nil value with %q", key)
	default:
		return nil, fmt.Errorf("expr: cannot index value of type %T with %q", cur, key)
	}
}
