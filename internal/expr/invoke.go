package expr

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// InvokeDescriptor is the JSON shape an "invoke:" expression resolves:
//
//	{"module": "builtin", "function": "add", "params": {"positional": [...], "keyword": {...}}}
//
// module "builtin" selects the functions in builtins.go; any other module
// name is resolved through the registry populated by RegisterModule, so
// user components can contribute their own invoke functions.
type InvokeDescriptor struct {
	Module   string                 `json:"module"`
	Function string                 `json:"function"`
	Params   InvokeParams           `json:"params"`
	// Coerce, when non-empty, converts the result to "string", "int",
	// "float", or "bool" before returning it.
	Coerce   string                 `json:"coerce,omitempty"`
}

// InvokeParams separates positional arguments (themselves "source:path"
// expressions, evaluated before the call) from keyword arguments.
type InvokeParams struct {
	Positional []string          `json:"positional"`
	Keyword    map[string]string `json:"keyword"`
}

// InvokeFunc is a builtin or user-registered invoke function.
type InvokeFunc func(positional []any, keyword map[string]any) (any, error)

var modules = map[string]map[string]InvokeFunc{
	"builtin": builtinFunctions(),
}

// RegisterModule adds or replaces a named set of invoke functions, for user
// components that extend the invoke() grammar with domain functions.
func RegisterModule(name string, fns map[string]InvokeFunc) {
	modules[name] = fns
}

// EvalInvoke parses and executes an "invoke:<json descriptor>" expression.
func EvalInvoke(descriptorJSON string, scope Scope) (any, error) {
	var d InvokeDescriptor
	if err := json.Unmarshal([]byte(descriptorJSON), &d); err != nil {
		return nil, fmt.Errorf("expr: invalid invoke descriptor: %w", err)
	}

	mod, ok := modules[d.Module]
	if !ok {
		return nil, fmt.Errorf("expr: invoke module %q not registered", d.Module)
	}
	fn, ok := mod[d.Function]
	if !ok {
		return nil, fmt.Errorf("expr: invoke function %q not found in module %q", d.Function, d.Module)
	}

	positional := make([]any, len(d.Params.Positional))
	for i, p := range d.Params.Positional {
		v, err := Eval(p, scope)
		if err != nil {
			return nil, fmt.Errorf("expr: invoke %s.%s positional[%d]: %w", d.Module, d.Function, i, err)
		}
		positional[i] = v
	}

	keyword := make(map[string]any, len(d.Params.Keyword))
	for k, p := range d.Params.Keyword {
		v, err := Eval(p, scope)
		if err != nil {
			return nil, fmt.Errorf("expr: invoke %s.%s keyword[%s]: %w", d.Module, d.Function, k, err)
		}
		keyword[k] = v
	}

	result, err := fn(positional, keyword)
	if err != nil {
		return nil, err
	}
	if d.Coerce == "" {
		return result, nil
	}
	return coerce(result, d.Coerce)
}

func coerce(v any, kind string) (any, error) {
	switch kind {
	case "string":
		return fmt.Sprintf("%v", v), nil
	case "int":
		switch n := v.(type) {
		case int:
			return n, nil
		case float64:
			return int(n), nil
		case string:
			return strconv.Atoi(n)
		default:
			return nil, fmt.Errorf("expr: cannot coerce %T to int", v)
		}
	case "float":
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case string:
			return strconv.ParseFloat(n, 64)
		default:
			return nil, fmt.Errorf("expr: cannot coerce %T to float", v)
		}
	case "bool":
		switch n := v.(type) {
		case bool:
			return n, nil
		case string:
			return strconv.ParseBool(n)
		default:
			return nil, fmt.Errorf("expr: cannot coerce %T to bool", v)
		}
	default:
		return nil, fmt.Errorf("expr: unknown coercion %q", kind)
	}
}

func arg(positional []any, i int) any {
	if i < len(positional) {
		return positional[i]
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
