package expr

import (
	"fmt"
	"math"
	"reflect"

	"github.com/google/uuid"
)

// builtinFunctions implements the built-in invoke module: arithmetic,
// comparison, logical, and container helpers available to every
// invoke:<descriptor> expression without registration.
func builtinFunctions() map[string]InvokeFunc {
	return map[string]InvokeFunc{
		"add":      numeric2(func(a, b float64) float64 { return a + b }),
		"subtract": numeric2(func(a, b float64) float64 { return a - b }),
		"multiply": numeric2(func(a, b float64) float64 { return a * b }),
		"divide": func(positional []any, _ map[string]any) (any, error) {
			a, okA := toFloat(arg(positional, 0))
			b, okB := toFloat(arg(positional, 1))
			if !okA || !okB {
				return nil, fmt.Errorf("expr: divide requires two numeric arguments")
			}
			if b == 0 {
				return nil, fmt.Errorf("expr: divide by zero")
			}
			return a / b, nil
		},
		"modulus": func(positional []any, _ map[string]any) (any, error) {
			a, okA := toFloat(arg(positional, 0))
			b, okB := toFloat(arg(positional, 1))
			if !okA || !okB {
				return nil, fmt.Errorf("expr: modulus requires two numeric arguments")
			}
			if b == 0 {
				return nil, fmt.Errorf("expr: modulus by zero")
			}
			ai, bi := int64(a), int64(b)
			return float64(ai % bi), nil
		},
		"power": numeric2(power),

		"equal":                   compare2(func(c int) bool { return c == 0 }),
		"not_equal":               compare2(func(c int) bool { return c != 0 }),
		"greater_than":            compare2(func(c int) bool { return c > 0 }),
		"less_than":               compare2(func(c int) bool { return c < 0 }),
		"greater_than_or_equal":   compare2(func(c int) bool { return c >= 0 }),
		"less_than_or_equal":      compare2(func(c int) bool { return c <= 0 }),

		"and_op": func(positional []any, _ map[string]any) (any, error) {
			return truthy(arg(positional, 0)) && truthy(arg(positional, 1)), nil
		},
		"or_op": func(positional []any, _ map[string]any) (any, error) {
			return truthy(arg(positional, 0)) || truthy(arg(positional, 1)), nil
		},
		"not_op": func(positional []any, _ map[string]any) (any, error) {
			return !truthy(arg(positional, 0)), nil
		},
		"in_op": func(positional []any, _ map[string]any) (any, error) {
			needle := arg(positional, 0)
			haystack := arg(positional, 1)
			return contains(haystack, needle), nil
		},

		"append": func(positional []any, _ map[string]any) (any, error) {
			list, ok := arg(positional, 0).([]any)
			if !ok {
				return nil, fmt.Errorf("expr: append requires a list as its first argument")
			}
			out := make([]any, len(list), len(list)+1)
			copy(out, list)
			return append(out, arg(positional, 1)), nil
		},
		"negate": func(positional []any, _ map[string]any) (any, error) {
			f, ok := toFloat(arg(positional, 0))
			if !ok {
				return nil, fmt.Errorf("expr: negate requires a numeric argument")
			}
			return -f, nil
		},

		"empty_list":   func([]any, map[string]any) (any, error) { return []any{}, nil },
		"empty_dict":   func([]any, map[string]any) (any, error) { return map[string]any{}, nil },
		"empty_string": func([]any, map[string]any) (any, error) { return "", nil },
		"empty_set":    func([]any, map[string]any) (any, error) { return []any{}, nil },
		"empty_tuple":  func([]any, map[string]any) (any, error) { return []any{}, nil },
		"empty_float":  func([]any, map[string]any) (any, error) { return 0.0, nil },
		"empty_int":    func([]any, map[string]any) (any, error) { return 0, nil },

		"if_else": func(positional []any, _ map[string]any) (any, error) {
			if truthy(arg(positional, 0)) {
				return arg(positional, 1), nil
			}
			return arg(positional, 2), nil
		},
		"uuid": func([]any, map[string]any) (any, error) {
			return uuid.NewString(), nil
		},
	}
}

func numeric2(f func(a, b float64) float64) InvokeFunc {
	return func(positional []any, _ map[string]any) (any, error) {
		a, okA := toFloat(arg(positional, 0))
		b, okB := toFloat(arg(positional, 1))
		if !okA || !okB {
			return nil, fmt.Errorf("expr: requires two numeric arguments")
		}
		return f(a, b), nil
	}
}

func power(a, b float64) float64 {
	return math.Pow(a, b)
}

func compare2(pred func(c int) bool) InvokeFunc {
	return func(positional []any, _ map[string]any) (any, error) {
		a := arg(positional, 0)
		b := arg(positional, 1)
		c, err := compareValues(a, b)
		if err != nil {
			return nil, err
		}
		return pred(c), nil
	}
}

func compareValues(a, b any) (int, error) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		default:
			return 0, nil
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch {
		case as < bs:
			return -1, nil
		case as > bs:
			return 1, nil
		default:
			return 0, nil
		}
	}
	if reflect.DeepEqual(a, b) {
		return 0, nil
	}
	return 0, fmt.Errorf("expr: cannot compare %T and %T", a, b)
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

func contains(haystack, needle any) bool {
	switch h := haystack.(type) {
	case []any:
		for _, v := range h {
			if reflect.DeepEqual(v, needle) {
				return true
			}
		}
		return false
	case map[string]any:
		key, ok := needle.(string)
		if !ok {
			return false
		}
		_, found := h[key]
		return found
	case string:
		needleStr, ok := needle.(string)
		return ok && len(h) > 0 && len(needleStr) > 0 && indexOf(h, needleStr) >= 0
	default:
		return false
	}
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
