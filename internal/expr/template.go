package expr

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// RenderTemplate substitutes every {{expr}} token in tmpl by evaluating expr
// against scope, applying an optional leading encoding scheme
// (json://, yaml://, base64://, datauri:<mime>://) to the substituted value.
func RenderTemplate(tmpl string, scope Scope) (string, error) {
	var out strings.Builder
	i := 0
	for i < len(tmpl) {
		start := strings.Index(tmpl[i:], "{{")
		if start < 0 {
			out.WriteString(tmpl[i:])
			break
		}
		start += i
		out.WriteString(tmpl[i:start])

		end := strings.Index(tmpl[start:], "}}")
		if end < 0 {
			return "", fmt.Errorf("expr: unterminated {{ in template")
		}
		end += start

		token := strings.TrimSpace(tmpl[start+2 : end])
		rendered, err := renderToken(token, scope)
		if err != nil {
			return "", err
		}
		out.WriteString(rendered)
		i = end + 2
	}
	return out.String(), nil
}

func renderToken(token string, scope Scope) (string, error) {
	scheme, expression, mime := splitEncoding(token)

	value, err := Eval(expression, scope)
	if err != nil {
		return "", err
	}

	return encode(scheme, mime, value)
}

// splitEncoding pulls a leading "json://", "yaml://", "base64://" or
// "datauri:<mime>://" scheme off a token, returning the bare expression.
func splitEncoding(token string) (scheme, expression, mime string) {
	switch {
	case strings.HasPrefix(token, "json://"):
		return "json", strings.TrimPrefix(token, "json://"), ""
	case strings.HasPrefix(token, "yaml://"):
		return "yaml", strings.TrimPrefix(token, "yaml://"), ""
	case strings.HasPrefix(token, "base64://"):
		return "base64", strings.TrimPrefix(token, "base64://"), ""
	case strings.HasPrefix(token, "datauri:"):
		rest := strings.TrimPrefix(token, "datauri:")
		m, expr, ok := strings.Cut(rest, "://")
		if ok {
			return "datauri", expr, m
		}
		return "", token, ""
	default:
		return "", token, ""
	}
}

func encode(scheme, mime string, value any) (string, error) {
	switch scheme {
	case "":
		return fmt.Sprintf("%v", value), nil
	case "json":
		b, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("expr: json:// encode: %w", err)
		}
		return string(b), nil
	case "yaml":
		b, err := yaml.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("expr: yaml:// encode: %w", err)
		}
		return strings.TrimRight(string(b), "\n"), nil
	case "base64":
		raw, err := toBytes(value)
		if err != nil {
			return "", fmt.Errorf("expr: base64:// encode: %w", err)
		}
		return base64.StdEncoding.EncodeToString(raw), nil
	case "datauri":
		raw, err := toBytes(value)
		if err != nil {
			return "", fmt.Errorf("expr: datauri:// encode: %w", err)
		}
		return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(raw)), nil
	default:
		return "", fmt.Errorf("expr: unknown template encoding scheme %q", scheme)
	}
}

func toBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return json.Marshal(v)
	}
}
