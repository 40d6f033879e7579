package automation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var placeholderPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Render returns a copy of tmpl with every {{path}} placeholder in its
// string values replaced from data. Nested maps are rendered recursively;
// in lists, strings and maps are rendered and other elements are kept as is.
func Render(tmpl map[string]any, data map[string]any) map[string]any {
	if tmpl == nil {
		return nil
	}
	out := make(map[string]any, len(tmpl))
	for k, v := range tmpl {
		out[k] = RenderValue(v, data)
	}
	return out
}

// RenderValue renders a single template value.
func RenderValue(v any, data map[string]any) any {
	switch val := v.(type) {
	case string:
		return RenderString(val, data)
	case map[string]any:
		return Render(val, data)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			switch e := elem.(type) {
			case string:
				out[i] = RenderString(e, data)
			case map[string]any:
				out[i] = Render(e, data)
			default:
				out[i] = elem
			}
		}
		return out
	default:
		return v
	}
}

// RenderString substitutes every {{path}} in s. Unresolvable paths render
// as the empty string; text outside placeholders is kept verbatim.
func RenderString(s string, data map[string]any) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		path := strings.TrimSpace(match[2 : len(match)-2])
		return formatValue(ResolvePath(path, data))
	})
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case time.Time:
		return val.Format(time.RFC3339)
	case fmt.Stringer:
		return val.String()
	case map[string]any, Result, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}
