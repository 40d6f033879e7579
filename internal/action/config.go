package action

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/flowline-core/internal/automation"
)

// Logger is the logging interface used by handlers.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

func loggerOrNoop(l Logger) Logger {
	if l == nil {
		return noopLogger{}
	}
	return l
}

// configString returns action.Config[key] rendered against execCtx.
// Non-string values are formatted; a missing key yields "".
func configString(action automation.Action, key string, execCtx map[string]any) string {
	v, ok := action.Config[key]
	if !ok || v == nil {
		return ""
	}
	rendered := automation.RenderValue(v, execCtx)
	if s, ok := rendered.(string); ok {
		return strings.TrimSpace(s)
	}
	return fmt.Sprint(rendered)
}

// requireString is configString that fails when the value is empty.
func requireString(action automation.Action, key string, execCtx map[string]any) (string, error) {
	s := configString(action, key, execCtx)
	if s == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingConfig, key)
	}
	return s, nil
}

// configBool reads a boolean flag; "true"/"1" strings count as true.
func configBool(action automation.Action, key string) bool {
	switch v := action.Config[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// configMap returns action.Config[key] rendered against execCtx when it is a map.
func configMap(action automation.Action, key string, execCtx map[string]any) map[string]any {
	m, ok := action.Config[key].(map[string]any)
	if !ok {
		return nil
	}
	return automation.Render(m, execCtx)
}

// configStrings returns a list value as strings. A single string is split on commas.
func configStrings(action automation.Action, key string, execCtx map[string]any) []string {
	var raw []string
	switch v := automation.RenderValue(action.Config[key], execCtx).(type) {
	case string:
		raw = strings.Split(v, ",")
	case []any:
		for _, item := range v {
			raw = append(raw, fmt.Sprint(item))
		}
	case []string:
		raw = v
	}

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// configInt reads an integer value, accepting the numeric kinds JSON and
// YAML decoding produce as well as numeric strings.
func configInt(action automation.Action, key string, execCtx map[string]any, fallback int) int {
	switch v := automation.RenderValue(action.Config[key], execCtx).(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}
