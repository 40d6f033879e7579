package automation

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// comparisonOperators are tried in this order; the first one present in
// the expression wins and the expression is split on its first occurrence.
// ">=" must precede ">" so that "a >= 1" is not read as "a" > "= 1".
var comparisonOperators = []string{">=", "<=", "==", "!=", ">", "<"}

var errNotComparable = errors.New("values are not comparable")

// Evaluator evaluates run_if guards and condition expressions.
//
// The grammar is deliberately small and has no parentheses:
//
//	a >= b, a <= b, a == b, a != b, a > b, a < b
//	x and y and z
//	x or y
//	not x
//	list contains item
//	path.to.value | 'literal' | "literal" | 42 | 1.5 | true | false
//
// Forms are recognised in exactly that order, so "a > 1 and b < 2" is read
// as a single comparison and fails. Evaluation is fail-closed: any error
// yields false.
type Evaluator struct {
	logger Logger
}

// NewEvaluator creates an evaluator. A nil logger discards failure logs.
func NewEvaluator(logger Logger) *Evaluator {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Evaluator{logger: logger}
}

// Evaluate returns the truth value of expr against data.
// An empty expression is true. Malformed expressions, incomparable
// operands and panics all evaluate to false and are logged.
func (e *Evaluator) Evaluate(expr string, data map[string]any) (result bool) {
	if expr == "" {
		return true
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("expression evaluation panicked", "expression", expr, "panic", fmt.Sprint(r))
			result = false
		}
	}()

	ok, err := evalExpr(expr, data)
	if err != nil {
		e.logger.Warn("expression evaluation failed", "expression", expr, "error", err)
		return false
	}
	return ok
}

func evalExpr(expr string, data map[string]any) (bool, error) {
	expr = strings.TrimSpace(expr)

	for _, op := range comparisonOperators {
		if left, right, found := strings.Cut(expr, op); found {
			return compare(op, resolveValue(left, data), resolveValue(right, data))
		}
	}

	if strings.Contains(expr, " and ") {
		for _, part := range strings.Split(expr, " and ") {
			ok, err := evalExpr(part, data)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}

	if strings.Contains(expr, " or ") {
		for _, part := range strings.Split(expr, " or ") {
			ok, err := evalExpr(part, data)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}

	if rest, found := strings.CutPrefix(expr, "not "); found {
		ok, err := evalExpr(rest, data)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}

	if left, right, found := strings.Cut(expr, " contains "); found {
		return contains(resolveValue(left, data), resolveValue(right, data))
	}

	return truthy(resolveValue(expr, data)), nil
}

// resolveValue turns an operand into a value: a quoted string, an int (or a
// float when it contains a dot), a case-insensitive boolean, or a dot path
// into data.
func resolveValue(token string, data map[string]any) any {
	s := strings.TrimSpace(token)

	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return s[1 : len(s)-1]
		}
	}

	if strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	} else if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}

	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}

	return ResolvePath(s, data)
}

// ResolvePath walks a dot-separated path through data. Each segment is a
// map key when the current value is a map, otherwise a struct field
// (matched by json tag or field name). A missing segment yields nil.
func ResolvePath(path string, data map[string]any) any {
	var cur any = data
	for _, segment := range strings.Split(path, ".") {
		next, ok := lookup(cur, segment)
		if !ok || next == nil {
			return nil
		}
		cur = next
	}
	return cur
}

func lookup(v any, key string) (any, bool) {
	switch m := v.(type) {
	case map[string]any:
		val, ok := m[key]
		return val, ok
	case Result:
		val, ok := m[key]
		return val, ok
	case nil:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}

	switch rv.Kind() { //nolint:exhaustive // only maps and structs have members
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		val := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if !val.IsValid() {
			return nil, false
		}
		return val.Interface(), true
	case reflect.Struct:
		return structField(rv, key)
	default:
		return nil, false
	}
}

func structField(rv reflect.Value, key string) (any, bool) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		tag, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if tag == key || f.Name == key {
			return rv.Field(i).Interface(), true
		}
	}
	return nil, false
}

// ─── Value Semantics ────────────────────────────────────────────────────────

func compare(op string, left, right any) (bool, error) {
	switch op {
	case "==":
		return equal(left, right), nil
	case "!=":
		return !equal(left, right), nil
	}

	c, err := order(left, right)
	if err != nil {
		return false, fmt.Errorf("%T %s %T: %w", left, op, right, err)
	}
	switch op {
	case ">=":
		return c >= 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	case "<":
		return c < 0, nil
	default:
		return false, fmt.Errorf("unknown operator %q", op)
	}
}

// order compares two numbers or two strings.
func order(left, right any) (int, error) {
	if l, ok := toNumber(left); ok {
		if r, ok := toNumber(right); ok {
			switch {
			case l < r:
				return -1, nil
			case l > r:
				return 1, nil
			default:
				return 0, nil
			}
		}
		return 0, errNotComparable
	}
	ls, lok := left.(string)
	rs, rok := right.(string)
	if lok && rok {
		return strings.Compare(ls, rs), nil
	}
	return 0, errNotComparable
}

func equal(left, right any) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	if l, ok := toNumber(left); ok {
		r, ok := toNumber(right)
		return ok && l == r
	}
	return reflect.DeepEqual(left, right)
}

// contains reports whether item is a substring of a string container, an
// element of a slice, or a key of a map.
func contains(container, item any) (bool, error) {
	switch c := container.(type) {
	case string:
		s, ok := item.(string)
		if !ok {
			return false, fmt.Errorf("substring test needs a string, got %T", item)
		}
		return strings.Contains(c, s), nil
	case nil:
		return false, errors.New("contains: container is nil")
	}

	rv := reflect.ValueOf(container)
	switch rv.Kind() { //nolint:exhaustive // only collections support membership
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if equal(rv.Index(i).Interface(), item) {
				return true, nil
			}
		}
		return false, nil
	case reflect.Map:
		key, ok := item.(string)
		if !ok || rv.Type().Key().Kind() != reflect.String {
			return false, fmt.Errorf("contains: unsupported key %T", item)
		}
		return rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key())).IsValid(), nil
	default:
		return false, fmt.Errorf("contains: %T is not a collection", container)
	}
}

// toNumber converts any integer or float kind to float64. Booleans are not numbers.
func toNumber(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() { //nolint:exhaustive // non-numeric kinds fall through
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}

func truthy(v any) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	if n, ok := toNumber(v); ok {
		return n != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() { //nolint:exhaustive // everything else is truthy
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	default:
		return true
	}
}
