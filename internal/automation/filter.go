package automation

// Filter operators accepted in an event trigger's event_filter.
const (
	opEq       = "$eq"
	opNe       = "$ne"
	opGt       = "$gt"
	opGte      = "$gte"
	opLt       = "$lt"
	opLte      = "$lte"
	opIn       = "$in"
	opContains = "$contains"
)

// MatchesFilter reports whether event data satisfies filter.
//
// Each filter key names a top-level field of data. A scalar expected value
// requires equality; a map of operators requires every operator present to
// hold. All keys are ANDed and an empty filter matches everything.
// Operands that cannot be compared (e.g. a missing field against $gt)
// do not match.
func MatchesFilter(data, filter map[string]any) bool {
	for key, expected := range filter {
		actual := data[key]
		ops, isOps := expected.(map[string]any)
		if !isOps {
			if !equal(actual, expected) {
				return false
			}
			continue
		}
		if !matchOperators(actual, ops) {
			return false
		}
	}
	return true
}

func matchOperators(actual any, ops map[string]any) bool {
	if want, ok := ops[opEq]; ok && !equal(actual, want) {
		return false
	}
	if want, ok := ops[opNe]; ok && equal(actual, want) {
		return false
	}
	for _, op := range []struct {
		key, cmp string
	}{
		{opGt, ">"},
		{opGte, ">="},
		{opLt, "<"},
		{opLte, "<="},
	} {
		want, ok := ops[op.key]
		if !ok {
			continue
		}
		if holds, err := compare(op.cmp, actual, want); err != nil || !holds {
			return false
		}
	}
	if want, ok := ops[opIn]; ok {
		if in, err := contains(want, actual); err != nil || !in {
			return false
		}
	}
	if want, ok := ops[opContains]; ok {
		if in, err := contains(actual, want); err != nil || !in {
			return false
		}
	}
	return true
}
