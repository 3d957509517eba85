package criteriaquery

import (
	"fmt"
	"reflect"
)

// OperationKey is the closed set of predicate kinds a criteria entry can carry.
type OperationKey int

const (
	keyUnknown OperationKey = iota
	KeyExists
	KeyEmpty
	KeyNotEmpty
	KeyEquals
	KeyContains
	KeyStartsWith
	KeyEndsWith
	KeyExpression
	KeyLess
	KeyLessEqual
	KeyGreater
	KeyGreaterEqual
	KeyBetween
	KeyFuzzy
	KeyMatches
	KeyMatchesAll
	KeyIn
	KeyNotIn
	KeyRegexp
	keyEnd
)

var keyNames = [...]string{
	keyUnknown:      "UNKNOWN",
	KeyExists:       "EXISTS",
	KeyEmpty:        "EMPTY",
	KeyNotEmpty:     "NOT_EMPTY",
	KeyEquals:       "EQUALS",
	KeyContains:     "CONTAINS",
	KeyStartsWith:   "STARTS_WITH",
	KeyEndsWith:     "ENDS_WITH",
	KeyExpression:   "EXPRESSION",
	KeyLess:         "LESS",
	KeyLessEqual:    "LESS_EQUAL",
	KeyGreater:      "GREATER",
	KeyGreaterEqual: "GREATER_EQUAL",
	KeyBetween:      "BETWEEN",
	KeyFuzzy:        "FUZZY",
	KeyMatches:      "MATCHES",
	KeyMatchesAll:   "MATCHES_ALL",
	KeyIn:           "IN",
	KeyNotIn:        "NOT_IN",
	KeyRegexp:       "REGEXP",
}

func (k OperationKey) String() string {
	if k.Valid() || k == keyUnknown {
		return keyNames[k]
	}
	return fmt.Sprintf("OperationKey(%d)", int(k))
}

// Valid reports whether k belongs to the catalog.
func (k OperationKey) Valid() bool {
	return k > keyUnknown && k < keyEnd
}

// HasValue reports whether entries of this kind carry a value.
func (k OperationKey) HasValue() bool {
	switch k {
	case KeyExists, KeyEmpty, KeyNotEmpty:
		return false
	}
	return true
}

// Entry is one (operation, value) pair of a criteria node. Entries are built
// with NewEntry or BetweenEntry; a malformed entry remembers why and fails
// when it is compiled.
type Entry struct {
	key     OperationKey
	value   any
	lower   any
	upper   any
	values  []any
	invalid string
}

// NewEntry builds an entry for key. Keys without a value expect nil, IN and
// NOT_IN expect a slice or array, BETWEEN expects a two element slice or array
// holding the lower and upper bound (nil for an open end).
func NewEntry(key OperationKey, value any) Entry {
	e := Entry{key: key, value: value}

	switch {
	case !key.Valid():
		e.invalid = "operator is not supported"
	case !key.HasValue():
		if value != nil {
			e.invalid = fmt.Sprintf("operator takes no value, got %T", value)
		}
	case key == KeyIn || key == KeyNotIn:
		values, ok := sequence(value)
		if !ok {
			e.invalid = fmt.Sprintf("value must be a slice or array, got %T", value)
			break
		}
		e.values = values
	case key == KeyBetween:
		bounds, ok := sequence(value)
		if !ok || len(bounds) != 2 {
			e.invalid = fmt.Sprintf("value must hold exactly two bounds, got %T", value)
			break
		}
		return BetweenEntry(bounds[0], bounds[1])
	case value == nil:
		e.invalid = "operator requires a value"
	}

	return e
}

// BetweenEntry builds a BETWEEN entry. Either bound may be nil for an open
// range, but not both.
func BetweenEntry(lower, upper any) Entry {
	e := Entry{key: KeyBetween, lower: lower, upper: upper}
	if lower == nil && upper == nil {
		e.invalid = "range needs at least one bound"
	}
	return e
}

func (e Entry) Key() OperationKey { return e.key }

// Value returns the scalar value of the entry. It is nil for EXISTS, EMPTY,
// NOT_EMPTY and BETWEEN.
func (e Entry) Value() any { return e.value }

// Bounds returns the range of a BETWEEN entry.
func (e Entry) Bounds() (lower, upper any) { return e.lower, e.upper }

// Values returns a copy of the members of an IN or NOT_IN entry.
func (e Entry) Values() []any {
	if e.values == nil {
		return nil
	}
	return append([]any{}, e.values...)
}

// check reports a construction problem as a usage error for field.
func (e Entry) check(field string) error {
	if e.invalid != "" {
		return usageError(field, e.key, "%s", e.invalid)
	}
	if !e.key.Valid() {
		return usageError(field, e.key, "operator is not supported")
	}
	return nil
}

// sequence flattens a slice or array into []any.
func sequence(v any) ([]any, bool) {
	if vs, ok := v.([]any); ok {
		return append([]any{}, vs...), true
	}
	if v == nil {
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
