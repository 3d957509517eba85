package criteriaquery

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Operator represents MongoDB-style operators
type Operator string

const (
	OpEq        Operator = "$eq"
	OpNe        Operator = "$ne"
	OpLt        Operator = "$lt"
	OpLte       Operator = "$lte"
	OpGt        Operator = "$gt"
	OpGte       Operator = "$gte"
	OpIn        Operator = "$in"
	OpNin       Operator = "$nin"
	OpAnd       Operator = "$and"
	OpOr        Operator = "$or"
	OpLike      Operator = "$like"
	OpPrefix    Operator = "$prefix"
	OpSuffix    Operator = "$suffix"
	OpExists    Operator = "$exists"
	OpRegex     Operator = "$regex"
	OpFuzzy     Operator = "$fuzzy"
	OpMatch     Operator = "$match"
	OpMatchAll  Operator = "$matchAll"
	OpQuery     Operator = "$query"
	OpBetween   Operator = "$between"
	OpElemMatch Operator = "$elemMatch"
)

// fieldOperators maps the operators allowed on a field to the entry they
// produce. $ne and $exists need extra handling and are not listed.
var fieldOperators = map[Operator]OperationKey{
	OpEq:       KeyEquals,
	OpLt:       KeyLess,
	OpLte:      KeyLessEqual,
	OpGt:       KeyGreater,
	OpGte:      KeyGreaterEqual,
	OpIn:       KeyIn,
	OpNin:      KeyNotIn,
	OpLike:     KeyContains,
	OpPrefix:   KeyStartsWith,
	OpSuffix:   KeyEndsWith,
	OpRegex:    KeyRegexp,
	OpFuzzy:    KeyFuzzy,
	OpMatch:    KeyMatches,
	OpMatchAll: KeyMatchesAll,
	OpQuery:    KeyExpression,
	OpBetween:  KeyBetween,
}

// Filter represents a MongoDB-style filter. $and and $or filters hold their
// operands in Filters; an $elemMatch filter holds the conditions on the
// attributes of the nested object named by Field.
type Filter struct {
	Field    string
	Operator Operator
	Value    any
	Filters  []Filter
}

// ParseFilter parses a JSON string into filters that are implicitly ANDed.
//
//	{"state": "active", "age": {"$gte": 18}, "$or": [{"tag": "a"}, {"tag": "b"}]}
func ParseFilter(jsonStr string) ([]Filter, error) {
	var rawFilter map[string]any
	if err := json.Unmarshal([]byte(jsonStr), &rawFilter); err != nil {
		return nil, fmt.Errorf("failed to parse filter JSON: %w", err)
	}

	return parseFilters(rawFilter)
}

// parseFilters recursively parses the filter map into Filter structs. Keys
// are visited in sorted order so equal documents give equal filters.
func parseFilters(filter map[string]any) ([]Filter, error) {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var filters []Filter
	for _, key := range keys {
		value := filter[key]

		switch Operator(key) {
		case OpOr, OpAnd:
			operands, err := parseOperands(Operator(key), value)
			if err != nil {
				return nil, err
			}
			filters = append(filters, Filter{Operator: Operator(key), Filters: operands})
			continue
		}
		if strings.HasPrefix(key, "$") {
			return nil, fmt.Errorf("%w: unsupported operator: %s", ErrInvalidUsage, key)
		}

		ops, ok := value.(map[string]any)
		if !ok {
			// Implicit $eq operator
			filters = append(filters, Filter{Field: key, Operator: OpEq, Value: value})
			continue
		}

		fieldFilters, err := parseFieldOperators(key, ops)
		if err != nil {
			return nil, err
		}
		filters = append(filters, fieldFilters...)
	}

	return filters, nil
}

func parseOperands(op Operator, value any) ([]Filter, error) {
	items, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s expects an array, got %T", ErrInvalidUsage, op, value)
	}

	operands := make([]Filter, 0, len(items))
	for _, item := range items {
		sub, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s operands must be objects, got %T", ErrInvalidUsage, op, item)
		}
		subFilters, err := parseFilters(sub)
		if err != nil {
			return nil, err
		}
		if len(subFilters) == 1 {
			operands = append(operands, subFilters[0])
			continue
		}
		operands = append(operands, Filter{Operator: OpAnd, Filters: subFilters})
	}
	return operands, nil
}

func parseFieldOperators(field string, ops map[string]any) ([]Filter, error) {
	if len(ops) == 0 {
		return nil, fmt.Errorf("%w: %q has an empty operator object", ErrInvalidUsage, field)
	}

	names := make([]string, 0, len(ops))
	for op := range ops {
		names = append(names, op)
	}
	sort.Strings(names)

	filters := make([]Filter, 0, len(names))
	for _, name := range names {
		operator := Operator(name)
		val := ops[name]

		switch operator {
		case OpElemMatch:
			inner, ok := val.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: %s on %q expects an object, got %T", ErrInvalidUsage, operator, field, val)
			}
			innerFilters, err := parseFilters(inner)
			if err != nil {
				return nil, err
			}
			filters = append(filters, Filter{Field: field, Operator: operator, Filters: innerFilters})
			continue
		case OpNe, OpExists:
		default:
			if _, ok := fieldOperators[operator]; !ok {
				return nil, fmt.Errorf("%w: unsupported operator: %s", ErrInvalidUsage, name)
			}
		}
		filters = append(filters, Filter{Field: field, Operator: operator, Value: val})
	}
	return filters, nil
}

// BuildCriteria turns filters into a criteria tree. Top level filters are
// ANDed. fields may be nil, in which case every field is a text field.
func BuildCriteria(filters []Filter, fields FieldResolver) (*Criteria, error) {
	if fields == nil {
		fields = Fields(nil)
	}

	c := NewCriteria()
	for _, f := range filters {
		var err error
		c, err = appendFilter(c, f, fields, "")
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Criteria turns a single filter into a criteria tree.
func (f Filter) Criteria(fields FieldResolver) (*Criteria, error) {
	return BuildCriteria([]Filter{f}, fields)
}

// appendFilter ANDs f to the chain c. prefix is set inside $elemMatch and
// names the enclosing nested object.
func appendFilter(c *Criteria, f Filter, fields FieldResolver, prefix string) (*Criteria, error) {
	switch f.Operator {
	case OpAnd:
		group := NewCriteria()
		for _, operand := range f.Filters {
			var err error
			group, err = appendFilter(group, operand, fields, prefix)
			if err != nil {
				return nil, err
			}
		}
		return c.AndGroup(group), nil

	case OpOr:
		group := NewCriteria()
		for _, operand := range f.Filters {
			alternative, err := appendFilter(NewCriteria(), operand, fields, prefix)
			if err != nil {
				return nil, err
			}
			group = group.OrGroup(alternative)
		}
		return c.AndGroup(group), nil

	case OpElemMatch:
		parent := resolveField(fields, prefix, f.Field)
		children := make([]*Criteria, 0, len(f.Filters))
		for _, inner := range f.Filters {
			child, err := appendFilter(NewCriteria(), inner, fields, parent.Name+".")
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		return c.And(parent).Nested(children...), nil
	}

	node := c.And(resolveField(fields, prefix, f.Field))
	switch f.Operator {
	case OpNe:
		return node.Is(f.Value).Not(), nil
	case OpExists:
		exists, ok := f.Value.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: %s on %q expects a boolean, got %T", ErrInvalidUsage, f.Operator, f.Field, f.Value)
		}
		if exists {
			return node.Exists(), nil
		}
		return node.Exists().Not(), nil
	}

	key, ok := fieldOperators[f.Operator]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported operator: %s", ErrInvalidUsage, f.Operator)
	}
	return node.With(NewEntry(key, f.Value)), nil
}

// resolveField looks up a field. Inside $elemMatch the nested scope is
// already open, so the resolved field must not open another one.
func resolveField(fields FieldResolver, prefix, name string) Field {
	field := fields.Resolve(prefix + name)
	if prefix != "" {
		field = field.InPath("")
	}
	return field
}
