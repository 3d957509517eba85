package criteriaquery

import "math"

// FieldType tells the compiler how a field is indexed.
type FieldType int

const (
	// FieldTypeText is an analyzed, free text field.
	FieldTypeText FieldType = iota
	// FieldTypeKeyword is an exact match field.
	FieldTypeKeyword
)

func (t FieldType) String() string {
	if t == FieldTypeKeyword {
		return "keyword"
	}
	return "text"
}

// Field references a document attribute. Path is set when the attribute lives
// inside a nested object and names that object.
type Field struct {
	Name string
	Path string
	Type FieldType
}

// NewField returns a text field.
func NewField(name string) Field {
	return Field{Name: name}
}

// KeywordField returns an exact match field.
func KeywordField(name string) Field {
	return Field{Name: name, Type: FieldTypeKeyword}
}

// InPath returns a copy of f located inside the nested object at path.
func (f Field) InPath(path string) Field {
	f.Path = path
	return f
}

// Nested reports whether f lives inside a nested object.
func (f Field) Nested() bool {
	return f.Path != ""
}

// Criteria is one link of a criteria chain. A Criteria is immutable: every
// builder method returns a new node and leaves the receiver untouched, so a
// tree can be shared between goroutines and compiled any number of times.
//
// Nodes point back to their predecessor. The node a chain is compiled from
// is its owning criteria; its Or and Not flags decide how its sub-criteria
// are merged.
//
//	c := criteriaquery.Where(criteriaquery.NewField("title")).Contains("go").
//		Or(criteriaquery.KeywordField("tag")).In([]string{"golang", "go"}).
//		And(criteriaquery.NewField("draft")).Is(true).Not()
type Criteria struct {
	prev     *Criteria
	field    *Field
	entries  []Entry
	boost    float64
	boosted  bool
	or       bool
	negating bool
	sub      []*Criteria
	nested   []*Criteria
}

// NewCriteria returns an empty grouping node without a field.
func NewCriteria() *Criteria {
	return &Criteria{}
}

// Where starts a chain on field.
func Where(field Field) *Criteria {
	return &Criteria{field: &field}
}

// WhereName starts a chain on a text field called name.
func WhereName(name string) *Criteria {
	return Where(NewField(name))
}

func (c *Criteria) clone() *Criteria {
	n := *c
	n.entries = append([]Entry(nil), c.entries...)
	n.sub = append([]*Criteria(nil), c.sub...)
	n.nested = append([]*Criteria(nil), c.nested...)
	return &n
}

// And appends a node on field, combined with the chain so far using AND.
func (c *Criteria) And(field Field) *Criteria {
	return &Criteria{prev: c, field: &field}
}

// Or appends a node on field, combined with the chain so far using OR.
func (c *Criteria) Or(field Field) *Criteria {
	return &Criteria{prev: c, field: &field, or: true}
}

// AndGroup appends a grouping node that requires group to match.
func (c *Criteria) AndGroup(group *Criteria) *Criteria {
	return &Criteria{prev: c, sub: []*Criteria{group}}
}

// OrGroup appends a grouping node that lets group match as an alternative.
func (c *Criteria) OrGroup(group *Criteria) *Criteria {
	return &Criteria{prev: c, or: true, sub: []*Criteria{group}}
}

// Not marks the node as negating.
func (c *Criteria) Not() *Criteria {
	n := c.clone()
	n.negating = true
	return n
}

// Boost sets the relevance boost of the node.
func (c *Criteria) Boost(boost float64) *Criteria {
	n := c.clone()
	n.boost = boost
	n.boosted = true
	return n
}

// SubCriteria attaches independent groups to the node.
func (c *Criteria) SubCriteria(groups ...*Criteria) *Criteria {
	n := c.clone()
	n.sub = append(n.sub, groups...)
	return n
}

// Nested attaches predicates evaluated inside the nested object named by the
// node's field. They are always ANDed together.
func (c *Criteria) Nested(criteria ...*Criteria) *Criteria {
	n := c.clone()
	n.nested = append(n.nested, criteria...)
	return n
}

// With appends a pre-built entry to the node.
func (c *Criteria) With(e Entry) *Criteria {
	n := c.clone()
	n.entries = append(n.entries, e)
	return n
}

func (c *Criteria) Exists() *Criteria   { return c.With(NewEntry(KeyExists, nil)) }
func (c *Criteria) Empty() *Criteria    { return c.With(NewEntry(KeyEmpty, nil)) }
func (c *Criteria) NotEmpty() *Criteria { return c.With(NewEntry(KeyNotEmpty, nil)) }

func (c *Criteria) Is(v any) *Criteria         { return c.With(NewEntry(KeyEquals, v)) }
func (c *Criteria) Contains(v any) *Criteria   { return c.With(NewEntry(KeyContains, v)) }
func (c *Criteria) StartsWith(v any) *Criteria { return c.With(NewEntry(KeyStartsWith, v)) }
func (c *Criteria) EndsWith(v any) *Criteria   { return c.With(NewEntry(KeyEndsWith, v)) }

// Expression passes a query_string expression through unescaped.
func (c *Criteria) Expression(expr string) *Criteria {
	return c.With(NewEntry(KeyExpression, expr))
}

func (c *Criteria) LessThan(v any) *Criteria         { return c.With(NewEntry(KeyLess, v)) }
func (c *Criteria) LessThanEqual(v any) *Criteria    { return c.With(NewEntry(KeyLessEqual, v)) }
func (c *Criteria) GreaterThan(v any) *Criteria      { return c.With(NewEntry(KeyGreater, v)) }
func (c *Criteria) GreaterThanEqual(v any) *Criteria { return c.With(NewEntry(KeyGreaterEqual, v)) }

// Between matches values within [lower, upper]. A nil bound leaves that end open.
func (c *Criteria) Between(lower, upper any) *Criteria {
	return c.With(BetweenEntry(lower, upper))
}

func (c *Criteria) Fuzzy(v any) *Criteria      { return c.With(NewEntry(KeyFuzzy, v)) }
func (c *Criteria) Matches(v any) *Criteria    { return c.With(NewEntry(KeyMatches, v)) }
func (c *Criteria) MatchesAll(v any) *Criteria { return c.With(NewEntry(KeyMatchesAll, v)) }

// In matches any member of values, which must be a slice or array.
func (c *Criteria) In(values any) *Criteria { return c.With(NewEntry(KeyIn, values)) }

// NotIn matches none of the members of values.
func (c *Criteria) NotIn(values any) *Criteria { return c.With(NewEntry(KeyNotIn, values)) }

// Regexp matches a regular expression, passed through unescaped.
func (c *Criteria) Regexp(expr string) *Criteria {
	return c.With(NewEntry(KeyRegexp, expr))
}

// Field returns the field of the node, if any.
func (c *Criteria) Field() (Field, bool) {
	if c.field == nil {
		return Field{}, false
	}
	return *c.field, true
}

func (c *Criteria) Entries() []Entry { return append([]Entry(nil), c.entries...) }

// BoostValue returns the boost of the node, NaN when unset.
func (c *Criteria) BoostValue() float64 {
	if !c.boosted {
		return math.NaN()
	}
	return c.boost
}

func (c *Criteria) IsOr() bool       { return c.or }
func (c *Criteria) IsNegating() bool { return c.negating }

func (c *Criteria) SubCriteriaList() []*Criteria { return append([]*Criteria(nil), c.sub...) }
func (c *Criteria) NestedCriteria() []*Criteria  { return append([]*Criteria(nil), c.nested...) }

// Chain returns the nodes from the first one up to c.
func (c *Criteria) Chain() []*Criteria {
	var chain []*Criteria
	for n := c; n != nil; n = n.prev {
		chain = append(chain, n)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// IsEmpty reports whether no node of the chain carries a predicate, a group
// or nested criteria.
func (c *Criteria) IsEmpty() bool {
	for n := c; n != nil; n = n.prev {
		if len(n.entries) > 0 || len(n.sub) > 0 || len(n.nested) > 0 {
			return false
		}
	}
	return true
}

func (c *Criteria) fieldName() string {
	if c.field == nil {
		return ""
	}
	return c.field.Name
}
