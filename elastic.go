package criteriaquery

import (
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/olivere/elastic/v7"
)

// DefaultNestedScoreMode is the score mode used for nested scopes unless
// WithNestedScoreMode overrides it.
const DefaultNestedScoreMode = "avg"

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithNestedScoreMode sets how nested scopes aggregate the scores of matching
// children: "avg", "max", "min", "sum" or "none".
func WithNestedScoreMode(mode string) CompilerOption {
	return func(c *Compiler) {
		c.scoreMode = mode
	}
}

// WithCache memoizes compiled queries per criteria node. Criteria are
// immutable, so a node is a stable key. Cached queries are shared between
// callers and must not be modified.
//
// The cache is unbounded and never evicts: every compiled criteria tree and
// its query stay reachable for the lifetime of the Compiler. Use it for a
// fixed set of long-lived criteria, not for per-request trees.
func WithCache() CompilerOption {
	return func(c *Compiler) {
		c.cache = &sync.Map{}
	}
}

// Compiler turns criteria into Elasticsearch queries. A Compiler holds no
// mutable state besides its optional cache and is safe for concurrent use.
type Compiler struct {
	scoreMode string
	cache     *sync.Map
}

type cachedQuery struct {
	q elastic.Query
}

// NewCompiler creates a Compiler.
func NewCompiler(opts ...CompilerOption) *Compiler {
	c := &Compiler{scoreMode: DefaultNestedScoreMode}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var defaultCompiler = NewCompiler()

// Compile compiles criteria with the default Compiler.
func Compile(criteria *Criteria) (elastic.Query, error) {
	return defaultCompiler.Compile(criteria)
}

// Compile walks the chain owned by criteria and returns one boolean query.
// It returns a nil query and no error when the tree holds no predicate, in
// which case the caller should match everything or leave the clause out.
func (c *Compiler) Compile(criteria *Criteria) (elastic.Query, error) {
	if criteria == nil {
		return nil, nil
	}
	if c.cache != nil {
		if hit, ok := c.cache.Load(criteria); ok {
			return hit.(cachedQuery).q, nil
		}
	}

	q, ok, err := compileChain[elastic.Query](c.backend(), criteria)
	if err != nil {
		return nil, err
	}
	if !ok {
		q = nil
	}

	if c.cache != nil {
		hit, _ := c.cache.LoadOrStore(criteria, cachedQuery{q: q})
		return hit.(cachedQuery).q, nil
	}
	return q, nil
}

// BuildEntries builds the query for all entries of one node on field. Several
// entries are ANDed and the boost goes on the compound. A field inside a
// nested object gets its query wrapped in a nested scope.
func (c *Compiler) BuildEntries(field Field, entries []Entry, boost float64) (elastic.Query, error) {
	var q elastic.Query
	if len(entries) == 1 {
		leaf, err := c.BuildEntry(entries[0], field, boost)
		if err != nil {
			return nil, err
		}
		q = leaf
	} else {
		compound := elastic.NewBoolQuery()
		for _, e := range entries {
			leaf, err := c.BuildEntry(e, field, math.NaN())
			if err != nil {
				return nil, err
			}
			compound.Must(leaf)
		}
		if !math.IsNaN(boost) {
			compound.Boost(boost)
		}
		q = compound
	}

	if field.Nested() {
		q = elastic.NewNestedQuery(field.Path, q).ScoreMode(c.scoreMode)
	}
	return q, nil
}

// BuildEntry builds the primitive query for a single entry. boost is NaN when
// unset.
func (c *Compiler) BuildEntry(e Entry, field Field, boost float64) (elastic.Query, error) {
	if err := e.check(field.Name); err != nil {
		return nil, err
	}

	name := field.Name
	boosted := !math.IsNaN(boost)

	switch e.key {
	case KeyExists:
		q := elastic.NewExistsQuery(name)
		if boosted {
			return elastic.NewConstantScoreQuery(q).Boost(boost), nil
		}
		return q, nil

	case KeyEmpty:
		q := elastic.NewBoolQuery().
			Must(elastic.NewExistsQuery(name)).
			MustNot(elastic.NewWildcardQuery(name, "*"))
		if boosted {
			q.Boost(boost)
		}
		return q, nil

	case KeyNotEmpty:
		q := elastic.NewWildcardQuery(name, "*")
		if boosted {
			q.Boost(boost)
		}
		return q, nil

	case KeyEquals:
		q := elastic.NewQueryStringQuery(Escape(stringValue(e.value))).Field(name).DefaultOperator("AND")
		return boostQueryString(q, boosted, boost), nil

	case KeyContains:
		return wildcardQueryString(name, "*"+Escape(stringValue(e.value))+"*", boosted, boost), nil

	case KeyStartsWith:
		return wildcardQueryString(name, Escape(stringValue(e.value))+"*", boosted, boost), nil

	case KeyEndsWith:
		return wildcardQueryString(name, "*"+Escape(stringValue(e.value)), boosted, boost), nil

	case KeyExpression:
		q := elastic.NewQueryStringQuery(stringValue(e.value)).Field(name)
		return boostQueryString(q, boosted, boost), nil

	case KeyLess, KeyLessEqual, KeyGreater, KeyGreaterEqual, KeyBetween:
		q := elastic.NewRangeQuery(name)
		switch e.key {
		case KeyLess:
			q.Lt(e.value)
		case KeyLessEqual:
			q.Lte(e.value)
		case KeyGreater:
			q.Gt(e.value)
		case KeyGreaterEqual:
			q.Gte(e.value)
		default:
			if e.lower != nil {
				q.Gte(e.lower)
			}
			if e.upper != nil {
				q.Lte(e.upper)
			}
		}
		if boosted {
			q.Boost(boost)
		}
		return q, nil

	case KeyFuzzy:
		q := elastic.NewFuzzyQuery(name, Escape(stringValue(e.value)))
		if boosted {
			q.Boost(boost)
		}
		return q, nil

	case KeyMatches, KeyMatchesAll:
		operator := "or"
		if e.key == KeyMatchesAll {
			operator = "and"
		}
		q := elastic.NewMatchQuery(name, e.value).Operator(operator)
		if boosted {
			q.Boost(boost)
		}
		return q, nil

	case KeyIn:
		return inQuery(field, e.values, boosted, boost), nil

	case KeyNotIn:
		q := elastic.NewBoolQuery().MustNot(inQuery(field, e.values, false, 0))
		if boosted {
			q.Boost(boost)
		}
		return q, nil

	case KeyRegexp:
		q := elastic.NewRegexpQuery(name, stringValue(e.value))
		if boosted {
			q.Boost(boost)
		}
		return q, nil
	}

	return nil, usageError(name, e.key, "operator is not supported")
}

func boostQueryString(q *elastic.QueryStringQuery, boosted bool, boost float64) elastic.Query {
	if boosted {
		q.Boost(boost)
	}
	return q
}

func wildcardQueryString(name, expr string, boosted bool, boost float64) elastic.Query {
	q := elastic.NewQueryStringQuery(expr).Field(name).AnalyzeWildcard(true)
	return boostQueryString(q, boosted, boost)
}

// inQuery matches exact terms on keyword fields and quoted phrases on
// analyzed ones. An empty set matches nothing.
func inQuery(field Field, values []any, boosted bool, boost float64) elastic.Query {
	if len(values) == 0 {
		return elastic.NewMatchNoneQuery()
	}

	if field.Type == FieldTypeKeyword {
		q := elastic.NewTermsQuery(field.Name, values...)
		if boosted {
			q.Boost(boost)
		}
		return q
	}

	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = `"` + Escape(stringValue(v)) + `"`
	}
	q := elastic.NewQueryStringQuery(strings.Join(quoted, " OR ")).Field(field.Name)
	return boostQueryString(q, boosted, boost)
}

func (c *Compiler) backend() esBackend {
	return esBackend{compiler: c}
}

type esBackend struct {
	compiler *Compiler
}

func (be esBackend) entries(c *Criteria) (elastic.Query, bool, error) {
	if len(c.entries) == 0 {
		return nil, false, nil
	}
	if c.fieldName() == "" {
		return nil, false, usageError("", c.entries[0].key, "predicate has no field")
	}

	q, err := be.compiler.BuildEntries(*c.field, c.entries, c.BoostValue())
	if err != nil {
		return nil, false, err
	}
	return q, true, nil
}

func (be esBackend) nested(c *Criteria, inner []elastic.Query) (elastic.Query, error) {
	q := inner[0]
	if len(inner) > 1 {
		q = elastic.NewBoolQuery().Must(inner...)
	}
	return elastic.NewNestedQuery(c.fieldName(), q).ScoreMode(be.compiler.scoreMode), nil
}

func (be esBackend) combine(b *buckets[elastic.Query]) elastic.Query {
	q := elastic.NewBoolQuery()
	if len(b.should) > 0 {
		q.Should(b.should...)
	}
	if len(b.mustNot) > 0 {
		q.MustNot(b.mustNot...)
	}
	if len(b.must) > 0 {
		q.Must(b.must...)
	}
	if len(b.must) == 0 && len(b.mustNot) == 0 {
		q.MinimumNumberShouldMatch(1)
	}
	return q
}

// ElasticBuilder turns criteria and query options into a search source.
type ElasticBuilder struct {
	ss       *elastic.SearchService
	compiler *Compiler
}

// NewElasticBuilder creates a builder. When ss is not nil every applied
// search source is also set on it.
func NewElasticBuilder(ss *elastic.SearchService, opts ...CompilerOption) *ElasticBuilder {
	return &ElasticBuilder{ss: ss, compiler: NewCompiler(opts...)}
}

// Apply compiles the criteria and applies sorting and pagination. A criteria
// tree without predicates leaves the query out so the search matches every
// document.
func (eb *ElasticBuilder) Apply(criteria *Criteria, options *QueryOptions) (*elastic.SearchSource, error) {
	src := elastic.NewSearchSource()

	q, err := eb.compiler.Compile(criteria)
	if err != nil {
		return nil, err
	}
	if q != nil {
		src.Query(q)
	}

	if options != nil {
		fields := make([]string, 0, len(options.Sort))
		for field := range options.Sort {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			src.Sort(field, options.Sort[field] != SortDesc)
		}

		if options.Offset != nil {
			src.From(*options.Offset)
		}
		if options.Limit != nil {
			src.Size(*options.Limit)
		}
	}

	if eb.ss != nil {
		eb.ss.SearchSource(src)
	}
	return src, nil
}

// Compiler returns the compiler used by the builder.
func (eb *ElasticBuilder) Compiler() *Compiler {
	return eb.compiler
}
