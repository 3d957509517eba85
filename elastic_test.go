package criteriaquery

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/olivere/elastic/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sourceJSON(t *testing.T, q elastic.Query) string {
	t.Helper()
	source, err := q.Source()
	require.NoError(t, err)
	data, err := json.Marshal(source)
	require.NoError(t, err)
	return string(data)
}

func TestBuildEntry(t *testing.T) {
	c := NewCompiler()
	unset := math.NaN()

	tests := []struct {
		name  string
		entry Entry
		field Field
		boost float64
		want  elastic.Query
	}{
		{
			name:  "exists",
			entry: NewEntry(KeyExists, nil),
			field: NewField("title"),
			boost: unset,
			want:  elastic.NewExistsQuery("title"),
		},
		{
			name:  "boosted exists",
			entry: NewEntry(KeyExists, nil),
			field: NewField("title"),
			boost: 3,
			want:  elastic.NewConstantScoreQuery(elastic.NewExistsQuery("title")).Boost(3),
		},
		{
			name:  "empty",
			entry: NewEntry(KeyEmpty, nil),
			field: NewField("title"),
			boost: unset,
			want: elastic.NewBoolQuery().
				Must(elastic.NewExistsQuery("title")).
				MustNot(elastic.NewWildcardQuery("title", "*")),
		},
		{
			name:  "not empty",
			entry: NewEntry(KeyNotEmpty, nil),
			field: NewField("title"),
			boost: unset,
			want:  elastic.NewWildcardQuery("title", "*"),
		},
		{
			name:  "equals escapes and requires all terms",
			entry: NewEntry(KeyEquals, "c++ (lang)"),
			field: NewField("title"),
			boost: unset,
			want:  elastic.NewQueryStringQuery(`c\+\+ \(lang\)`).Field("title").DefaultOperator("AND"),
		},
		{
			name:  "boosted equals",
			entry: NewEntry(KeyEquals, 42),
			field: NewField("answer"),
			boost: 1.5,
			want:  elastic.NewQueryStringQuery("42").Field("answer").DefaultOperator("AND").Boost(1.5),
		},
		{
			name:  "contains",
			entry: NewEntry(KeyContains, "a:b"),
			field: NewField("title"),
			boost: unset,
			want:  elastic.NewQueryStringQuery(`*a\:b*`).Field("title").AnalyzeWildcard(true),
		},
		{
			name:  "starts with",
			entry: NewEntry(KeyStartsWith, "go"),
			field: NewField("title"),
			boost: unset,
			want:  elastic.NewQueryStringQuery("go*").Field("title").AnalyzeWildcard(true),
		},
		{
			name:  "ends with",
			entry: NewEntry(KeyEndsWith, "go"),
			field: NewField("title"),
			boost: unset,
			want:  elastic.NewQueryStringQuery("*go").Field("title").AnalyzeWildcard(true),
		},
		{
			name:  "expression passes through",
			entry: NewEntry(KeyExpression, "go AND (rust OR zig)"),
			field: NewField("title"),
			boost: unset,
			want:  elastic.NewQueryStringQuery("go AND (rust OR zig)").Field("title"),
		},
		{
			name:  "fuzzy",
			entry: NewEntry(KeyFuzzy, "serch~"),
			field: NewField("title"),
			boost: unset,
			want:  elastic.NewFuzzyQuery("title", `serch\~`),
		},
		{
			name:  "matches any term",
			entry: NewEntry(KeyMatches, "quick fox"),
			field: NewField("body"),
			boost: unset,
			want:  elastic.NewMatchQuery("body", "quick fox").Operator("or"),
		},
		{
			name:  "matches all terms",
			entry: NewEntry(KeyMatchesAll, "quick fox"),
			field: NewField("body"),
			boost: unset,
			want:  elastic.NewMatchQuery("body", "quick fox").Operator("and"),
		},
		{
			name:  "in on keyword field",
			entry: NewEntry(KeyIn, []string{"a", "b"}),
			field: KeywordField("tag"),
			boost: unset,
			want:  elastic.NewTermsQuery("tag", "a", "b"),
		},
		{
			name:  "in on text field",
			entry: NewEntry(KeyIn, []string{"new york", `say "hi"`}),
			field: NewField("city"),
			boost: unset,
			want:  elastic.NewQueryStringQuery(`"new york" OR "say \"hi\""`).Field("city"),
		},
		{
			name:  "in with empty set",
			entry: NewEntry(KeyIn, []string{}),
			field: KeywordField("tag"),
			boost: unset,
			want:  elastic.NewMatchNoneQuery(),
		},
		{
			name:  "not in on keyword field",
			entry: NewEntry(KeyNotIn, []int{1, 2}),
			field: KeywordField("id"),
			boost: unset,
			want:  elastic.NewBoolQuery().MustNot(elastic.NewTermsQuery("id", 1, 2)),
		},
		{
			name:  "not in on text field",
			entry: NewEntry(KeyNotIn, []string{"x"}),
			field: NewField("city"),
			boost: unset,
			want:  elastic.NewBoolQuery().MustNot(elastic.NewQueryStringQuery(`"x"`).Field("city")),
		},
		{
			name:  "regexp passes through",
			entry: NewEntry(KeyRegexp, "go+.*"),
			field: KeywordField("tag"),
			boost: unset,
			want:  elastic.NewRegexpQuery("tag", "go+.*"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.BuildEntry(tt.entry, tt.field, tt.boost)
			require.NoError(t, err)
			assert.JSONEq(t, sourceJSON(t, tt.want), sourceJSON(t, got))
		})
	}
}

func TestBuildEntry_Ranges(t *testing.T) {
	c := NewCompiler()

	tests := []struct {
		name  string
		entry Entry
		want  string
	}{
		{
			name:  "less",
			entry: NewEntry(KeyLess, 25),
			want:  `{"range":{"age":{"from":null,"include_lower":true,"include_upper":false,"to":25}}}`,
		},
		{
			name:  "less equal",
			entry: NewEntry(KeyLessEqual, 25),
			want:  `{"range":{"age":{"from":null,"include_lower":true,"include_upper":true,"to":25}}}`,
		},
		{
			name:  "greater",
			entry: NewEntry(KeyGreater, 25),
			want:  `{"range":{"age":{"from":25,"include_lower":false,"include_upper":true,"to":null}}}`,
		},
		{
			name:  "greater equal",
			entry: NewEntry(KeyGreaterEqual, 25),
			want:  `{"range":{"age":{"from":25,"include_lower":true,"include_upper":true,"to":null}}}`,
		},
		{
			name:  "between closed",
			entry: BetweenEntry(18, 65),
			want:  `{"range":{"age":{"from":18,"include_lower":true,"include_upper":true,"to":65}}}`,
		},
		{
			name:  "between with lower bound only",
			entry: BetweenEntry(18, nil),
			want:  `{"range":{"age":{"from":18,"include_lower":true,"include_upper":true,"to":null}}}`,
		},
		{
			name:  "between with upper bound only",
			entry: BetweenEntry(nil, 65),
			want:  `{"range":{"age":{"from":null,"include_lower":true,"include_upper":true,"to":65}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.BuildEntry(tt.entry, NewField("age"), math.NaN())
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, sourceJSON(t, got))
		})
	}
}

func TestBuildEntry_UsageErrors(t *testing.T) {
	c := NewCompiler()

	tests := []struct {
		name  string
		entry Entry
	}{
		{name: "in on scalar", entry: NewEntry(KeyIn, 5)},
		{name: "not in on map", entry: NewEntry(KeyNotIn, map[string]int{"a": 1})},
		{name: "zero entry", entry: Entry{}},
		{name: "key outside catalog", entry: NewEntry(OperationKey(77), "x")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.BuildEntry(tt.entry, KeywordField("tags"), math.NaN())
			assert.Nil(t, got)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidUsage))
			assert.Contains(t, err.Error(), `"tags"`)
		})
	}
}

func TestBuildEntries(t *testing.T) {
	c := NewCompiler()

	t.Run("several entries are ANDed with the boost on the compound", func(t *testing.T) {
		entries := []Entry{NewEntry(KeyGreater, 1), NewEntry(KeyLess, 10)}
		got, err := c.BuildEntries(NewField("n"), entries, 2)
		require.NoError(t, err)

		want := elastic.NewBoolQuery().
			Must(elastic.NewRangeQuery("n").Gt(1), elastic.NewRangeQuery("n").Lt(10)).
			Boost(2)
		assert.JSONEq(t, sourceJSON(t, want), sourceJSON(t, got))
	})

	t.Run("field in a nested object is scoped by its path", func(t *testing.T) {
		field := KeywordField("authors.name").InPath("authors")
		got, err := c.BuildEntries(field, []Entry{NewEntry(KeyIn, []string{"ann"})}, math.NaN())
		require.NoError(t, err)

		want := elastic.NewNestedQuery("authors", elastic.NewTermsQuery("authors.name", "ann")).ScoreMode("avg")
		assert.JSONEq(t, sourceJSON(t, want), sourceJSON(t, got))
	})

	t.Run("score mode is configurable", func(t *testing.T) {
		field := NewField("authors.age").InPath("authors")
		got, err := NewCompiler(WithNestedScoreMode("max")).
			BuildEntries(field, []Entry{NewEntry(KeyGreater, 30), NewEntry(KeyLess, 40)}, math.NaN())
		require.NoError(t, err)

		want := elastic.NewNestedQuery("authors", elastic.NewBoolQuery().Must(
			elastic.NewRangeQuery("authors.age").Gt(30),
			elastic.NewRangeQuery("authors.age").Lt(40),
		)).ScoreMode("max")
		assert.JSONEq(t, sourceJSON(t, want), sourceJSON(t, got))
	})
}

func TestElasticBuilder(t *testing.T) {
	limit, offset := 10, 20

	tests := []struct {
		name     string
		criteria *Criteria
		options  *QueryOptions
		want     func() *elastic.SearchSource
		wantErr  bool
	}{
		{
			name:     "equals filter",
			criteria: Where(KeywordField("state")).Is("active"),
			want: func() *elastic.SearchSource {
				return elastic.NewSearchSource().Query(elastic.NewBoolQuery().Must(
					elastic.NewQueryStringQuery("active").Field("state").DefaultOperator("AND"),
				))
			},
		},
		{
			name:     "empty criteria leave the query out",
			criteria: NewCriteria(),
			options:  &QueryOptions{Limit: &limit},
			want: func() *elastic.SearchSource {
				return elastic.NewSearchSource().Size(10)
			},
		},
		{
			name:     "sort and pagination",
			criteria: WhereName("age").GreaterThan(25),
			options: &QueryOptions{
				Sort:   map[string]SortDirection{"name": SortAsc, "age": SortDesc},
				Limit:  &limit,
				Offset: &offset,
			},
			want: func() *elastic.SearchSource {
				return elastic.NewSearchSource().
					Query(elastic.NewBoolQuery().Must(elastic.NewRangeQuery("age").Gt(25))).
					Sort("age", false).
					Sort("name", true).
					From(20).
					Size(10)
			},
		},
		{
			name:     "usage error",
			criteria: WhereName("tags").In("not-a-list"),
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ss := elastic.NewSearchService(nil)
			eb := NewElasticBuilder(ss)
			got, err := eb.Apply(tt.criteria, tt.options)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)

			wantSource, err := tt.want().Source()
			require.NoError(t, err)
			gotSource, err := got.Source()
			require.NoError(t, err)

			wantJSON, err := json.Marshal(wantSource)
			require.NoError(t, err)
			gotJSON, err := json.Marshal(gotSource)
			require.NoError(t, err)
			t.Logf("Generated search source: %s", gotJSON)
			assert.JSONEq(t, string(wantJSON), string(gotJSON))
		})
	}
}
