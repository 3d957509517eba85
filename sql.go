package criteriaquery

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/Masterminds/squirrel"
)

const (
	selectQuery int64 = iota
	updateQuery
	deleteQuery
)

// SqlBuilder renders criteria into the WHERE clause of a Squirrel builder.
// It is meant for relational read models kept next to a search index, so the
// same criteria can filter both. Only filtering operators have a SQL form:
// EXPRESSION, FUZZY, MATCHES, MATCHES_ALL and nested fields are rejected.
//
// Should clauses are only kept when a level has neither required nor
// excluded clauses, the same way a search engine treats them in a filter.
type SqlBuilder struct {
	queryType         int64
	selectBuilder     squirrel.SelectBuilder
	updateBuilder     squirrel.UpdateBuilder
	deleteBuilder     squirrel.DeleteBuilder
	placeholderFormat squirrel.PlaceholderFormat
}

// NewSqlBuilder creates a new SqlBuilder instance with default Dollar placeholder format
//
// Example:
//
//	qb := NewSqlBuilder()
//	qb.WithSelect("users")
//	// Generates SQL like: SELECT * FROM users WHERE name = $1
func NewSqlBuilder() *SqlBuilder {
	return &SqlBuilder{placeholderFormat: squirrel.Dollar}
}

// NewSqlBuilderWithPlaceholderFormat creates a new SqlBuilder instance with specified placeholder format
//
// Example:
//
//	qb := NewSqlBuilderWithPlaceholderFormat(squirrel.Question)
//	qb.WithSelect("users")
//	// Generates SQL like: SELECT * FROM users WHERE name = ?
func NewSqlBuilderWithPlaceholderFormat(placeholderFormat squirrel.PlaceholderFormat) *SqlBuilder {
	return &SqlBuilder{placeholderFormat: placeholderFormat}
}

// ToSql returns the SQL query string and arguments from the underlying Squirrel
// builder
func (qb *SqlBuilder) ToSql() (string, []any, error) {
	switch qb.queryType {
	case selectQuery:
		return qb.selectBuilder.ToSql()
	case updateQuery:
		return qb.updateBuilder.ToSql()
	case deleteQuery:
		return qb.deleteBuilder.ToSql()
	default:
		return "", nil, fmt.Errorf("invalid query type")
	}
}

// Apply adds the criteria as WHERE clause. Field names are mapped to columns
// through the json and db tags of model, which may be nil. Options only apply
// to SELECT queries.
func (qb *SqlBuilder) Apply(criteria *Criteria, options *QueryOptions, model any) (*SqlBuilder, error) {
	columns, err := columnsOf(model)
	if err != nil {
		return nil, err
	}

	where, ok, err := qb.Where(criteria, columns)
	if err != nil {
		return nil, err
	}

	switch qb.queryType {
	case selectQuery:
		if qb.selectBuilder == (squirrel.SelectBuilder{}) {
			return nil, fmt.Errorf("no query configured, call WithSelect, WithUpdate or WithDelete first")
		}
		if ok {
			qb.selectBuilder = qb.selectBuilder.Where(where)
		}
		qb.applyOptions(options, columns)
	case updateQuery:
		if ok {
			qb.updateBuilder = qb.updateBuilder.Where(where)
		}
	case deleteQuery:
		if ok {
			qb.deleteBuilder = qb.deleteBuilder.Where(where)
		}
	}

	return qb, nil
}

// Where compiles criteria into a condition. columns maps field names to
// column names; unmapped fields are used as they are. ok is false when the
// criteria hold no predicate.
func (qb *SqlBuilder) Where(criteria *Criteria, columns map[string]string) (squirrel.Sqlizer, bool, error) {
	if criteria == nil {
		return nil, false, nil
	}
	return compileChain[squirrel.Sqlizer](sqlBackend{columns: columns}, criteria)
}

func (qb *SqlBuilder) SelectBuilder() squirrel.SelectBuilder {
	return qb.selectBuilder
}

func (qb *SqlBuilder) UpdateBuilder() squirrel.UpdateBuilder {
	return qb.updateBuilder
}

func (qb *SqlBuilder) DeleteBuilder() squirrel.DeleteBuilder {
	return qb.deleteBuilder
}

// SetPlaceholderFormat sets the placeholder format used by the next With* call
func (qb *SqlBuilder) SetPlaceholderFormat(format squirrel.PlaceholderFormat) {
	qb.placeholderFormat = format
}

// GetPlaceholderFormat returns the current placeholder format
func (qb *SqlBuilder) GetPlaceholderFormat() squirrel.PlaceholderFormat {
	return qb.placeholderFormat
}

// WithSelect sets up the SqlBuilder for SELECT operations
func (qb *SqlBuilder) WithSelect(table string) *SqlBuilder {
	psql := squirrel.StatementBuilder.PlaceholderFormat(qb.placeholderFormat)
	qb.selectBuilder = psql.Select("*").From(table)
	qb.queryType = selectQuery
	return qb
}

// WithUpdate sets up the SqlBuilder for UPDATE operations
func (qb *SqlBuilder) WithUpdate(table string, values map[string]any) *SqlBuilder {
	psql := squirrel.StatementBuilder.PlaceholderFormat(qb.placeholderFormat)
	qb.updateBuilder = psql.Update(table).SetMap(values)
	qb.queryType = updateQuery
	return qb
}

// WithDelete sets up the SqlBuilder for DELETE operations
func (qb *SqlBuilder) WithDelete(table string) *SqlBuilder {
	psql := squirrel.StatementBuilder.PlaceholderFormat(qb.placeholderFormat)
	qb.deleteBuilder = psql.Delete(table)
	qb.queryType = deleteQuery
	return qb
}

// applyOptions applies sorting and pagination options to the query
func (qb *SqlBuilder) applyOptions(options *QueryOptions, columns map[string]string) {
	if options == nil {
		return
	}

	fields := make([]string, 0, len(options.Sort))
	for field := range options.Sort {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		column := columnName(columns, field)
		if options.Sort[field] == SortDesc {
			qb.selectBuilder = qb.selectBuilder.OrderBy(column + " DESC")
		} else {
			qb.selectBuilder = qb.selectBuilder.OrderBy(column + " ASC")
		}
	}

	if options.Limit != nil {
		qb.selectBuilder = qb.selectBuilder.Limit(uint64(*options.Limit))
	}
	if options.Offset != nil {
		qb.selectBuilder = qb.selectBuilder.Offset(uint64(*options.Offset))
	}
}

type sqlBackend struct {
	columns map[string]string
}

func (be sqlBackend) entries(c *Criteria) (squirrel.Sqlizer, bool, error) {
	if len(c.entries) == 0 {
		return nil, false, nil
	}
	if c.fieldName() == "" {
		return nil, false, usageError("", c.entries[0].key, "predicate has no field")
	}
	if c.field.Nested() {
		return nil, false, usageError(c.field.Name, c.entries[0].key, "nested fields have no SQL form")
	}

	column := columnName(be.columns, c.field.Name)
	conditions := make(squirrel.And, 0, len(c.entries))
	for _, e := range c.entries {
		cond, err := sqlCondition(e, c.field.Name, column)
		if err != nil {
			return nil, false, err
		}
		conditions = append(conditions, cond)
	}
	if len(conditions) == 1 {
		return conditions[0], true, nil
	}
	return conditions, true, nil
}

func (be sqlBackend) nested(c *Criteria, _ []squirrel.Sqlizer) (squirrel.Sqlizer, error) {
	return nil, usageError(c.fieldName(), keyUnknown, "nested criteria have no SQL form")
}

func (be sqlBackend) combine(b *buckets[squirrel.Sqlizer]) squirrel.Sqlizer {
	if len(b.must) == 0 && len(b.mustNot) == 0 {
		if len(b.should) == 1 {
			return b.should[0]
		}
		return squirrel.Or(b.should)
	}
	if len(b.must) == 1 && len(b.mustNot) == 0 {
		return b.must[0]
	}

	conditions := make(squirrel.And, 0, len(b.must)+len(b.mustNot))
	conditions = append(conditions, b.must...)
	for _, excluded := range b.mustNot {
		conditions = append(conditions, squirrel.Expr("NOT (?)", excluded))
	}
	return conditions
}

// sqlCondition converts an entry into a Squirrel condition
func sqlCondition(e Entry, field, column string) (squirrel.Sqlizer, error) {
	if err := e.check(field); err != nil {
		return nil, err
	}

	switch e.key {
	case KeyExists:
		return squirrel.NotEq{column: nil}, nil
	case KeyEmpty:
		return squirrel.Eq{column: ""}, nil
	case KeyNotEmpty:
		return squirrel.And{squirrel.NotEq{column: nil}, squirrel.NotEq{column: ""}}, nil
	case KeyEquals:
		return squirrel.Eq{column: e.value}, nil
	case KeyContains:
		return squirrel.Expr(column+" ILIKE ?", "%"+escapeLike(stringValue(e.value))+"%"), nil
	case KeyStartsWith:
		return squirrel.Expr(column+" ILIKE ?", escapeLike(stringValue(e.value))+"%"), nil
	case KeyEndsWith:
		return squirrel.Expr(column+" ILIKE ?", "%"+escapeLike(stringValue(e.value))), nil
	case KeyLess:
		return squirrel.Lt{column: e.value}, nil
	case KeyLessEqual:
		return squirrel.LtOrEq{column: e.value}, nil
	case KeyGreater:
		return squirrel.Gt{column: e.value}, nil
	case KeyGreaterEqual:
		return squirrel.GtOrEq{column: e.value}, nil
	case KeyBetween:
		switch {
		case e.lower == nil:
			return squirrel.LtOrEq{column: e.upper}, nil
		case e.upper == nil:
			return squirrel.GtOrEq{column: e.lower}, nil
		}
		return squirrel.And{squirrel.GtOrEq{column: e.lower}, squirrel.LtOrEq{column: e.upper}}, nil
	case KeyIn:
		return squirrel.Eq{column: e.values}, nil
	case KeyNotIn:
		return squirrel.NotEq{column: e.values}, nil
	case KeyRegexp:
		return squirrel.Expr(column+" ~ ?", stringValue(e.value)), nil
	}

	return nil, usageError(field, e.key, "operator has no SQL form")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func columnName(columns map[string]string, field string) string {
	if column, ok := columns[field]; ok {
		return column
	}
	return field
}

// columnsOf maps the json names of model to its db column names.
func columnsOf(model any) (map[string]string, error) {
	if model == nil {
		return nil, nil
	}

	typ := reflect.TypeOf(model)
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("expected struct or pointer to struct, got %v", typ.Kind())
	}

	columns := make(map[string]string)
	for i := 0; i < typ.NumField(); i++ {
		sf := typ.Field(i)
		name := jsonName(sf)
		if name == "" {
			continue
		}
		column, _, _ := strings.Cut(sf.Tag.Get("db"), ",")
		if column == "" || column == "-" {
			continue
		}
		columns[name] = column
	}
	return columns, nil
}
