package query

import (
	"fmt"
	"strings"

	"github.com/VForWaTer/metacatalog-api/internal/catalog"
	"github.com/lib/pq"
)

// DefaultSchema is used when no schema name is configured
const DefaultSchema = "public"

// Schema qualifies table names with a configured PostgreSQL schema
type Schema string

// NewSchema validates a schema name. An empty name selects DefaultSchema.
func NewSchema(name string) (Schema, error) {
	if name == "" {
		return DefaultSchema, nil
	}
	if !isValidIdentifier(name) {
		return "", catalog.NewValidationError("database.schema", "invalid schema name %q", name)
	}
	return Schema(name), nil
}

// Name returns the unquoted schema name
func (s Schema) Name() string {
	if s == "" {
		return DefaultSchema
	}
	return string(s)
}

// Quoted returns the quoted schema identifier
func (s Schema) Quoted() string {
	return pq.QuoteIdentifier(s.Name())
}

// Table returns the quoted, schema-qualified name of a table
func (s Schema) Table(name string) string {
	return s.Quoted() + "." + pq.QuoteIdentifier(name)
}

// Page holds LIMIT and OFFSET values. Nil fields are not rendered.
type Page struct {
	Limit  *int
	Offset *int
}

// BuildPage validates limit and offset. Negative values are rejected.
func BuildPage(limit, offset *int) (Page, error) {
	verr := &catalog.ValidationError{}
	if limit != nil && *limit < 0 {
		verr.Add("limit", "must not be negative, got %d", *limit)
	}
	if offset != nil && *offset < 0 {
		verr.Add("offset", "must not be negative, got %d", *offset)
	}
	if err := verr.OrNil(); err != nil {
		return Page{}, err
	}
	return Page{Limit: limit, Offset: offset}, nil
}

// IsZero reports whether neither limit nor offset is set
func (p Page) IsZero() bool {
	return p.Limit == nil && p.Offset == nil
}

// ToSQL renders " LIMIT $n OFFSET $m" with bound values, omitting unset parts
func (p Page) ToSQL(paramCounter *int, args *[]interface{}) string {
	var sql strings.Builder

	if p.Limit != nil {
		sql.WriteString(fmt.Sprintf(" LIMIT $%d", *paramCounter))
		*args = append(*args, *p.Limit)
		*paramCounter++
	}

	if p.Offset != nil {
		sql.WriteString(fmt.Sprintf(" OFFSET $%d", *paramCounter))
		*args = append(*args, *p.Offset)
		*paramCounter++
	}

	return sql.String()
}

// Select renders a SELECT statement from trusted fragments and a bound predicate
type Select struct {
	Columns []string
	From    string
	Joins   []string
	Where   Predicate
	GroupBy []string
	OrderBy []string
	Page    Page
}

// ToSQL generates the SQL query and parameter bindings
func (s Select) ToSQL() (string, []interface{}, error) {
	if s.From == "" {
		return "", nil, fmt.Errorf("select without FROM")
	}

	var sql strings.Builder
	args := make([]interface{}, 0)
	paramCounter := 1

	columns := "*"
	if len(s.Columns) > 0 {
		columns = strings.Join(s.Columns, ", ")
	}
	sql.WriteString(fmt.Sprintf("SELECT %s FROM %s", columns, s.From))

	// JOINs
	for _, join := range s.Joins {
		sql.WriteString(" ")
		sql.WriteString(join)
	}

	// WHERE
	where, err := s.Where.ToSQL(&paramCounter, &args)
	if err != nil {
		return "", nil, fmt.Errorf("failed to build condition: %w", err)
	}
	if where != "" {
		sql.WriteString(" WHERE ")
		sql.WriteString(where)
	}

	// GROUP BY
	if len(s.GroupBy) > 0 {
		sql.WriteString(" GROUP BY ")
		sql.WriteString(strings.Join(s.GroupBy, ", "))
	}

	// ORDER BY
	if len(s.OrderBy) > 0 {
		sql.WriteString(" ORDER BY ")
		sql.WriteString(strings.Join(s.OrderBy, ", "))
	}

	sql.WriteString(s.Page.ToSQL(&paramCounter, &args))

	return sql.String(), args, nil
}

// isValidIdentifier checks if a string is a valid unquoted SQL identifier
func isValidIdentifier(s string) bool {
	if s == "" || len(s) > 63 {
		return false
	}

	for i, char := range s {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9' && i > 0) ||
			char == '_') {
			return false
		}
	}
	return true
}
