package query

import (
	"sort"
	"strings"

	"github.com/VForWaTer/metacatalog-api/internal/catalog"
)

// Wildcard is the glob marker accepted in filter values
const Wildcard = "*"

// Field is a single filter criterion as received from a caller
type Field struct {
	Name  string
	Value string
}

// Fields is an ordered list of filter criteria. Order only affects the generated SQL text.
type Fields []Field

// FieldsFromMap converts a map into Fields ordered by name
func FieldsFromMap(m map[string]string) Fields {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make(Fields, 0, len(names))
	for _, name := range names {
		fields = append(fields, Field{Name: name, Value: m[name]})
	}
	return fields
}

// EntryFilterColumns maps the logical filter names for entries to column expressions.
// Non-text columns are cast so that every comparison binds a text parameter.
var EntryFilterColumns = map[string]string{
	"id":          "e.id::text",
	"uuid":        "e.uuid::text",
	"title":       "e.title",
	"abstract":    "e.abstract",
	"external_id": "e.external_id",
	"version":     "e.version::text",
	"is_partial":  "e.is_partial::text",
	"comment":     "e.comment",
	"citation":    "e.citation",
	"embargo":     "e.embargo::text",
	"license_id":  "e.license_id::text",
	"license":     "l.short_title",
	"variable_id": "e.variable_id::text",
	"variable":    "v.name",
}

// BuildFilter builds an entry predicate from filter fields using EntryFilterColumns
func BuildFilter(fields Fields) (Predicate, error) {
	return BuildFilterFor(EntryFilterColumns, fields)
}

// BuildFilterFor builds a predicate from filter fields, resolving each name through columns.
// A value containing Wildcard becomes a LIKE match, anything else an equality match.
// All fields are AND-joined in the given order.
func BuildFilterFor(columns map[string]string, fields Fields) (Predicate, error) {
	var pred Predicate
	verr := &catalog.ValidationError{}

	for _, f := range fields {
		column, ok := columns[f.Name]
		if !ok {
			verr.Add("filter."+f.Name, "unknown filter field")
			continue
		}

		if strings.Contains(f.Value, Wildcard) {
			pred = pred.And(column, OpLike, LikePattern(f.Value))
		} else {
			pred = pred.And(column, OpEqual, f.Value)
		}
	}

	if err := verr.OrNil(); err != nil {
		return Predicate{}, err
	}
	return pred, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// LikePattern escapes LIKE metacharacters in a glob value and translates Wildcard to %
func LikePattern(glob string) string {
	return strings.ReplaceAll(likeEscaper.Replace(glob), Wildcard, "%")
}
