// Package query parses the catalog's URL query parameters
package query

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/VForWaTer/metacatalog-api/internal/catalog"
	ormquery "github.com/VForWaTer/metacatalog-api/internal/orm/query"
)

// filterPattern matches query parameters like filter[key]
var filterPattern = regexp.MustCompile(`^filter\[([^\]]+)\]$`)

// ParseFilter parses the filter query parameters into filter fields ordered by name.
// Example: ?filter[title]=Soil*&filter[variable]=discharge
func ParseFilter(r *http.Request) ormquery.Fields {
	result := make(map[string]string)

	for key, values := range r.URL.Query() {
		matches := filterPattern.FindStringSubmatch(key)
		if len(matches) != 2 {
			continue
		}
		if len(values) > 0 {
			result[matches[1]] = values[0]
		}
	}

	return ormquery.FieldsFromMap(result)
}

// ParseIDs parses a list of ids given comma separated, repeated, or both.
// Example: ?ids=1,2&ids=5 returns [1 2 5]. A missing parameter returns nil.
func ParseIDs(r *http.Request, name string) ([]int64, error) {
	values, ok := r.URL.Query()[name]
	if !ok {
		return nil, nil
	}

	ids := []int64{}
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, catalog.NewValidationError(name, "invalid id %q", part)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ParsePage parses limit and offset. A missing limit falls back to defaultLimit when it is positive.
func ParsePage(r *http.Request, defaultLimit int) (ormquery.Page, error) {
	limit, err := optionalInt(r, "limit")
	if err != nil {
		return ormquery.Page{}, err
	}
	offset, err := optionalInt(r, "offset")
	if err != nil {
		return ormquery.Page{}, err
	}
	if limit == nil && defaultLimit > 0 {
		limit = &defaultLimit
	}
	return ormquery.BuildPage(limit, offset)
}

// ParseInt64 parses an optional integer parameter
func ParseInt64(r *http.Request, name string) (*int64, error) {
	val := strings.TrimSpace(r.URL.Query().Get(name))
	if val == "" {
		return nil, nil
	}
	i, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return nil, catalog.NewValidationError(name, "must be an integer, got %q", val)
	}
	return &i, nil
}

// ParseBool parses an optional boolean parameter
func ParseBool(r *http.Request, name string, defaultValue bool) (bool, error) {
	val := strings.TrimSpace(r.URL.Query().Get(name))
	if val == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, catalog.NewValidationError(name, "must be a boolean, got %q", val)
	}
	return b, nil
}

func optionalInt(r *http.Request, name string) (*int, error) {
	val := strings.TrimSpace(r.URL.Query().Get(name))
	if val == "" {
		return nil, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return nil, catalog.NewValidationError(name, "must be an integer, got %q", val)
	}
	return &i, nil
}
