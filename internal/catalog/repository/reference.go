package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/VForWaTer/metacatalog-api/internal/catalog"
	"github.com/VForWaTer/metacatalog-api/internal/orm/query"
	"github.com/VForWaTer/metacatalog-api/internal/orm/transaction"
)

// displayNameExpr matches catalog.Author.DisplayName
const displayNameExpr = "CASE WHEN p.is_organisation THEN coalesce(p.organisation_name, '') " +
	"ELSE concat_ws(' ', p.first_name, p.last_name) END"

// searchableNameExpr concatenates every name column of a person
const searchableNameExpr = "concat_ws(' ', p.first_name, p.last_name, p.organisation_name, p.organisation_abbrev)"

// AuthorQuery selects authors. Precedence: ID, EntryID, Name, then Search with ExcludeIDs.
type AuthorQuery struct {
	ID         *int64
	EntryID    *int64
	Name       string
	Search     string
	ExcludeIDs []int64
	Page       query.Page
}

// LicenseQuery selects licenses. ID takes precedence over paging.
type LicenseQuery struct {
	ID   *int64
	Page query.Page
}

// VariableQuery selects variables. OnlyAvailable keeps variables used by an entry with a datasource.
type VariableQuery struct {
	ID            *int64
	OnlyAvailable bool
	Page          query.Page
}

// GetAuthors returns authors by precedence. The ID branch fails with NotFoundError
// when the author does not exist, the other branches return empty results.
func (r *Repository) GetAuthors(ctx context.Context, aq AuthorQuery) ([]catalog.Author, error) {
	sel := query.Select{
		Columns: []string{personColumns},
		From:    r.schema.Table("persons") + " p",
		OrderBy: []string{"p.id ASC"},
		Page:    aq.Page,
	}

	switch {
	case aq.ID != nil:
		sel.Where = sel.Where.And("p.id", query.OpEqual, *aq.ID)
		sel.Page = query.Page{}
	case aq.EntryID != nil:
		sel.Joins = []string{fmt.Sprintf("JOIN %s ep ON ep.person_id = p.id", r.schema.Table("entries_persons"))}
		sel.Where = sel.Where.And("ep.entry_id", query.OpEqual, *aq.EntryID)
		sel.OrderBy = []string{`ep."order" ASC`}
	case strings.TrimSpace(aq.Name) != "":
		sel.Where = sel.Where.And(displayNameExpr, query.OpILike, query.LikePattern(strings.TrimSpace(aq.Name)))
	default:
		if term := strings.TrimSpace(aq.Search); term != "" {
			sel.Where = sel.Where.And(searchableNameExpr, query.OpILike, containsPattern(term))
		}
		if len(aq.ExcludeIDs) > 0 {
			sel.Where = sel.Where.And("p.id", query.OpNotIn, aq.ExcludeIDs)
		}
	}

	var authors []catalog.Author
	err := r.mgr.WithSession(ctx, func(ctx context.Context, q transaction.Querier) error {
		var err error
		authors, err = queryAll(ctx, q, sel, "query authors", func(row rowScanner) (catalog.Author, error) {
			return scanAuthor(row)
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if aq.ID != nil && len(authors) == 0 {
		return nil, &catalog.NotFoundError{Resource: "author", ID: *aq.ID}
	}
	return authors, nil
}

// GetAuthor returns one author or a NotFoundError
func (r *Repository) GetAuthor(ctx context.Context, id int64) (*catalog.Author, error) {
	authors, err := r.GetAuthors(ctx, AuthorQuery{ID: &id})
	if err != nil {
		return nil, err
	}
	return &authors[0], nil
}

// GetLicenses returns licenses ordered by id. The ID branch fails with NotFoundError.
func (r *Repository) GetLicenses(ctx context.Context, lq LicenseQuery) ([]catalog.License, error) {
	sel := query.Select{
		Columns: []string{licenseColumns},
		From:    r.schema.Table("licenses") + " l",
		OrderBy: []string{"l.id ASC"},
		Page:    lq.Page,
	}
	if lq.ID != nil {
		sel.Where = sel.Where.And("l.id", query.OpEqual, *lq.ID)
		sel.Page = query.Page{}
	}

	var licenses []catalog.License
	err := r.mgr.WithSession(ctx, func(ctx context.Context, q transaction.Querier) error {
		var err error
		licenses, err = queryAll(ctx, q, sel, "query licenses", scanLicense)
		return err
	})
	if err != nil {
		return nil, err
	}

	if lq.ID != nil && len(licenses) == 0 {
		return nil, &catalog.NotFoundError{Resource: "license", ID: *lq.ID}
	}
	return licenses, nil
}

// GetLicense returns one license or a NotFoundError
func (r *Repository) GetLicense(ctx context.Context, id int64) (*catalog.License, error) {
	licenses, err := r.GetLicenses(ctx, LicenseQuery{ID: &id})
	if err != nil {
		return nil, err
	}
	return &licenses[0], nil
}

// GetVariables returns variables ordered by id. The ID branch fails with NotFoundError.
func (r *Repository) GetVariables(ctx context.Context, vq VariableQuery) ([]catalog.Variable, error) {
	sel := query.Select{
		Columns: []string{variableColumns},
		From:    r.schema.Table("variables") + " v",
		Joins:   []string{fmt.Sprintf("JOIN %s u ON u.id = v.unit_id", r.schema.Table("units"))},
		OrderBy: []string{"v.id ASC"},
		Page:    vq.Page,
	}
	if vq.OnlyAvailable {
		sel.Joins = append(sel.Joins, fmt.Sprintf(
			"JOIN (SELECT DISTINCT variable_id FROM %s WHERE datasource_id IS NOT NULL) avail ON avail.variable_id = v.id",
			r.schema.Table("entries")))
	}
	if vq.ID != nil {
		sel.Where = sel.Where.And("v.id", query.OpEqual, *vq.ID)
		sel.Page = query.Page{}
	}

	var variables []catalog.Variable
	err := r.mgr.WithSession(ctx, func(ctx context.Context, q transaction.Querier) error {
		var err error
		variables, err = queryAll(ctx, q, sel, "query variables", scanVariable)
		return err
	})
	if err != nil {
		return nil, err
	}

	if vq.ID != nil && len(variables) == 0 {
		return nil, &catalog.NotFoundError{Resource: "variable", ID: *vq.ID}
	}
	return variables, nil
}

// GetVariable returns one variable or a NotFoundError
func (r *Repository) GetVariable(ctx context.Context, id int64) (*catalog.Variable, error) {
	variables, err := r.GetVariables(ctx, VariableQuery{ID: &id})
	if err != nil {
		return nil, err
	}
	return &variables[0], nil
}

// GetDatatypes returns the datasource types ordered by id, or the one with the given id.
// An unknown id yields an empty result.
func (r *Repository) GetDatatypes(ctx context.Context, id *int64) ([]catalog.DatasourceType, error) {
	sel := query.Select{
		Columns: []string{datatypeColumns},
		From:    r.schema.Table("datasource_types") + " t",
		OrderBy: []string{"t.id ASC"},
	}
	if id != nil {
		sel.Where = sel.Where.And("t.id", query.OpEqual, *id)
	}

	var types []catalog.DatasourceType
	err := r.mgr.WithSession(ctx, func(ctx context.Context, q transaction.Querier) error {
		var err error
		types, err = queryAll(ctx, q, sel, "query datatypes", scanDatatype)
		return err
	})
	return types, err
}

// queryAll runs sel and maps every row with scan. The result is never nil.
func queryAll[T any](ctx context.Context, q transaction.Querier, sel query.Select, op string, scan func(rowScanner) (T, error)) ([]T, error) {
	sqlText, args, err := sel.ToSQL()
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, catalog.ConvertDBError(op, err)
	}
	defer rows.Close()

	result := []T{}
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, catalog.ConvertDBError(op, err)
	}
	return result, nil
}

// containsPattern turns a search term into an ILIKE pattern. Terms with a wildcard are
// used as globs, plain terms match anywhere.
func containsPattern(term string) string {
	if strings.Contains(term, query.Wildcard) {
		return query.LikePattern(term)
	}
	return "%" + query.LikePattern(term) + "%"
}
