// Package repository implements the read side of the catalog: entries, locations and reference data.
//
// Every exported operation acquires exactly one session from the transaction manager and
// releases it before returning. A transaction carried by the context is reused instead.
package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/VForWaTer/metacatalog-api/internal/catalog"
	"github.com/VForWaTer/metacatalog-api/internal/catalog/search"
	"github.com/VForWaTer/metacatalog-api/internal/orm/query"
	"github.com/VForWaTer/metacatalog-api/internal/orm/transaction"
	"go.uber.org/zap"
)

// Repository reads catalog entries and their reference data
type Repository struct {
	mgr    *transaction.Manager
	schema query.Schema
	ranker *search.Ranker
	logger *zap.Logger
}

// New creates a repository. A nil ranker is replaced by an uncached one.
func New(mgr *transaction.Manager, schema query.Schema, ranker *search.Ranker, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ranker == nil {
		ranker = search.NewRanker(schema, search.WithLogger(logger))
	}
	return &Repository{
		mgr:    mgr,
		schema: schema,
		ranker: ranker,
		logger: logger,
	}
}

// Ranker returns the search ranker used for search selectors
func (r *Repository) Ranker() *search.Ranker {
	return r.ranker
}

// EntryQuery selects entries. Search takes precedence over IDs, IDs over Filter.
type EntryQuery struct {
	Search string
	IDs    []int64
	Filter query.Fields
	Page   query.Page
}

func (eq EntryQuery) searchTerm() string {
	return strings.TrimSpace(eq.Search)
}

// ListEntries returns the entries matching filter ordered by id
func (r *Repository) ListEntries(ctx context.Context, filter query.Fields, page query.Page) ([]catalog.Entry, error) {
	var entries []catalog.Entry
	err := r.mgr.WithSession(ctx, func(ctx context.Context, q transaction.Querier) error {
		var err error
		entries, err = r.listEntries(ctx, q, filter, page)
		return err
	})
	return entries, err
}

// GetEntriesByID returns the entries with the given ids ordered by id. Unknown ids are omitted.
func (r *Repository) GetEntriesByID(ctx context.Context, ids []int64, page query.Page) ([]catalog.Entry, error) {
	var entries []catalog.Entry
	err := r.mgr.WithSession(ctx, func(ctx context.Context, q transaction.Querier) error {
		var err error
		entries, err = r.entriesByID(ctx, q, ids, page)
		return err
	})
	return entries, err
}

// GetEntry returns a single entry or a NotFoundError
func (r *Repository) GetEntry(ctx context.Context, id int64) (*catalog.Entry, error) {
	entries, err := r.GetEntriesByID(ctx, []int64{id}, query.Page{})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, &catalog.NotFoundError{Resource: "entry", ID: id}
	}
	return &entries[0], nil
}

// FindEntries resolves eq by precedence. A search re-fetches the union of ranked and
// explicit ids without paging and returns them in rank order, explicit ids last by id.
func (r *Repository) FindEntries(ctx context.Context, eq EntryQuery) ([]catalog.Entry, error) {
	var entries []catalog.Entry
	err := r.mgr.WithSession(ctx, func(ctx context.Context, q transaction.Querier) error {
		var err error
		switch {
		case eq.searchTerm() != "":
			var ids []int64
			ids, err = r.searchIDs(ctx, q, eq)
			if err != nil {
				return err
			}
			entries, err = r.entriesByID(ctx, q, ids, query.Page{})
			if err != nil {
				return err
			}
			entries = orderByIDs(entries, ids)
		case len(eq.IDs) > 0:
			entries, err = r.entriesByID(ctx, q, eq.IDs, eq.Page)
		default:
			entries, err = r.listEntries(ctx, q, eq.Filter, eq.Page)
		}
		return err
	})
	return entries, err
}

// EntryLocations returns the locations of the entries selected by eq as a feature collection.
// Entries without a location are skipped; an empty selection yields zero features.
func (r *Repository) EntryLocations(ctx context.Context, eq EntryQuery) (*catalog.GeometryCollection, error) {
	collection := catalog.NewGeometryCollection()

	err := r.mgr.WithSession(ctx, func(ctx context.Context, q transaction.Querier) error {
		var (
			pred query.Predicate
			page = eq.Page
		)

		switch {
		case eq.searchTerm() != "":
			ids, err := r.searchIDs(ctx, q, eq)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				return nil
			}
			pred = pred.And("e.id", query.OpIn, ids)
			page = query.Page{}
		case len(eq.IDs) > 0:
			pred = pred.And("e.id", query.OpIn, eq.IDs)
		default:
			filter, err := query.BuildFilter(eq.Filter)
			if err != nil {
				return err
			}
			pred = filter
		}
		pred = pred.And("e.location", query.OpIsNotNull, nil)

		sqlText, args, err := query.Select{
			Columns: []string{"e.id", "e.title", "ST_X(e.location)", "ST_Y(e.location)"},
			From:    r.schema.Table("entries") + " e",
			Joins:   r.entryJoins(),
			Where:   pred,
			OrderBy: []string{"e.id ASC"},
			Page:    page,
		}.ToSQL()
		if err != nil {
			return err
		}

		rows, err := q.QueryContext(ctx, sqlText, args...)
		if err != nil {
			return catalog.ConvertDBError("entry locations", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				id       int64
				title    string
				lon, lat float64
			)
			if err := rows.Scan(&id, &title, &lon, &lat); err != nil {
				return shapeError("location", err)
			}
			collection.Add(*catalog.NewPoint(lon, lat), map[string]any{"id": id, "title": title})
		}
		return catalog.ConvertDBError("entry locations", rows.Err())
	})
	if err != nil {
		return nil, err
	}
	return collection, nil
}

// searchIDs ranks eq.Search and appends explicit ids that were not ranked, ascending
func (r *Repository) searchIDs(ctx context.Context, q transaction.Querier, eq EntryQuery) ([]int64, error) {
	results, err := r.ranker.Search(ctx, q, eq.searchTerm(), eq.Page)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool, len(results)+len(eq.IDs))
	ids := make([]int64, 0, len(results)+len(eq.IDs))
	for _, res := range results {
		if !seen[res.ID] {
			seen[res.ID] = true
			ids = append(ids, res.ID)
		}
	}

	extra := make([]int64, 0, len(eq.IDs))
	for _, id := range eq.IDs {
		if !seen[id] {
			seen[id] = true
			extra = append(extra, id)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })

	return append(ids, extra...), nil
}

func (r *Repository) entryJoins() []string {
	return []string{
		fmt.Sprintf("LEFT JOIN %s l ON l.id = e.license_id", r.schema.Table("licenses")),
		fmt.Sprintf("JOIN %s v ON v.id = e.variable_id", r.schema.Table("variables")),
		fmt.Sprintf("JOIN %s u ON u.id = v.unit_id", r.schema.Table("units")),
	}
}

func (r *Repository) entrySelect(pred query.Predicate, page query.Page) query.Select {
	return query.Select{
		Columns: []string{entryColumns, licenseColumns, variableColumns},
		From:    r.schema.Table("entries") + " e",
		Joins:   r.entryJoins(),
		Where:   pred,
		OrderBy: []string{"e.id ASC"},
		Page:    page,
	}
}

func (r *Repository) listEntries(ctx context.Context, q transaction.Querier, filter query.Fields, page query.Page) ([]catalog.Entry, error) {
	pred, err := query.BuildFilter(filter)
	if err != nil {
		return nil, err
	}
	return r.queryEntries(ctx, q, r.entrySelect(pred, page))
}

func (r *Repository) entriesByID(ctx context.Context, q transaction.Querier, ids []int64, page query.Page) ([]catalog.Entry, error) {
	if len(ids) == 0 {
		return []catalog.Entry{}, nil
	}
	pred := query.Predicate{}.And("e.id", query.OpIn, ids)
	return r.queryEntries(ctx, q, r.entrySelect(pred, page))
}

// queryEntries runs the joined entry query, then loads authors, details and
// datasources in one batched query each
func (r *Repository) queryEntries(ctx context.Context, q transaction.Querier, sel query.Select) ([]catalog.Entry, error) {
	sqlText, args, err := sel.ToSQL()
	if err != nil {
		return nil, err
	}
	r.logger.Debug("query entries", zap.String("sql", sqlText), zap.Int("args", len(args)))

	rows, err := q.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, catalog.ConvertDBError("query entries", err)
	}

	var scanned []entryRow
	for rows.Next() {
		row, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		scanned = append(scanned, row)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, catalog.ConvertDBError("query entries", err)
	}

	entries := make([]catalog.Entry, len(scanned))
	if len(scanned) == 0 {
		return entries, nil
	}

	ids := make([]int64, len(scanned))
	index := make(map[int64]int, len(scanned))
	var datasourceIDs []int64
	for i, row := range scanned {
		entries[i] = row.entry
		ids[i] = row.entry.ID
		index[row.entry.ID] = i
		if row.datasourceID != 0 {
			datasourceIDs = append(datasourceIDs, row.datasourceID)
		}
	}

	if err := r.loadAuthors(ctx, q, ids, entries, index); err != nil {
		return nil, err
	}
	if err := r.loadDetails(ctx, q, ids, entries, index); err != nil {
		return nil, err
	}
	if err := r.loadDatasources(ctx, q, datasourceIDs, scanned, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// loadAuthors attaches primary and co-authors in link order
func (r *Repository) loadAuthors(ctx context.Context, q transaction.Querier, ids []int64, entries []catalog.Entry, index map[int64]int) error {
	sqlText, args, err := query.Select{
		Columns: []string{"ep.entry_id", "pr.name", personColumns},
		From:    r.schema.Table("entries_persons") + " ep",
		Joins: []string{
			fmt.Sprintf("JOIN %s p ON p.id = ep.person_id", r.schema.Table("persons")),
			fmt.Sprintf("JOIN %s pr ON pr.id = ep.relationship_type_id", r.schema.Table("person_roles")),
		},
		Where:   query.Predicate{}.And("ep.entry_id", query.OpIn, ids),
		OrderBy: []string{"ep.entry_id", `ep."order"`},
	}.ToSQL()
	if err != nil {
		return err
	}

	rows, err := q.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return catalog.ConvertDBError("load authors", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			entryID int64
			role    string
		)
		author, err := scanAuthor(rows, &entryID, &role)
		if err != nil {
			return err
		}
		i, ok := index[entryID]
		if !ok {
			continue
		}
		if role == catalog.RoleAuthor && entries[i].Author == nil {
			a := author
			entries[i].Author = &a
		} else {
			entries[i].CoAuthors = append(entries[i].CoAuthors, author)
		}
	}
	return catalog.ConvertDBError("load authors", rows.Err())
}

func (r *Repository) loadDetails(ctx context.Context, q transaction.Querier, ids []int64, entries []catalog.Entry, index map[int64]int) error {
	sqlText, args, err := query.Select{
		Columns: []string{detailColumns},
		From:    r.schema.Table("details") + " d",
		Where:   query.Predicate{}.And("d.entry_id", query.OpIn, ids),
		OrderBy: []string{"d.entry_id", "d.id"},
	}.ToSQL()
	if err != nil {
		return err
	}

	rows, err := q.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return catalog.ConvertDBError("load details", err)
	}
	defer rows.Close()

	for rows.Next() {
		entryID, detail, err := scanDetail(rows)
		if err != nil {
			return err
		}
		if i, ok := index[entryID]; ok {
			entries[i].Details = append(entries[i].Details, detail)
		}
	}
	return catalog.ConvertDBError("load details", rows.Err())
}

func (r *Repository) loadDatasources(ctx context.Context, q transaction.Querier, datasourceIDs []int64, scanned []entryRow, entries []catalog.Entry) error {
	if len(datasourceIDs) == 0 {
		return nil
	}

	datasources, err := r.datasourcesByID(ctx, q, datasourceIDs)
	if err != nil {
		return err
	}
	for i, row := range scanned {
		if ds, ok := datasources[row.datasourceID]; ok {
			d := ds
			entries[i].Datasource = &d
		}
	}
	return nil
}

func (r *Repository) datasourcesByID(ctx context.Context, q transaction.Querier, ids []int64) (map[int64]catalog.Datasource, error) {
	sqlText, args, err := query.Select{
		Columns: []string{datasourceColumns},
		From:    r.schema.Table("datasources") + " ds",
		Joins: []string{
			fmt.Sprintf("JOIN %s t ON t.id = ds.type_id", r.schema.Table("datasource_types")),
			fmt.Sprintf("LEFT JOIN %s ts ON ts.id = ds.temporal_scale_id", r.schema.Table("temporal_scales")),
			fmt.Sprintf("LEFT JOIN %s ss ON ss.id = ds.spatial_scale_id", r.schema.Table("spatial_scales")),
		},
		Where: query.Predicate{}.And("ds.id", query.OpIn, ids),
	}.ToSQL()
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, catalog.ConvertDBError("load datasources", err)
	}
	defer rows.Close()

	result := make(map[int64]catalog.Datasource, len(ids))
	for rows.Next() {
		ds, err := scanDatasource(rows)
		if err != nil {
			return nil, err
		}
		result[ds.ID] = ds
	}
	return result, catalog.ConvertDBError("load datasources", rows.Err())
}

// orderByIDs reorders entries to follow ids. Entries not listed are dropped.
func orderByIDs(entries []catalog.Entry, ids []int64) []catalog.Entry {
	byID := make(map[int64]catalog.Entry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	ordered := make([]catalog.Entry, 0, len(entries))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			ordered = append(ordered, e)
		}
	}
	return ordered
}
