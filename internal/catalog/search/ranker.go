// Package search ranks catalog entries against a full-text search term
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/VForWaTer/metacatalog-api/internal/catalog"
	"github.com/VForWaTer/metacatalog-api/internal/orm/query"
	"github.com/VForWaTer/metacatalog-api/internal/orm/transaction"
	"github.com/VForWaTer/metacatalog-api/internal/web/cache"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Matched field names reported in SearchResult.Matches
const (
	FieldTitle    = "title"
	FieldAbstract = "abstract"
	FieldAuthors  = "authors"
	FieldVariable = "variable"
	FieldDetails  = "details"
)

// Weights is the score each matched field contributes to a result
var Weights = map[string]int{
	FieldTitle:    5,
	FieldAbstract: 3,
	FieldAuthors:  3,
	FieldVariable: 2,
	FieldDetails:  1,
}

// Ranker runs ranked full-text searches, optionally backed by a result cache
type Ranker struct {
	schema query.Schema
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// Option configures a Ranker
type Option func(*Ranker)

// WithCache caches ranked pages in c for ttl. A nil cache disables caching.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(r *Ranker) {
		r.cache = c
		r.ttl = ttl
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Ranker) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRanker creates a ranker for the tables of schema
func NewRanker(schema query.Schema, opts ...Option) *Ranker {
	r := &Ranker{
		schema: schema,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Search returns the entries matching term ordered by weight descending, then id.
// A blank term yields an empty result without touching the store.
func (r *Ranker) Search(ctx context.Context, q transaction.Querier, term string, page query.Page) ([]catalog.SearchResult, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []catalog.SearchResult{}, nil
	}

	key := cache.SearchKey(term, page.Limit, page.Offset)
	if results, ok := r.cached(ctx, key); ok {
		return results, nil
	}

	sqlText, args := r.buildQuery(term, page)
	r.logger.Debug("ranked search", zap.String("term", term), zap.String("sql", sqlText))

	rows, err := q.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, catalog.ConvertDBError("search entries", err)
	}
	defer rows.Close()

	results := []catalog.SearchResult{}
	for rows.Next() {
		var (
			res     catalog.SearchResult
			matches []string
		)
		if err := rows.Scan(&res.ID, pq.Array(&matches), &res.Weight); err != nil {
			return nil, catalog.NewValidationError("search", "unexpected result shape: %v", err)
		}
		if matches == nil {
			matches = []string{}
		}
		res.Matches = matches
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, catalog.ConvertDBError("search entries", err)
	}

	r.store(ctx, key, results)
	return results, nil
}

// Invalidate drops every cached search page
func (r *Ranker) Invalidate(ctx context.Context) error {
	if r.cache == nil {
		return nil
	}
	if err := r.cache.Clear(ctx); err != nil {
		return fmt.Errorf("failed to invalidate search cache: %w", err)
	}
	return nil
}

func (r *Ranker) cached(ctx context.Context, key string) ([]catalog.SearchResult, bool) {
	if r.cache == nil {
		return nil, false
	}

	data, err := r.cache.Get(ctx, key)
	if err != nil {
		if !cache.IsCacheMiss(err) {
			r.logger.Warn("search cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var results []catalog.SearchResult
	if err := json.Unmarshal(data, &results); err != nil {
		r.logger.Warn("discarding corrupt search cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return results, true
}

func (r *Ranker) store(ctx context.Context, key string, results []catalog.SearchResult) {
	if r.cache == nil {
		return
	}

	data, err := json.Marshal(results)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, data, r.ttl); err != nil {
		r.logger.Warn("search cache write failed", zap.Error(err))
	}
}

// buildQuery renders the ranking statement. The term is always $1.
func (r *Ranker) buildQuery(term string, page query.Page) (string, []interface{}) {
	s := r.schema
	tsv := func(expr string) string {
		return fmt.Sprintf("to_tsvector('simple', %s) @@ q.query", expr)
	}

	branches := []string{
		fmt.Sprintf("SELECT e.id, '%s' AS match, %d AS weight FROM %s e, q WHERE %s",
			FieldTitle, Weights[FieldTitle], s.Table("entries"), tsv("coalesce(e.title, '')")),
		fmt.Sprintf("SELECT e.id, '%s', %d FROM %s e, q WHERE %s",
			FieldAbstract, Weights[FieldAbstract], s.Table("entries"), tsv("coalesce(e.abstract, '')")),
		fmt.Sprintf("SELECT ep.entry_id, '%s', %d FROM %s ep JOIN %s p ON p.id = ep.person_id, q WHERE %s",
			FieldAuthors, Weights[FieldAuthors], s.Table("entries_persons"), s.Table("persons"),
			tsv("coalesce(p.first_name, '') || ' ' || coalesce(p.last_name, '') || ' ' || coalesce(p.organisation_name, '')")),
		fmt.Sprintf("SELECT e.id, '%s', %d FROM %s e JOIN %s v ON v.id = e.variable_id, q WHERE %s",
			FieldVariable, Weights[FieldVariable], s.Table("entries"), s.Table("variables"), tsv("v.name")),
		fmt.Sprintf("SELECT d.entry_id, '%s', %d FROM %s d, q WHERE %s",
			FieldDetails, Weights[FieldDetails], s.Table("details"), tsv("d.raw_value::text")),
	}

	var sql strings.Builder
	sql.WriteString("WITH q AS (SELECT plainto_tsquery('simple', $1) AS query), ")
	sql.WriteString("hits AS (SELECT DISTINCT id, match, weight FROM (")
	sql.WriteString(strings.Join(branches, " UNION ALL "))
	sql.WriteString(") m) ")
	sql.WriteString("SELECT id, array_agg(match ORDER BY weight DESC, match) AS matches, SUM(weight)::int AS weight ")
	sql.WriteString("FROM hits GROUP BY id ORDER BY weight DESC, id ASC")

	args := []interface{}{term}
	paramCounter := 2
	sql.WriteString(page.ToSQL(&paramCounter, &args))

	return sql.String(), args
}
