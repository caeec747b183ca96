// Package assembler implements the write side of the catalog. An entry is created together
// with its authors, details and datasource in a single transaction.
package assembler

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/VForWaTer/metacatalog-api/internal/catalog"
	"github.com/VForWaTer/metacatalog-api/internal/catalog/payload"
	"github.com/VForWaTer/metacatalog-api/internal/catalog/repository"
	"github.com/VForWaTer/metacatalog-api/internal/orm/query"
	"github.com/VForWaTer/metacatalog-api/internal/orm/transaction"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxDetailKeyLength matches details.key and details.stem
const maxDetailKeyLength = 20

// Assembler creates entries, authors and datasources
type Assembler struct {
	mgr               *transaction.Manager
	repo              *repository.Repository
	schema            query.Schema
	logger            *zap.Logger
	replaceDatasource bool
	now               func() time.Time
	newUUID           func() uuid.UUID
}

// Option configures an Assembler
type Option func(*Assembler)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(a *Assembler) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithDatasourceReplace controls whether AttachDatasource replaces an existing datasource
// (the default) or fails with a ConflictError
func WithDatasourceReplace(replace bool) Option {
	return func(a *Assembler) {
		a.replaceDatasource = replace
	}
}

// New creates an assembler. Created entries are read back through repo.
func New(mgr *transaction.Manager, repo *repository.Repository, schema query.Schema, opts ...Option) *Assembler {
	a := &Assembler{
		mgr:               mgr,
		repo:              repo,
		schema:            schema,
		logger:            zap.NewNop(),
		replaceDatasource: true,
		now:               time.Now,
		newUUID:           uuid.New,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CreateEntry inserts the entry, links its primary author with order 1 and its co-authors
// with order 2, 3, ... in submission order, stores its details and an inline datasource.
// Either everything is committed or nothing is. Unless allowAuthorDuplicates is set,
// authors matching an existing person or organisation are reused.
func (a *Assembler) CreateEntry(ctx context.Context, in catalog.EntryCreate, allowAuthorDuplicates bool) (*catalog.Entry, error) {
	if err := validateEntry(in); err != nil {
		return nil, err
	}

	var entryID int64
	err := a.mgr.WithRetry(ctx, func(ctx context.Context, tx *sql.Tx) error {
		licenseID, err := a.resolveLicense(ctx, tx, in)
		if err != nil {
			return err
		}

		entryID, err = a.insertEntry(ctx, tx, in, licenseID)
		if err != nil {
			return err
		}

		authorID, err := a.resolveAuthor(ctx, tx, *in.Author, !allowAuthorDuplicates)
		if err != nil {
			return err
		}
		if err := a.linkAuthor(ctx, tx, entryID, authorID, catalog.RoleAuthor, 1); err != nil {
			return err
		}

		for i, co := range in.CoAuthors {
			coID, err := a.resolveAuthor(ctx, tx, co, !allowAuthorDuplicates)
			if err != nil {
				return err
			}
			if err := a.linkAuthor(ctx, tx, entryID, coID, catalog.RoleCoAuthor, i+2); err != nil {
				return err
			}
		}

		for _, d := range in.Details {
			if err := a.insertDetail(ctx, tx, entryID, d); err != nil {
				return err
			}
		}

		if in.Datasource != nil {
			if _, err := a.insertDatasource(ctx, tx, entryID, *in.Datasource); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.logger.Info("created entry",
		zap.Int64("id", entryID),
		zap.Int("coAuthors", len(in.CoAuthors)),
		zap.Int("details", len(in.Details)),
	)
	a.invalidate(ctx)

	return a.repo.GetEntry(ctx, entryID)
}

// AttachDatasource attaches a datasource to an existing entry. An existing datasource is
// replaced unless the assembler was configured with WithDatasourceReplace(false).
func (a *Assembler) AttachDatasource(ctx context.Context, entryID int64, in catalog.DatasourceCreate) (*catalog.Entry, error) {
	verr := &catalog.ValidationError{}
	validateDatasource(verr, "", in)
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	err := a.mgr.WithRetry(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var existing sql.NullInt64
		err := tx.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT datasource_id FROM %s WHERE id = $1 FOR UPDATE`, a.schema.Table("entries")),
			entryID,
		).Scan(&existing)
		if err == sql.ErrNoRows {
			return &catalog.NotFoundError{Resource: "entry", ID: entryID}
		}
		if err != nil {
			return catalog.ConvertDBError("lock entry", err)
		}

		if existing.Valid && !a.replaceDatasource {
			return &catalog.ConflictError{
				Resource: "datasource",
				Message:  fmt.Sprintf("entry %d already has datasource %d", entryID, existing.Int64),
			}
		}

		if _, err := a.insertDatasource(ctx, tx, entryID, in); err != nil {
			return err
		}

		if existing.Valid {
			if err := a.deleteDatasource(ctx, tx, existing.Int64); err != nil {
				return err
			}
			a.logger.Info("replaced datasource", zap.Int64("entry", entryID), zap.Int64("previous", existing.Int64))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.invalidate(ctx)
	return a.repo.GetEntry(ctx, entryID)
}

// CreateAuthor creates a standalone author. With avoidDuplicates an existing author with
// the same first and last name, or the same organisation name, is returned instead.
func (a *Assembler) CreateAuthor(ctx context.Context, in catalog.AuthorCreate, avoidDuplicates bool) (*catalog.Author, error) {
	verr := &catalog.ValidationError{}
	validateAuthor(verr, "author", in)
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	var id int64
	err := a.mgr.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		id, err = a.resolveAuthor(ctx, tx, in, avoidDuplicates)
		return err
	})
	if err != nil {
		return nil, err
	}

	a.invalidate(ctx)
	return a.repo.GetAuthor(ctx, id)
}

// invalidate drops cached search pages after a committed write
func (a *Assembler) invalidate(ctx context.Context) {
	if err := a.repo.Ranker().Invalidate(ctx); err != nil {
		a.logger.Warn("search cache invalidation failed", zap.Error(err))
	}
}

func validateEntry(in catalog.EntryCreate) error {
	verr := &catalog.ValidationError{}

	if strings.TrimSpace(in.Title) == "" {
		verr.Add("title", "is required")
	}
	if strings.TrimSpace(in.Abstract) == "" {
		verr.Add("abstract", "is required")
	}
	if in.LicenseID == nil && in.License == nil {
		verr.Add("license", "is required")
	}
	if in.License != nil && in.LicenseID == nil && strings.TrimSpace(in.License.ShortTitle) == "" {
		verr.Add("license.short_title", "is required")
	}
	if in.VariableID <= 0 {
		verr.Add("variable_id", "is required")
	}

	if in.Author == nil {
		verr.Add("author", "a primary author is required")
	} else {
		validateAuthor(verr, "author", *in.Author)
	}
	for i, co := range in.CoAuthors {
		validateAuthor(verr, fmt.Sprintf("coAuthors.%d", i+1), co)
	}

	for i, d := range in.Details {
		field := fmt.Sprintf("details.%d", i+1)
		if strings.TrimSpace(d.Key) == "" {
			verr.Add(field+".key", "is required")
		} else if utf8.RuneCountInString(d.Key) > maxDetailKeyLength {
			verr.Add(field+".key", "must not exceed %d characters", maxDetailKeyLength)
		}
		if utf8.RuneCountInString(d.Stem) > maxDetailKeyLength {
			verr.Add(field+".stem", "must not exceed %d characters", maxDetailKeyLength)
		}
	}

	if in.Datasource != nil {
		validateDatasource(verr, "datasource.", *in.Datasource)
	}

	return verr.OrNil()
}

// validateAuthor requires a person name or an organisation name unless an existing author is referenced
func validateAuthor(verr *catalog.ValidationError, field string, in catalog.AuthorCreate) {
	switch {
	case in.ID != nil:
	case in.IsOrganisationLike():
		if strings.TrimSpace(in.OrganisationName) == "" {
			verr.Add(field+".organisation_name", "is required for organisations")
		}
	case strings.TrimSpace(in.LastName) == "" && strings.TrimSpace(in.FirstName) == "":
		verr.Add(field, "a name or an organisation name is required")
	}
}

func validateDatasource(verr *catalog.ValidationError, prefix string, in catalog.DatasourceCreate) {
	if strings.TrimSpace(in.Path) == "" {
		verr.Add(prefix+"path", "is required")
	}
	if in.TypeID == nil && strings.TrimSpace(in.TypeName) == "" {
		verr.Add(prefix+"type", "is required")
	}
}

// entryDefaults fills version and dates that were not submitted
func (a *Assembler) entryDefaults(in catalog.EntryCreate) catalog.EntryCreate {
	now := a.now().UTC()
	if in.Version <= 0 {
		in.Version = 1
	}
	if in.EmbargoEnd == nil {
		end := now.Add(payload.DefaultEmbargoPeriod)
		in.EmbargoEnd = &end
	}
	if in.Publication == nil {
		in.Publication = &now
	}
	if in.LastUpdate == nil {
		in.LastUpdate = &now
	}
	return in
}
