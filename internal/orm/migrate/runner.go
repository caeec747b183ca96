package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/VForWaTer/metacatalog-api/internal/orm/query"
	"github.com/VForWaTer/metacatalog-api/internal/orm/transaction"
	"go.uber.org/zap"
)

// Runner installs the schema and applies migrations, one transaction per version
type Runner struct {
	mgr        *transaction.Manager
	schema     query.Schema
	tracker    *Tracker
	migrations []*Migration
	logger     *zap.Logger

	// stepTimeout bounds each migration transaction when positive
	stepTimeout time.Duration
}

// NewRunner creates a new migration runner using the embedded migrations
func NewRunner(mgr *transaction.Manager, schema query.Schema, logger *zap.Logger) (*Runner, error) {
	migrations, err := LoadMigrations()
	if err != nil {
		return nil, err
	}
	return newRunner(mgr, schema, migrations, logger), nil
}

func newRunner(mgr *transaction.Manager, schema query.Schema, migrations []*Migration, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		mgr:        mgr,
		schema:     schema,
		tracker:    NewTracker(schema),
		migrations: migrations,
		logger:     logger,
	}
}

// SetStepTimeout bounds every migration transaction. Zero disables the bound.
func (r *Runner) SetStepTimeout(d time.Duration) {
	r.stepTimeout = d
}

// Migrations returns the known migrations in version order
func (r *Runner) Migrations() []*Migration {
	return r.migrations
}

// LatestVersion returns the version reached after applying every migration
func (r *Runner) LatestVersion() int {
	if len(r.migrations) == 0 {
		return InstallVersion
	}
	return r.migrations[len(r.migrations)-1].Version
}

// IsInstalled reports whether the catalog schema is installed
func (r *Runner) IsInstalled(ctx context.Context) (bool, error) {
	var installed bool
	err := r.mgr.WithSession(ctx, func(ctx context.Context, q transaction.Querier) error {
		var err error
		installed, err = r.tracker.IsInstalled(ctx, q)
		return err
	})
	return installed, err
}

// CurrentVersion returns the installed schema version
func (r *Runner) CurrentVersion(ctx context.Context) (int, error) {
	var version int
	err := r.mgr.WithSession(ctx, func(ctx context.Context, q transaction.Querier) error {
		var err error
		version, err = r.tracker.CurrentVersion(ctx, q)
		return err
	})
	return version, err
}

// Install creates the version 1 schema and optionally seeds default reference data.
// Migrations are not applied; call Migrate afterwards.
func (r *Runner) Install(ctx context.Context, populateDefaults bool) error {
	install, err := r.script("sql/install.sql")
	if err != nil {
		return err
	}

	var defaults string
	if populateDefaults {
		if defaults, err = r.script("sql/defaults.sql"); err != nil {
			return err
		}
	}

	start := time.Now()
	err = r.mgr.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, install); err != nil {
			return fmt.Errorf("failed to execute install SQL: %w", err)
		}
		if defaults != "" {
			if _, err := tx.ExecContext(ctx, defaults); err != nil {
				return fmt.Errorf("failed to populate defaults: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("install failed: %w", err)
	}

	r.logger.Info("installed catalog schema",
		zap.String("schema", r.schema.Name()),
		zap.Bool("defaults", populateDefaults),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// Migrate applies all pending migrations
func (r *Runner) Migrate(ctx context.Context) error {
	return r.MigrateTo(ctx, r.LatestVersion())
}

// MigrateTo applies the migrations in (current, target], each in its own transaction.
// A failure leaves the schema at the last successfully applied version.
func (r *Runner) MigrateTo(ctx context.Context, target int) error {
	if target > r.LatestVersion() {
		return fmt.Errorf("unknown target version %d, latest is %d", target, r.LatestVersion())
	}

	current, err := r.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	if current == 0 {
		return fmt.Errorf("catalog schema %q is not installed", r.schema.Name())
	}
	if target < current {
		return fmt.Errorf("cannot migrate down from version %d to %d", current, target)
	}
	if target == current {
		r.logger.Debug("schema is up to date", zap.Int("version", current))
		return nil
	}

	for version := current + 1; version <= target; version++ {
		m := r.migrations[version-InstallVersion-1]
		if err := r.apply(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
		}
	}

	return nil
}

// apply runs a single migration and bumps the version in the same transaction
func (r *Runner) apply(ctx context.Context, m *Migration) error {
	start := time.Now()

	step := func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.render(m.Up)); err != nil {
			return fmt.Errorf("failed to execute migration SQL: %w", err)
		}
		return r.tracker.SetVersion(ctx, tx, m.Version)
	}

	var err error
	if r.stepTimeout > 0 {
		err = r.mgr.WithTimeout(ctx, r.stepTimeout, step)
	} else {
		err = r.mgr.WithTransaction(ctx, step)
	}
	if err != nil {
		return err
	}

	r.logger.Info("applied migration",
		zap.Int("version", m.Version),
		zap.String("name", m.Name),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

func (r *Runner) script(name string) (string, error) {
	b, err := scripts.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	return r.render(string(b)), nil
}

// render substitutes the quoted schema identifier for {schema}
func (r *Runner) render(sqlText string) string {
	return strings.ReplaceAll(sqlText, "{schema}", r.schema.Quoted())
}
