// Package migrate installs the catalog schema and upgrades it between versions
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/VForWaTer/metacatalog-api/internal/orm/query"
	"github.com/VForWaTer/metacatalog-api/internal/orm/transaction"
)

// InstallVersion is the schema version created by install.sql
const InstallVersion = 1

// InfoTable holds the single row with the installed schema version
const InfoTable = "metacatalog_info"

//go:embed sql
var scripts embed.FS

// Migration is a single forward schema upgrade
type Migration struct {
	Version int    // Schema version reached after applying Up
	Name    string // Human-readable name
	Up      string // SQL to apply, with {schema} placeholders
}

// LoadMigrations reads the embedded migrations sorted by version.
// Versions must be contiguous starting right after InstallVersion.
func LoadMigrations() ([]*Migration, error) {
	return loadMigrations(scripts, "sql/migrations")
}

func loadMigrations(fsys fs.FS, dir string) ([]*Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	var migrations []*Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		base := strings.TrimSuffix(entry.Name(), ".sql")
		prefix, name, ok := strings.Cut(base, "_")
		if !ok {
			return nil, fmt.Errorf("migration file %s: expected NNNN_name.sql", entry.Name())
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migration file %s: invalid version: %w", entry.Name(), err)
		}

		up, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", entry.Name(), err)
		}

		migrations = append(migrations, &Migration{Version: version, Name: name, Up: string(up)})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	for i, m := range migrations {
		if m.Version != InstallVersion+1+i {
			return nil, fmt.Errorf("migration %s has version %d, expected %d", m.Name, m.Version, InstallVersion+1+i)
		}
	}

	return migrations, nil
}

// Tracker reads and writes the schema version stored in metacatalog_info
type Tracker struct {
	schema query.Schema
}

// NewTracker creates a new version tracker for a schema
func NewTracker(schema query.Schema) *Tracker {
	return &Tracker{schema: schema}
}

// IsInstalled reports whether the metacatalog_info table exists in the schema
func (t *Tracker) IsInstalled(ctx context.Context, q transaction.Querier) (bool, error) {
	const stmt = `SELECT EXISTS (
	SELECT 1 FROM information_schema.tables
	WHERE table_schema = $1 AND table_name = $2
)`
	var exists bool
	if err := q.QueryRowContext(ctx, stmt, t.schema.Name(), InfoTable).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check installation: %w", err)
	}
	return exists, nil
}

// CurrentVersion returns the installed schema version, or 0 if no version row exists
func (t *Tracker) CurrentVersion(ctx context.Context, q transaction.Querier) (int, error) {
	stmt := fmt.Sprintf("SELECT db_version FROM %s LIMIT 1", t.schema.Table(InfoTable))

	var version int
	err := q.QueryRowContext(ctx, stmt).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// SetVersion records the schema version within the migration transaction
func (t *Tracker) SetVersion(ctx context.Context, q transaction.Querier, version int) error {
	stmt := fmt.Sprintf("UPDATE %s SET db_version = $1", t.schema.Table(InfoTable))
	if _, err := q.ExecContext(ctx, stmt, version); err != nil {
		return fmt.Errorf("failed to record schema version %d: %w", version, err)
	}
	return nil
}
