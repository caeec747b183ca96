package commands

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/VForWaTer/metacatalog-api/internal/cli/config"
	"github.com/VForWaTer/metacatalog-api/internal/logging"
	"github.com/VForWaTer/metacatalog-api/internal/orm/migrate"
	"github.com/VForWaTer/metacatalog-api/internal/orm/transaction"
	"go.uber.org/zap"
)

// errNotInstalled reports a database without the catalog schema
var errNotInstalled = errors.New("catalog schema is not installed")

// app holds what every database command needs
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	mgr    *transaction.Manager
	runner *migrate.Runner
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	if o.configFile != "" {
		return config.LoadFile(o.configFile)
	}
	return config.Load()
}

// bootstrap loads the configuration, builds the logger and connects to the database
func bootstrap(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.LoggingConfig())
	if err != nil {
		return nil, err
	}

	mgr, err := transaction.Open(ctx, cfg.TransactionConfig(), logger)
	if err != nil {
		logger.Sync()
		return nil, fmt.Errorf("cannot reach %s: %w", redact(cfg.Database.URL), err)
	}

	runner, err := migrate.NewRunner(mgr, cfg.Schema(), logger)
	if err != nil {
		mgr.Close()
		logger.Sync()
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, mgr: mgr, runner: runner}, nil
}

func (a *app) close() {
	if err := a.mgr.Close(); err != nil {
		a.logger.Warn("failed to close database", zap.Error(err))
	}
	a.logger.Sync()
}

// schemaStatus describes the installed catalog schema
type schemaStatus struct {
	Installed bool
	Current   int
	Latest    int
}

func readStatus(ctx context.Context, runner *migrate.Runner) (schemaStatus, error) {
	st := schemaStatus{Latest: runner.LatestVersion()}

	installed, err := runner.IsInstalled(ctx)
	if err != nil {
		return st, err
	}
	st.Installed = installed
	if !installed {
		return st, nil
	}

	st.Current, err = runner.CurrentVersion(ctx)
	return st, err
}

// ensureSchema installs the schema with default reference data when it is missing and
// applies pending migrations
func ensureSchema(ctx context.Context, runner *migrate.Runner, logger *zap.Logger) error {
	installed, err := runner.IsInstalled(ctx)
	if err != nil {
		return err
	}
	if !installed {
		logger.Info("catalog schema not found, installing with default reference data")
		if err := runner.Install(ctx, true); err != nil {
			return err
		}
	}
	return runner.Migrate(ctx)
}

// redact hides the password of a database URL
func redact(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	return u.Redacted()
}

func hintsFor(err error) []string {
	switch {
	case errors.Is(err, errNotInstalled):
		return []string{"install the schema: metacatalog install"}
	case errors.Is(err, transaction.ErrTransactionTimeout):
		return []string{"raise the bound with --step-timeout or disable it with --step-timeout 0"}
	default:
		return nil
	}
}
