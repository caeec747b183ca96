// Package transaction owns the PostgreSQL connection pool and scopes sessions and transactions
package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"go.uber.org/zap"
)

var (
	// ErrDeadlock is returned when a transaction keeps failing with a retryable error
	ErrDeadlock = errors.New("deadlock detected")
	// ErrTransactionTimeout is returned when a transaction times out
	ErrTransactionTimeout = errors.New("transaction timeout")
	// ErrClosed is returned when the manager is used after Close
	ErrClosed = errors.New("session manager closed")
)

// DriverName is the database/sql driver used by Open
const DriverName = "pgx"

// Querier is the subset of *sql.DB, *sql.Conn and *sql.Tx used by the catalog
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// IsolationLevel represents the transaction isolation level
type IsolationLevel int

const (
	// ReadCommitted prevents dirty reads (PostgreSQL default)
	ReadCommitted IsolationLevel = iota
	// RepeatableRead prevents non-repeatable reads
	RepeatableRead
	// Serializable provides full isolation
	Serializable
)

// String returns the string representation of the isolation level
func (l IsolationLevel) String() string {
	switch l {
	case RepeatableRead:
		return "REPEATABLE READ"
	case Serializable:
		return "SERIALIZABLE"
	default:
		return "READ COMMITTED"
	}
}

// ToSQLOptions converts IsolationLevel to sql.TxOptions
func (l IsolationLevel) ToSQLOptions() *sql.TxOptions {
	var level sql.IsolationLevel
	switch l {
	case RepeatableRead:
		level = sql.LevelRepeatableRead
	case Serializable:
		level = sql.LevelSerializable
	default:
		level = sql.LevelReadCommitted
	}
	return &sql.TxOptions{Isolation: level}
}

// Config holds the connection settings passed to Open
type Config struct {
	DSN              string
	ConnectTimeout   time.Duration
	StatementTimeout time.Duration
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// Manager manages database sessions and transactions
type Manager struct {
	db               *sql.DB
	logger           *zap.Logger
	statementTimeout time.Duration
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger used for rollbacks and retries
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithStatementTimeout bounds every session and transaction. Zero disables the bound.
func WithStatementTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.statementTimeout = d
	}
}

// NewManager creates a new manager around an existing pool
func NewManager(db *sql.DB, opts ...Option) *Manager {
	m := &Manager{db: db, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open opens the connection pool described by cfg and verifies it with a ping
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Manager, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open(DriverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	m := NewManager(db, WithLogger(logger), WithStatementTimeout(cfg.StatementTimeout))

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := m.Ping(pingCtx); err != nil {
		db.Close()
		return nil, err
	}

	return m, nil
}

// DB returns the underlying connection pool
func (m *Manager) DB() *sql.DB {
	return m.db
}

// Ping verifies a connection to the database is still alive
func (m *Manager) Ping(ctx context.Context) error {
	if m.db == nil {
		return ErrClosed
	}
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	return err
}

// WithSession runs fn on a single connection that is released when fn returns.
// When ctx already carries a transaction, fn runs inside that transaction instead.
func (m *Manager) WithSession(ctx context.Context, fn func(ctx context.Context, q Querier) error) error {
	if tx, ok := FromContext(ctx); ok {
		return fn(ctx, tx)
	}
	if m.db == nil {
		return ErrClosed
	}

	ctx, cancel := m.withStatementTimeout(ctx)
	defer cancel()

	conn, err := m.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	return fn(ctx, conn)
}

// WithTransaction executes a function within a transaction
// Automatically commits on success or rolls back on error
func (m *Manager) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	return m.WithTransactionIsolation(ctx, ReadCommitted, fn)
}

// WithTransactionIsolation executes a function within a transaction with specified isolation level.
// A transaction already carried by ctx is joined rather than nested.
func (m *Manager) WithTransactionIsolation(ctx context.Context, level IsolationLevel, fn func(ctx context.Context, tx *sql.Tx) error) error {
	if tx, ok := FromContext(ctx); ok {
		return fn(ctx, tx)
	}
	if m.db == nil {
		return ErrClosed
	}

	ctx, cancel := m.withStatementTimeout(ctx)
	defer cancel()

	tx, err := m.db.BeginTx(ctx, level.ToSQLOptions())
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-throw panic after rollback
		}
	}()

	if err := fn(WithContext(ctx, tx), tx); err != nil {
		m.logger.Warn("rolling back transaction", zap.Error(err))
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (m *Manager) withStatementTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.statementTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.statementTimeout)
}
