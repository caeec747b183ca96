package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const (
	// DefaultMaxRetries is the default number of retry attempts for deadlocks
	DefaultMaxRetries = 3
	// DefaultBaseBackoff is the default base backoff duration
	DefaultBaseBackoff = 100 * time.Millisecond
)

// PostgreSQL SQLSTATE codes that make a transaction safe to retry
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// RetryConfig configures retry behavior for transactions
type RetryConfig struct {
	MaxRetries  int
	BaseBackoff time.Duration
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:  DefaultMaxRetries,
		BaseBackoff: DefaultBaseBackoff,
	}
}

// WithRetry executes a transaction with automatic retry on deadlock or serialization failure
func (m *Manager) WithRetry(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	return m.WithRetryConfig(ctx, DefaultRetryConfig(), fn)
}

// WithRetryConfig executes a transaction with custom retry configuration
func (m *Manager) WithRetryConfig(ctx context.Context, config *RetryConfig, fn func(ctx context.Context, tx *sql.Tx) error) error {
	var lastErr error

	for attempt := 0; attempt < config.MaxRetries; attempt++ {
		// Check if context is already cancelled before starting retry attempt
		if ctx.Err() != nil {
			return fmt.Errorf("transaction cancelled before retry %d: %w", attempt, ctx.Err())
		}

		err := m.WithTransaction(ctx, fn)
		if err == nil {
			return nil
		}

		if !IsRetryableError(err) {
			return err
		}
		lastErr = err

		// Calculate exponential backoff: baseBackoff * 2^attempt
		backoff := config.BaseBackoff * time.Duration(1<<uint(attempt))
		m.logger.Warn("retrying transaction",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("transaction cancelled during retry: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("%w: transaction failed after %d retries: %v", ErrDeadlock, config.MaxRetries, lastErr)
}

// IsRetryableError checks if an error is retryable (deadlock or serialization failure)
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeDeadlockDetected || pgErr.Code == codeSerializationFailure
	}

	// Errors that lost their type on the way, e.g. through a rollback failure message
	errStr := strings.ToLower(err.Error())
	for _, marker := range []string{codeDeadlockDetected, "deadlock detected", "could not serialize access"} {
		if strings.Contains(errStr, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}
