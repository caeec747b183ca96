package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// WithTimeout runs fn in a transaction bounded by timeout. A transaction still running
// at the deadline is rolled back and ErrTransactionTimeout is returned.
func (m *Manager) WithTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context, tx *sql.Tx) error) error {
	bounded, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := m.WithTransaction(bounded, fn)
	if err != nil && errors.Is(bounded.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: transaction exceeded %v", ErrTransactionTimeout, timeout)
	}
	return err
}
