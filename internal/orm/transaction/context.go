package transaction

import (
	"context"
	"database/sql"
)

type txKey struct{}

// FromContext returns the transaction opened by WithTransaction, if any
func FromContext(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok && tx != nil
}

// WithContext attaches tx to ctx so nested calls join it
func WithContext(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}
