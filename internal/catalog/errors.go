package catalog

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// NotFoundError is returned when a lookup that requires a match yields nothing
type NotFoundError struct {
	Resource string
	ID       any
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	if e.ID == nil {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s <ID=%v> not found", e.Resource, e.ID)
}

// FieldError represents a validation error on a specific field
type FieldError struct {
	Field   string
	Message string
}

// ValidationError contains one or more field errors for malformed input
type ValidationError struct {
	Errors []FieldError
}

// NewValidationError creates a validation error with a single field error
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Errors: []FieldError{{Field: field, Message: fmt.Sprintf(format, args...)}}}
}

// Add appends a field error
func (ve *ValidationError) Add(field, format string, args ...any) {
	ve.Errors = append(ve.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// OrNil returns nil when no field errors were collected
func (ve *ValidationError) OrNil() error {
	if ve == nil || len(ve.Errors) == 0 {
		return nil
	}
	return ve
}

// Error implements the error interface
func (ve *ValidationError) Error() string {
	if len(ve.Errors) == 0 {
		return "validation failed"
	}
	if len(ve.Errors) == 1 {
		return fmt.Sprintf("validation failed: %s: %s", ve.Errors[0].Field, ve.Errors[0].Message)
	}
	return fmt.Sprintf("validation failed: %d errors (first: %s: %s)",
		len(ve.Errors), ve.Errors[0].Field, ve.Errors[0].Message)
}

// ConflictError is returned when a write collides with existing state
type ConflictError struct {
	Resource string
	Message  string
}

// Error implements the error interface
func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Resource, e.Message)
}

// StoreError wraps a connection or transaction failure of the underlying store
type StoreError struct {
	Op  string
	Err error
}

// Error implements the error interface
func (e *StoreError) Error() string {
	return fmt.Sprintf("store error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying store error
func (e *StoreError) Unwrap() error {
	return e.Err
}

// ConvertDBError converts driver errors into the catalog error taxonomy.
// Errors already in the taxonomy are returned unchanged.
func ConvertDBError(op string, err error) error {
	if err == nil {
		return nil
	}

	if IsNotFound(err) || IsValidation(err) || IsConflict(err) || IsStoreError(err) {
		return err
	}

	if errors.Is(err, sql.ErrNoRows) {
		return &NotFoundError{Resource: op}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return &ConflictError{Resource: pgErr.TableName, Message: pgErr.Detail}
		case "23503": // foreign_key_violation
			return NewValidationError(pgErr.ConstraintName, "foreign key violation: %s", pgErr.Detail)
		case "23514": // check_violation
			return NewValidationError(pgErr.ConstraintName, "check violation: %s", pgErr.Detail)
		case "23502": // not_null_violation
			return NewValidationError(pgErr.ColumnName, "must not be null")
		}
	}

	return &StoreError{Op: op, Err: err}
}

// IsNotFound returns true if the error is a NotFoundError
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsValidation returns true if the error is a ValidationError
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsConflict returns true if the error is a ConflictError
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// IsStoreError returns true if the error is a StoreError
func IsStoreError(err error) bool {
	var target *StoreError
	return errors.As(err, &target)
}
