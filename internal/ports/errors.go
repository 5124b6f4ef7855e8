package ports

import "errors"

// Standard application-level errors.
// Adapters and the ledger wrap these with context; callers match with errors.Is.
var (
	// Ledger Errors
	ErrInvalidOrder      = errors.New("invalid order: price and amount must be positive")
	ErrInconsistentState = errors.New("fill is inconsistent with trade state")
	ErrNotFound          = errors.New("resource not found")

	// General Errors
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
)
