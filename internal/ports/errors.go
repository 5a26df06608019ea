package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these so callers can use errors.Is.
var (
	// General Errors
	ErrUnknown               = errors.New("unknown error occurred")
	ErrInvalidRequest        = errors.New("invalid request parameters or format")
	ErrNotFound              = errors.New("resource not found")
	ErrTimeout               = errors.New("operation timed out")
	ErrContextCanceled       = errors.New("operation canceled via context")
	ErrConfigurationError    = errors.New("invalid or missing configuration")
	ErrInvalidConfiguration  = errors.New("invalid strategy or backtest parameters")
	ErrInsufficientData      = errors.New("not enough candles for the requested operation")
	ErrTooManyConsecutiveErr = errors.New("too many consecutive errors")

	// Exchange Specific Errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInvalidAPIKeys       = errors.New("invalid API keys or permissions")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrOrderPlacementFailed = errors.New("failed to place order")
	ErrRiskLimit            = errors.New("order rejected by risk limits")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
)
