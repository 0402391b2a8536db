package services

import "errors"

// Errors shared across services and the HTTP mapping layer.
var (
	ErrTournamentNotFound = errors.New("tournament not found")

	// Validation and business-rule errors
	ErrValidationFailed        = errors.New("validation failed")
	ErrGameNameRequired        = errors.New("game name is required")
	ErrGameCategoryRequired    = errors.New("game category is required")
	ErrScheduleRequired        = errors.New("tournament schedule is required")
	ErrInvalidCapacity         = errors.New("max participants must be at least 1")
	ErrInvalidEntryFee         = errors.New("entry fee must not be negative")
	ErrInvalidPrizePool        = errors.New("prize pool must not be negative")
	ErrInvalidStatus           = errors.New("invalid tournament status provided")
	ErrInvalidStatusTransition = errors.New("only a transition to completed may be forced manually")
	ErrInvalidAmount           = errors.New("credit amount must be positive")
	ErrIdempotencyKeyRequired  = errors.New("idempotency key is required")
	ErrIdempotencyKeyReused    = errors.New("idempotency key already used for a different user")

	// Join-flow errors
	ErrTournamentFull     = errors.New("tournament is full")
	ErrAlreadyJoined      = errors.New("user already joined this tournament")
	ErrRegistrationClosed = errors.New("tournament registration is closed")
	ErrInsufficientFunds  = errors.New("wallet balance is insufficient for the entry fee")

	// Concurrency
	ErrConcurrencyConflict = errors.New("operation lost a concurrent race, try again")

	// Authentication
	ErrAuthInvalidCredentials = errors.New("invalid email or password")
)
