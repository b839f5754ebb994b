package usecase

import "errors"

var (
	// ErrLimitExceeded is returned when a page limit is above the maximum.
	ErrLimitExceeded = errors.New("limit exceeds maximum")
	// ErrInvalidLimit is returned for a negative page limit.
	ErrInvalidLimit = errors.New("limit must not be negative")
	// ErrInvalidCursor is returned for a negative cursor.
	ErrInvalidCursor = errors.New("cursor must not be negative")
	// ErrInvalidRange is returned when the start date is after the end date.
	ErrInvalidRange = errors.New("start date is after end date")
	// ErrTransferFailed aborts an ingestion run when staged files could not be fetched.
	ErrTransferFailed = errors.New("file transfer failed")
)
