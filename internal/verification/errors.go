package verification

import "errors"

var (
	// ErrNotFoundOrExpired means no pending verification matches the phone.
	// The user has to request a new code.
	ErrNotFoundOrExpired = errors.New("verification code not found or expired")
	// ErrCodeMismatch means the submitted code was wrong. The pending entry is
	// consumed by the attempt, so the user has to request a new code.
	ErrCodeMismatch = errors.New("verification code does not match")
	// ErrInvalidPhone is returned for phone numbers rejected by the configured pattern.
	ErrInvalidPhone = errors.New("invalid phone number")
	// ErrInvalidName is returned when no display name was supplied.
	ErrInvalidName = errors.New("name is required")
)
