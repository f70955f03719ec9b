package identity

import "errors"

var (
	// ErrNotFound is returned when no account matches the lookup.
	ErrNotFound = errors.New("account not found")
	// ErrPhoneTaken is returned when creating an account for a registered phone.
	ErrPhoneTaken = errors.New("phone number already registered")
	// ErrPINAlreadySet is returned when a PIN is set twice.
	ErrPINAlreadySet = errors.New("pin already set")
	// ErrInvalidPIN is returned for PINs that are not exactly four digits.
	ErrInvalidPIN = errors.New("PIN must be exactly 4 digits")
)
