package auth

import (
	"errors"

	"github.com/aquadrop/aquadrop/internal/identity"
)

var (
	// ErrInvalidPIN is returned before any lookup when the PIN is not four digits.
	ErrInvalidPIN = identity.ErrInvalidPIN
	// ErrInvalidCredentials covers unknown phones and wrong PINs alike.
	ErrInvalidCredentials = errors.New("invalid phone or PIN")
	// ErrLockedOut is returned while too many failed attempts are on record.
	ErrLockedOut = errors.New("too many failed attempts, try again later")
	// ErrInvalidToken is returned for bad, expired, revoked or wrongly scoped tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrPINResetUnsupported is returned by the PIN reset stub.
	ErrPINResetUnsupported = errors.New("PIN reset is not supported yet")
)
