package identity

import "time"

// Account represents a registered app user. PINHash stays nil until the
// user sets a PIN after verifying their phone number.
type Account struct {
	ID           string
	Name         string
	Phone        string
	PINHash      []byte
	TokenVersion int
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// HasPIN reports whether a PIN has been set for the account.
func (a Account) HasPIN() bool {
	return len(a.PINHash) > 0
}
