package verification

import "time"

// PendingVerification is the in-flight registration for one phone number.
type PendingVerification struct {
	Phone     string    `json:"phone"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry is no longer valid at now.
func (p PendingVerification) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}
