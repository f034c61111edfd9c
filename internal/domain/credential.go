package domain

import "time"

// StoredCredentialVersion is written into every stored credential.
const StoredCredentialVersion = "1"

// StoredCredential is the single credential slot used for biometric sign-in.
type StoredCredential struct {
	PhoneNumber string `json:"phoneNumber"`
	PIN         string `json:"pin"`
	Timestamp   int64  `json:"timestamp"` // unix milliseconds
	Version     string `json:"version"`
}

// StoredAt returns the time the credential was written.
func (c StoredCredential) StoredAt() time.Time {
	return time.UnixMilli(c.Timestamp)
}

// AttemptState is the persisted state of one lockout scope.
type AttemptState struct {
	Count        int        `json:"count"`
	LockoutUntil *time.Time `json:"lockout_until,omitempty"`
}

// LockoutStatus is the result of a lockout check.
type LockoutStatus struct {
	IsLocked  bool          `json:"is_locked"`
	Remaining time.Duration `json:"-"`
}

// RemainingMs reports the remaining lockout in milliseconds.
func (s LockoutStatus) RemainingMs() int64 {
	if !s.IsLocked || s.Remaining <= 0 {
		return 0
	}
	return s.Remaining.Milliseconds()
}
