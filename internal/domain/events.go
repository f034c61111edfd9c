package domain

import "time"

// Routing keys for security events.
const (
	EventLoginBlocked          = "security.login.blocked"
	EventFirstTimePinTriggered = "security.first_time_pin.triggered"
	EventFirstTimePinCompleted = "security.first_time_pin.completed"
	EventFirstTimePinLocked    = "security.first_time_pin.locked"
	EventCredentialsPurged     = "security.credentials.purged"
)

// SecurityEvent is published for audit. It never carries a PIN.
type SecurityEvent struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}
