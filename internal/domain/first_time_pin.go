package domain

// FirstTimePinRequirement mirrors the persisted markers for one phone number.
type FirstTimePinRequirement struct {
	RequiredGlobal    bool `json:"required_global"`
	RequiredForPhone  bool `json:"required_for_phone"`
	CompletedForPhone bool `json:"completed_for_phone"`
}

// Required reports whether the mandatory change still applies.
func (r FirstTimePinRequirement) Required() bool {
	return (r.RequiredGlobal || r.RequiredForPhone) && !r.CompletedForPhone
}

// FirstTimePinState is the workflow state for one phone number.
type FirstTimePinState string

const (
	FirstTimePinNotRequired FirstTimePinState = "not_required"
	FirstTimePinRequired    FirstTimePinState = "required"
	FirstTimePinLocked      FirstTimePinState = "locked"
	FirstTimePinCompleted   FirstTimePinState = "completed"
)

// SetupResult is returned to the UI after a first-time PIN submission.
type SetupResult struct {
	Accepted           bool              `json:"accepted"`
	State              FirstTimePinState `json:"state"`
	ErrorKind          ErrorKind         `json:"error_kind,omitempty"`
	Rule               PolicyRule        `json:"rule,omitempty"`
	Message            string            `json:"message,omitempty"`
	AttemptsRemaining  int               `json:"attempts_remaining"`
	LockoutRemainingMs int64             `json:"lockout_remaining_ms,omitempty"`
	// HardStop sends the member back to the login entry point.
	HardStop      bool `json:"hard_stop"`
	ClearPINEntry bool `json:"clear_pin_entry"`
}
