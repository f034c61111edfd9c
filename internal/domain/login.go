package domain

// LoginState is the coordinator state.
type LoginState string

const (
	LoginIdle       LoginState = "idle"
	LoginSubmitting LoginState = "submitting"
	LoginSuccess    LoginState = "success"
	LoginFailed     LoginState = "failed"
	LoginBlocked    LoginState = "blocked"
)

// LoginRoute tells the presentation layer where to go next.
type LoginRoute string

const (
	RouteStay         LoginRoute = "stay"
	RouteDashboard    LoginRoute = "dashboard"
	RouteFirstTimePin LoginRoute = "first_time_pin"
	RouteBlocked      LoginRoute = "blocked"
	RoutePinEntry     LoginRoute = "pin_entry"
)

// MemberUser is the backend user record as returned by verification.
type MemberUser struct {
	ID          string         `json:"id"`
	PhoneNumber string         `json:"phone_number"`
	Name        string         `json:"name,omitempty"`
	Raw         map[string]any `json:"-"`
}

// LoginResult is the submission result handed to the UI.
type LoginResult struct {
	State              LoginState   `json:"state"`
	Route              LoginRoute   `json:"route"`
	ErrorKind          ErrorKind    `json:"error_kind,omitempty"`
	Rule               PolicyRule   `json:"rule,omitempty"`
	RejectReason       RejectReason `json:"reject_reason,omitempty"`
	Message            string       `json:"message,omitempty"`
	AttemptsRemaining  int          `json:"attempts_remaining"`
	LockoutRemainingMs int64        `json:"lockout_remaining_ms,omitempty"`
	ClearPINEntry      bool         `json:"clear_pin_entry"`
	User               *MemberUser  `json:"user,omitempty"`
	Biometric          *AuthResult  `json:"biometric,omitempty"`
}
