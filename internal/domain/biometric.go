package domain

// Modality is a biometric method.
type Modality string

const (
	ModalityFace        Modality = "face"
	ModalityFingerprint Modality = "fingerprint"
	ModalityIris        Modality = "iris"
)

// BiometricCapability is queried fresh on every initialization.
type BiometricCapability struct {
	HasHardware         bool       `json:"has_hardware"`
	IsEnrolled          bool       `json:"is_enrolled"`
	SupportedModalities []Modality `json:"supported_modalities"`
}

// Available is hardware AND enrolled AND at least one modality.
func (c BiometricCapability) Available() bool {
	return c.HasHardware && c.IsEnrolled && len(c.SupportedModalities) > 0
}

// Supports reports whether m is in the supported set.
func (c BiometricCapability) Supports(m Modality) bool {
	for _, s := range c.SupportedModalities {
		if s == m {
			return true
		}
	}
	return false
}

// Sensor error codes reported by the host biometric API.
const (
	BiometricErrUserCancel   = "user_cancel"
	BiometricErrSystemCancel = "system_cancel"
	BiometricErrUserFallback = "user_fallback"
	BiometricErrNotAvailable = "not_available"
	BiometricErrNotEnrolled  = "not_enrolled"
	BiometricErrLockout      = "lockout"
	BiometricErrException    = "exception"
	BiometricErrCanceled     = "canceled"
)

// PromptOptions are passed through to the host prompt.
type PromptOptions struct {
	PromptMessage   string `json:"prompt_message"`
	CancelLabel     string `json:"cancel_label"`
	FallbackLabel   string `json:"fallback_label"`
	DisableFallback bool   `json:"disable_fallback"`
}

// AuthResult is the classified outcome of one biometric attempt.
type AuthResult struct {
	Success             bool      `json:"success"`
	ErrorKind           ErrorKind `json:"error_kind,omitempty"`
	Reason              string    `json:"reason,omitempty"`
	CanRetry            bool      `json:"can_retry"`
	ShouldFallbackToPin bool      `json:"should_fallback_to_pin"`
	// Exception marks a fault raised by the sensor call itself.
	Exception bool `json:"exception,omitempty"`
	Attempts  int  `json:"attempts,omitempty"`
}

// BiometricPreference is the member's choice for biometric sign-in.
type BiometricPreference string

const (
	BiometricAuto     BiometricPreference = "auto"
	BiometricDisabled BiometricPreference = "disabled"
	BiometricManual   BiometricPreference = "manual"
)

// ParseBiometricPreference returns the preference or false when unknown.
func ParseBiometricPreference(raw string) (BiometricPreference, bool) {
	switch BiometricPreference(raw) {
	case BiometricAuto, BiometricDisabled, BiometricManual:
		return BiometricPreference(raw), true
	}
	return "", false
}
