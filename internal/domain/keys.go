package domain

// Persisted key layout. Every value is a string; numeric values are decimal,
// timestamps are unix milliseconds.
const (
	KeyBiometricCredentials = "biometricCredentials"
	KeyAuthToken            = "authToken"
	KeyBiometricPreference  = "biometric_preference"

	KeyOTCPINGranted  = "OTCPIN_GRANTED"
	KeyOTCPINDisabled = "OTCPIN_DISABLED"

	KeyLoginFailedAttempts = "failedAttempts"
	KeyLoginLockoutUntil   = "loginLockoutUntil"

	KeyFirstTimePinRequired  = "firstTimePinRequired"
	KeyFirstTimePinAttempts  = "firstTimePinAttempts"
	KeyFirstTimePinLockout   = "firstTimePinLockout"
	KeyFirstTimePinReason    = "firstTimePinReason"
	firstTimePinRequiredPfx  = "firstTimePinRequired_"
	firstTimePinCompletedPfx = "firstTimePinCompleted_"
)

// SentinelTrue is the value written for boolean flags.
const SentinelTrue = "true"

// FirstTimePinRequiredKey returns the per-phone "required" marker key.
func FirstTimePinRequiredKey(phone string) string {
	return firstTimePinRequiredPfx + phone
}

// FirstTimePinCompletedKey returns the per-phone completion marker key.
func FirstTimePinCompletedKey(phone string) string {
	return firstTimePinCompletedPfx + phone
}
