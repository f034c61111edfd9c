/**
 * @description
 * Error taxonomy shared by the PIN authentication core. Pure components return
 * these as values; storage and biometric layers convert faults into them so that
 * nothing raw escapes to the presentation layer.
 */
package domain

import (
	"errors"
	"fmt"
)

var (
	ErrStorageFailure       = errors.New("storage operation did not take effect")
	ErrLockedOut            = errors.New("too many failed attempts")
	ErrNoStoredCredential   = errors.New("no stored credential")
	ErrBiometricUnavailable = errors.New("biometric authentication unavailable")
	ErrNoSession            = errors.New("no authenticated session")
)

// ErrorKind is the user-facing failure class of an operation.
type ErrorKind string

const (
	ErrorNone                 ErrorKind = ""
	ErrorInvalidFormat        ErrorKind = "invalid_format"
	ErrorPolicyViolation      ErrorKind = "policy_violation"
	ErrorBackendRejected      ErrorKind = "backend_rejected"
	ErrorLockedOut            ErrorKind = "locked_out"
	ErrorBiometricUnavailable ErrorKind = "biometric_unavailable"
	ErrorBiometricFailed      ErrorKind = "biometric_failed"
	ErrorStorageFailure       ErrorKind = "storage_failure"
)

// PolicyRule names the PIN rule that was violated.
type PolicyRule string

const (
	RuleFormat        PolicyRule = "format"
	RuleForbidden     PolicyRule = "forbidden"
	RuleSequential    PolicyRule = "sequential"
	RuleRepeated      PolicyRule = "repeated"
	RuleSameAsCurrent PolicyRule = "same_as_current"
	RuleSameAsDefault PolicyRule = "same_as_default"
	RuleMismatch      PolicyRule = "mismatch"
)

var ruleMessages = map[PolicyRule]string{
	RuleFormat:        "PIN must be exactly 4 digits",
	RuleForbidden:     "This PIN is too easy to guess",
	RuleSequential:    "PIN cannot be a sequence of digits",
	RuleRepeated:      "PIN cannot repeat the same digit",
	RuleSameAsCurrent: "New PIN must differ from your current PIN",
	RuleSameAsDefault: "New PIN must differ from the default PIN",
	RuleMismatch:      "PIN confirmation does not match",
}

// PolicyError is the first violated PIN rule.
type PolicyError struct {
	Rule PolicyRule
}

func (e *PolicyError) Error() string {
	return e.Message()
}

// Message is the single message shown to the member.
func (e *PolicyError) Message() string {
	if msg, ok := ruleMessages[e.Rule]; ok {
		return msg
	}
	return fmt.Sprintf("PIN rejected (%s)", e.Rule)
}

// Kind maps the rule onto the error taxonomy.
func (e *PolicyError) Kind() ErrorKind {
	if e.Rule == RuleFormat {
		return ErrorInvalidFormat
	}
	return ErrorPolicyViolation
}

// RejectReason distinguishes backend rejections. All of them are counted
// against the login scope.
type RejectReason string

const (
	RejectBadCredentials RejectReason = "bad_credentials"
	RejectServerError    RejectReason = "server_error"
	RejectNetworkError   RejectReason = "network_error"
)
