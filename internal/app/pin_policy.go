/**
 * @description
 * PIN validation and classification. Every function here is pure: no I/O and
 * no clock, so the rules can be exercised exhaustively in tests.
 *
 * Rule order for new PINs (first violation wins):
 * format -> forbidden -> sequential -> repeated -> same-as-current -> same-as-default.
 */
package app

import "github.com/Egie02/Client-sub000/internal/domain"

// PINLength is the only accepted PIN length.
const PINLength = 4

// ValidationKind selects the rule set applied by ValidatePIN.
type ValidationKind int

const (
	// KindGeneric checks shape only (login entry).
	KindGeneric ValidationKind = iota
	// KindNew applies every rule (PIN change and first-time setup).
	KindNew
)

// PolicyInput carries the caller-supplied comparison values.
type PolicyInput struct {
	CurrentPIN string
	DefaultPIN string
}

var forbiddenPINs = map[string]struct{}{
	"0000": {}, "1111": {}, "2222": {}, "3333": {}, "4444": {},
	"5555": {}, "6666": {}, "7777": {}, "8888": {}, "9999": {},
}

var sequentialPINs = map[string]struct{}{
	"0123": {}, "1234": {}, "2345": {}, "3456": {}, "4567": {}, "5678": {}, "6789": {},
	"3210": {}, "4321": {}, "5432": {}, "6543": {}, "7654": {}, "8765": {}, "9876": {},
}

// ValidatePIN returns the first violated rule, or nil when pin is acceptable.
func ValidatePIN(pin string, kind ValidationKind, in PolicyInput) *domain.PolicyError {
	if !IsWellFormed(pin) {
		return &domain.PolicyError{Rule: domain.RuleFormat}
	}
	if kind != KindNew {
		return nil
	}

	switch {
	case IsForbidden(pin):
		return &domain.PolicyError{Rule: domain.RuleForbidden}
	case IsSequential(pin):
		return &domain.PolicyError{Rule: domain.RuleSequential}
	case IsRepeated(pin):
		return &domain.PolicyError{Rule: domain.RuleRepeated}
	case in.CurrentPIN != "" && pin == in.CurrentPIN:
		return &domain.PolicyError{Rule: domain.RuleSameAsCurrent}
	case IsDefault(pin, in.DefaultPIN):
		return &domain.PolicyError{Rule: domain.RuleSameAsDefault}
	}
	return nil
}

// IsWellFormed reports whether pin is exactly four ASCII digits.
func IsWellFormed(pin string) bool {
	if len(pin) != PINLength {
		return false
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return false
		}
	}
	return true
}

// IsDefault reports whether pin equals the well-known default.
func IsDefault(pin, defaultPIN string) bool {
	return defaultPIN != "" && pin == defaultPIN
}

func IsForbidden(pin string) bool {
	_, ok := forbiddenPINs[pin]
	return ok
}

func IsSequential(pin string) bool {
	_, ok := sequentialPINs[pin]
	return ok
}

// IsRepeated reports whether every digit is the same.
func IsRepeated(pin string) bool {
	if pin == "" {
		return false
	}
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			return false
		}
	}
	return true
}
