/**
 * @description
 * FirstTimePinWorkflow enforces the mandatory change away from the default
 * PIN. Markers are persisted per phone number plus one global flag.
 *
 * States: not_required -> required -> (locked <-> required) -> completed.
 * Completed is terminal per phone number.
 */
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/Egie02/Client-sub000/internal/domain"
	"github.com/rs/zerolog"
)

type FirstTimePinWorkflow struct {
	store      DeviceStore
	attempts   *LockoutTracker
	defaultPIN string
	events     *SecurityEvents
	logger     zerolog.Logger
}

// NewFirstTimePinWorkflow wires the workflow to its own attempt scope.
func NewFirstTimePinWorkflow(store DeviceStore, attempts *LockoutTracker, defaultPIN string, events *SecurityEvents, logger zerolog.Logger) *FirstTimePinWorkflow {
	return &FirstTimePinWorkflow{
		store:      store,
		attempts:   attempts,
		defaultPIN: defaultPIN,
		events:     events,
		logger:     logger.With().Str("component", "first_time_pin").Logger(),
	}
}

// DefaultPIN returns the well-known default PIN.
func (w *FirstTimePinWorkflow) DefaultPIN() string {
	return w.defaultPIN
}

// Trigger marks the change as required for phone and restarts its attempts.
// reason is stored for audit and must not contain a PIN.
func (w *FirstTimePinWorkflow) Trigger(ctx context.Context, phone, reason string) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return fmt.Errorf("phone number is required")
	}
	pairs := map[string]string{
		domain.KeyFirstTimePinRequired:        domain.SentinelTrue,
		domain.FirstTimePinRequiredKey(phone): domain.SentinelTrue,
		domain.KeyFirstTimePinReason:          reason,
	}
	if !w.store.MultiSet(ctx, pairs) {
		return fmt.Errorf("trigger first-time PIN: %w", domain.ErrStorageFailure)
	}
	if err := w.attempts.Reset(ctx); err != nil {
		return err
	}

	w.logger.Info().Str("phone", phone).Str("reason", reason).Msg("first-time PIN change required")
	w.events.Emit(ctx, domain.EventFirstTimePinTriggered, phone, reason)
	return nil
}

// Requirement reads the persisted markers for phone.
func (w *FirstTimePinWorkflow) Requirement(ctx context.Context, phone string) (domain.FirstTimePinRequirement, error) {
	phone = strings.TrimSpace(phone)
	keys := []string{
		domain.KeyFirstTimePinRequired,
		domain.FirstTimePinRequiredKey(phone),
		domain.FirstTimePinCompletedKey(phone),
	}
	values, ok := w.store.MultiGet(ctx, keys)
	if !ok {
		return domain.FirstTimePinRequirement{}, fmt.Errorf("read first-time PIN markers: %w", domain.ErrStorageFailure)
	}
	return domain.FirstTimePinRequirement{
		RequiredGlobal:    values[keys[0]] == domain.SentinelTrue,
		RequiredForPhone:  values[keys[1]] == domain.SentinelTrue,
		CompletedForPhone: values[keys[2]] == domain.SentinelTrue,
	}, nil
}

// IsRequired is (global || per-phone) && !completed. Unreadable markers
// report false.
func (w *FirstTimePinWorkflow) IsRequired(ctx context.Context, phone string) bool {
	req, err := w.Requirement(ctx, phone)
	if err != nil {
		w.logger.Warn().Err(err).Msg("requirement check failed")
		return false
	}
	return req.Required()
}

// IsCompleted reports whether phone already finished the change.
func (w *FirstTimePinWorkflow) IsCompleted(ctx context.Context, phone string) bool {
	value, found := w.store.Get(ctx, domain.FirstTimePinCompletedKey(strings.TrimSpace(phone)))
	return found && value == domain.SentinelTrue
}

// MarkCompleted records completion for phone and clears its required,
// attempt and lockout markers. The global flag is left as is. Idempotent.
func (w *FirstTimePinWorkflow) MarkCompleted(ctx context.Context, phone string) error {
	phone = strings.TrimSpace(phone)
	if !w.store.Set(ctx, domain.FirstTimePinCompletedKey(phone), domain.SentinelTrue) {
		return fmt.Errorf("mark first-time PIN completed: %w", domain.ErrStorageFailure)
	}
	if !w.store.Remove(ctx, domain.FirstTimePinRequiredKey(phone)) {
		return fmt.Errorf("clear first-time PIN marker: %w", domain.ErrStorageFailure)
	}
	if err := w.attempts.Reset(ctx); err != nil {
		return err
	}

	w.logger.Info().Str("phone", phone).Msg("first-time PIN change completed")
	w.events.Emit(ctx, domain.EventFirstTimePinCompleted, phone, "")
	return nil
}

// Qualifies is the single qualification check: the PIN used is the default,
// the OTCPIN permission is granted, and phone has not completed the change.
func (w *FirstTimePinWorkflow) Qualifies(ctx context.Context, phone, pin string, status domain.OTCPINStatus) bool {
	if !IsDefault(pin, w.defaultPIN) || !status.Granted {
		return false
	}
	return !w.IsCompleted(ctx, phone)
}

// State resolves the workflow state for phone. An elapsed lockout is cleared
// here, which is how Locked reverts to Required.
func (w *FirstTimePinWorkflow) State(ctx context.Context, phone string) (domain.FirstTimePinState, domain.LockoutStatus, error) {
	req, err := w.Requirement(ctx, phone)
	if err != nil {
		return "", domain.LockoutStatus{}, err
	}
	if req.CompletedForPhone {
		return domain.FirstTimePinCompleted, domain.LockoutStatus{}, nil
	}
	if !req.Required() {
		return domain.FirstTimePinNotRequired, domain.LockoutStatus{}, nil
	}
	status, err := w.attempts.CheckLockout(ctx)
	if err != nil {
		return "", domain.LockoutStatus{}, err
	}
	if status.IsLocked {
		return domain.FirstTimePinLocked, status, nil
	}
	return domain.FirstTimePinRequired, status, nil
}

// ValidateNewPIN checks a candidate and its confirmation. The default PIN is
// rejected as same-as-default before the pattern rules run, so "1234" reads
// as the default rather than as a sequence. Mismatch is checked last.
func (w *FirstTimePinWorkflow) ValidateNewPIN(newPIN, confirm string) *domain.PolicyError {
	if !IsWellFormed(newPIN) {
		return &domain.PolicyError{Rule: domain.RuleFormat}
	}
	if IsDefault(newPIN, w.defaultPIN) {
		return &domain.PolicyError{Rule: domain.RuleSameAsDefault}
	}
	in := PolicyInput{DefaultPIN: w.defaultPIN}
	if perr := ValidatePIN(newPIN, KindNew, in); perr != nil {
		return perr
	}
	if perr := ValidatePIN(confirm, KindGeneric, in); perr != nil {
		return perr
	}
	if newPIN != confirm {
		return &domain.PolicyError{Rule: domain.RuleMismatch}
	}
	return nil
}

// Submit runs the lockout gate and validation for one setup attempt. An
// accepted result still needs the remote change and MarkCompleted.
func (w *FirstTimePinWorkflow) Submit(ctx context.Context, phone, newPIN, confirm string) domain.SetupResult {
	state, lock, err := w.State(ctx, phone)
	if err != nil {
		return storageSetupResult(domain.FirstTimePinRequired)
	}
	switch state {
	case domain.FirstTimePinLocked:
		return domain.SetupResult{
			State:              state,
			ErrorKind:          domain.ErrorLockedOut,
			Message:            "Too many attempts. Sign in again to retry.",
			LockoutRemainingMs: lock.RemainingMs(),
			HardStop:           true,
			ClearPINEntry:      true,
		}
	case domain.FirstTimePinCompleted, domain.FirstTimePinNotRequired:
		return domain.SetupResult{State: state, Message: "No PIN change is required."}
	}

	if perr := w.ValidateNewPIN(newPIN, confirm); perr != nil {
		return w.RecordFailure(ctx, phone, perr.Kind(), perr.Rule, perr.Message())
	}
	return domain.SetupResult{
		Accepted:          true,
		State:             domain.FirstTimePinRequired,
		AttemptsRemaining: w.attempts.Remaining(w.attempts.Attempts(ctx)),
	}
}

// RecordFailure counts one failed setup attempt. Reaching the limit is a hard
// stop back to the login entry point.
func (w *FirstTimePinWorkflow) RecordFailure(ctx context.Context, phone string, kind domain.ErrorKind, rule domain.PolicyRule, message string) domain.SetupResult {
	result := domain.SetupResult{
		State:         domain.FirstTimePinRequired,
		ErrorKind:     kind,
		Rule:          rule,
		Message:       message,
		ClearPINEntry: true,
	}

	count, err := w.attempts.Increment(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to record setup attempt")
		return storageSetupResult(domain.FirstTimePinRequired)
	}
	result.AttemptsRemaining = w.attempts.Remaining(count)
	if count < w.attempts.Scope().MaxAttempts {
		return result
	}

	result.State = domain.FirstTimePinLocked
	result.HardStop = true
	if status, err := w.attempts.CheckLockout(ctx); err == nil {
		result.LockoutRemainingMs = status.RemainingMs()
	}
	w.logger.Warn().Str("phone", phone).Int("attempts", count).Msg("first-time PIN setup locked")
	w.events.Emit(ctx, domain.EventFirstTimePinLocked, phone, string(rule))
	return result
}

func storageSetupResult(state domain.FirstTimePinState) domain.SetupResult {
	return domain.SetupResult{
		State:         state,
		ErrorKind:     domain.ErrorStorageFailure,
		Message:       "Something went wrong. Please try again.",
		ClearPINEntry: true,
	}
}
