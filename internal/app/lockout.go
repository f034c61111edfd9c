/**
 * @description
 * LockoutTracker is a durable failed-attempt counter with a time-boxed
 * lockout. One tracker exists per scope; scopes never share keys.
 *
 * Key features:
 * - Lockout is recorded once the count reaches the scope maximum.
 * - An elapsed lockout is cleared lazily by the next CheckLockout.
 * - State lives in the device store so it survives restarts.
 */
package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Egie02/Client-sub000/internal/domain"
	"github.com/rs/zerolog"
)

// Scope describes one independently tracked attempt counter.
type Scope struct {
	Name        string
	CountKey    string
	LockoutKey  string
	MaxAttempts int
	Duration    time.Duration
}

// LoginScope is the scope used by PIN login.
func LoginScope(maxAttempts int, duration time.Duration) Scope {
	return Scope{
		Name:        "login",
		CountKey:    domain.KeyLoginFailedAttempts,
		LockoutKey:  domain.KeyLoginLockoutUntil,
		MaxAttempts: maxAttempts,
		Duration:    duration,
	}
}

// FirstTimePinScope is the scope used by the mandatory PIN change.
func FirstTimePinScope(maxAttempts int, duration time.Duration) Scope {
	return Scope{
		Name:        "first-time-pin",
		CountKey:    domain.KeyFirstTimePinAttempts,
		LockoutKey:  domain.KeyFirstTimePinLockout,
		MaxAttempts: maxAttempts,
		Duration:    duration,
	}
}

type LockoutTracker struct {
	store  DeviceStore
	scope  Scope
	now    Clock
	logger zerolog.Logger
}

// NewLockoutTracker creates a tracker for scope. A nil clock uses time.Now.
func NewLockoutTracker(store DeviceStore, scope Scope, now Clock, logger zerolog.Logger) *LockoutTracker {
	if now == nil {
		now = systemClock
	}
	if scope.MaxAttempts < 1 {
		scope.MaxAttempts = 1
	}
	return &LockoutTracker{
		store:  store,
		scope:  scope,
		now:    now,
		logger: logger.With().Str("component", "lockout").Str("scope", scope.Name).Logger(),
	}
}

// Scope returns the tracked scope.
func (t *LockoutTracker) Scope() Scope {
	return t.scope
}

// State reads the persisted attempt state.
func (t *LockoutTracker) State(ctx context.Context) (domain.AttemptState, error) {
	values, ok := t.store.MultiGet(ctx, []string{t.scope.CountKey, t.scope.LockoutKey})
	if !ok {
		return domain.AttemptState{}, fmt.Errorf("read %s attempts: %w", t.scope.Name, domain.ErrStorageFailure)
	}

	var state domain.AttemptState
	if raw, found := values[t.scope.CountKey]; found {
		count, err := strconv.Atoi(raw)
		if err != nil || count < 0 {
			t.logger.Warn().Str("value", raw).Msg("ignoring malformed attempt counter")
			count = 0
		}
		state.Count = count
	}
	if raw, found := values[t.scope.LockoutKey]; found {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			t.logger.Warn().Str("value", raw).Msg("ignoring malformed lockout timestamp")
		} else {
			until := time.UnixMilli(ms)
			state.LockoutUntil = &until
		}
	}
	return state, nil
}

// Attempts returns the current count, or 0 when unreadable.
func (t *LockoutTracker) Attempts(ctx context.Context) int {
	state, err := t.State(ctx)
	if err != nil {
		return 0
	}
	return state.Count
}

// Remaining returns how many attempts are left before lockout.
func (t *LockoutTracker) Remaining(count int) int {
	if left := t.scope.MaxAttempts - count; left > 0 {
		return left
	}
	return 0
}

// Increment records one failure and returns the new count. Reaching the
// maximum also records lockoutUntil = now + duration.
func (t *LockoutTracker) Increment(ctx context.Context) (int, error) {
	state, err := t.State(ctx)
	if err != nil {
		return 0, err
	}

	count := state.Count + 1
	pairs := map[string]string{t.scope.CountKey: strconv.Itoa(count)}
	if count >= t.scope.MaxAttempts {
		until := t.now().Add(t.scope.Duration)
		pairs[t.scope.LockoutKey] = strconv.FormatInt(until.UnixMilli(), 10)
	}
	if !t.store.MultiSet(ctx, pairs) {
		return count, fmt.Errorf("record %s attempt: %w", t.scope.Name, domain.ErrStorageFailure)
	}

	if count >= t.scope.MaxAttempts {
		t.logger.Warn().Int("attempts", count).Dur("lockout", t.scope.Duration).Msg("attempt limit reached")
	}
	return count, nil
}

// CheckLockout reports the lockout state. An elapsed lockout resets the scope
// as a side effect.
func (t *LockoutTracker) CheckLockout(ctx context.Context) (domain.LockoutStatus, error) {
	state, err := t.State(ctx)
	if err != nil {
		return domain.LockoutStatus{}, err
	}
	if state.LockoutUntil == nil {
		return domain.LockoutStatus{}, nil
	}

	now := t.now()
	if now.Before(*state.LockoutUntil) {
		return domain.LockoutStatus{IsLocked: true, Remaining: state.LockoutUntil.Sub(now)}, nil
	}

	if err := t.Reset(ctx); err != nil {
		return domain.LockoutStatus{}, err
	}
	t.logger.Info().Msg("lockout elapsed, attempts reset")
	return domain.LockoutStatus{}, nil
}

// Reset clears the counter and any lockout.
func (t *LockoutTracker) Reset(ctx context.Context) error {
	if !t.store.MultiRemove(ctx, []string{t.scope.CountKey, t.scope.LockoutKey}) {
		return fmt.Errorf("reset %s attempts: %w", t.scope.Name, domain.ErrStorageFailure)
	}
	return nil
}
