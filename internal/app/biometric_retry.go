/**
 * @description
 * RetryRunner drives the auto-trigger biometric flow as a small timer-based
 * state machine: attempt, classify, schedule the next attempt or stop.
 * A pending retry can be cancelled so a dismissed screen never gets a stale
 * prompt.
 */
package app

import (
	"context"
	"sync"
	"time"

	"github.com/Egie02/Client-sub000/internal/domain"
	"github.com/rs/zerolog"
)

const (
	// DefaultAutoRetries is the retry ceiling (three attempts in total).
	DefaultAutoRetries = 2

	retryBaseDelay          = 1000 * time.Millisecond
	retryExceptionBaseDelay = 1500 * time.Millisecond
)

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d without blocking the caller.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type wallScheduler struct{}

func (wallScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RetryDelay is the wait before the next attempt after retry retries.
func RetryDelay(retry int, exception bool) time.Duration {
	base := retryBaseDelay
	if exception {
		base = retryExceptionBaseDelay
	}
	return time.Duration(retry+1) * base
}

type RetryRunner struct {
	auth       *BiometricAuthenticator
	scheduler  Scheduler
	maxRetries int
	logger     zerolog.Logger
}

// NewRetryRunner creates a runner. A nil scheduler uses real timers.
func NewRetryRunner(auth *BiometricAuthenticator, scheduler Scheduler, maxRetries int, logger zerolog.Logger) *RetryRunner {
	if scheduler == nil {
		scheduler = wallScheduler{}
	}
	if maxRetries < 0 {
		maxRetries = DefaultAutoRetries
	}
	return &RetryRunner{
		auth:       auth,
		scheduler:  scheduler,
		maxRetries: maxRetries,
		logger:     logger.With().Str("component", "biometric_retry").Logger(),
	}
}

// RetrySession is one running auto-trigger flow.
type RetrySession struct {
	runner *RetryRunner
	ctx    context.Context
	opts   domain.PromptOptions
	done   func(domain.AuthResult)

	mu       sync.Mutex
	timer    Timer
	retries  int
	attempts int
	finished bool
}

// Start makes the first attempt immediately. done is called exactly once
// with the final result unless the session is cancelled first.
func (r *RetryRunner) Start(ctx context.Context, opts domain.PromptOptions, done func(domain.AuthResult)) *RetrySession {
	r.auth.ResetRetries()
	s := &RetrySession{runner: r, ctx: ctx, opts: opts, done: done}
	s.attempt()
	return s
}

// Cancel stops a pending retry. It is safe to call more than once.
func (s *RetrySession) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.finished = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.runner.logger.Debug().Int("attempts", s.attempts).Msg("biometric retry cancelled")
}

// Pending reports whether a retry is scheduled.
func (s *RetrySession) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.finished && s.timer != nil
}

func (s *RetrySession) attempt() {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	if err := s.ctx.Err(); err != nil {
		s.finished = true
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.attempts++
	attempts := s.attempts
	s.mu.Unlock()

	res := s.runner.auth.Authenticate(s.ctx, s.opts)
	res.Attempts = attempts

	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	if res.Success || !res.CanRetry || s.retries >= s.runner.maxRetries {
		s.finished = true
		s.mu.Unlock()
		if !res.Success {
			res.CanRetry = false
			res.ShouldFallbackToPin = true
			s.runner.logger.Info().Int("attempts", attempts).Str("reason", res.Reason).Msg("biometric flow ended, PIN required")
		}
		s.done(res)
		return
	}

	delay := RetryDelay(s.retries, res.Exception)
	s.retries++
	s.runner.auth.noteRetry()
	s.timer = s.runner.scheduler.AfterFunc(delay, s.attempt)
	s.mu.Unlock()

	s.runner.logger.Debug().Int("attempt", attempts).Dur("delay", delay).Str("reason", res.Reason).Msg("biometric retry scheduled")
}

// Run is the blocking form of Start. Cancelling ctx cancels the session and
// yields a canceled fallback result.
func (r *RetryRunner) Run(ctx context.Context, opts domain.PromptOptions) domain.AuthResult {
	results := make(chan domain.AuthResult, 1)
	session := r.Start(ctx, opts, func(res domain.AuthResult) { results <- res })

	select {
	case res := <-results:
		return res
	case <-ctx.Done():
		session.Cancel()
		select {
		case res := <-results:
			return res
		default:
		}
		return domain.AuthResult{
			ErrorKind:           domain.ErrorBiometricFailed,
			Reason:              domain.BiometricErrCanceled,
			ShouldFallbackToPin: true,
		}
	}
}
