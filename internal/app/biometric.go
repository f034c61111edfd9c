/**
 * @description
 * BiometricAuthenticator wraps the host biometric capability. It queries the
 * device on every Initialize, picks a preferred modality and classifies a
 * single prompt result. It never loops; retries belong to RetryRunner.
 *
 * Key features:
 * - Capability = hardware AND enrolled AND at least one modality.
 * - Modality priority: face, fingerprint, iris.
 * - Sensor faults are converted into AuthResult values.
 */
package app

import (
	"context"
	"sync"

	"github.com/Egie02/Client-sub000/internal/domain"
	"github.com/rs/zerolog"
)

// DefaultBiometricMaxRetries caps retryable classification of unknown errors.
const DefaultBiometricMaxRetries = 3

var modalityPriority = []domain.Modality{
	domain.ModalityFace,
	domain.ModalityFingerprint,
	domain.ModalityIris,
}

// SensorResult is the raw host prompt outcome.
type SensorResult struct {
	Success bool
	Error   string
}

// BiometricSensor is the host operating system biometric API.
type BiometricSensor interface {
	HasHardware(ctx context.Context) (bool, error)
	IsEnrolled(ctx context.Context) (bool, error)
	SupportedModalities(ctx context.Context) ([]domain.Modality, error)
	Authenticate(ctx context.Context, opts domain.PromptOptions) (SensorResult, error)
}

type BiometricAuthenticator struct {
	sensor     BiometricSensor
	maxRetries int
	logger     zerolog.Logger

	mu         sync.Mutex
	capability domain.BiometricCapability
	preferred  domain.Modality
	retryCount int
}

// NewBiometricAuthenticator creates an authenticator. maxRetries <= 0 uses
// DefaultBiometricMaxRetries.
func NewBiometricAuthenticator(sensor BiometricSensor, maxRetries int, logger zerolog.Logger) *BiometricAuthenticator {
	if maxRetries <= 0 {
		maxRetries = DefaultBiometricMaxRetries
	}
	return &BiometricAuthenticator{
		sensor:     sensor,
		maxRetries: maxRetries,
		logger:     logger.With().Str("component", "biometric").Logger(),
	}
}

// Initialize queries the device. Any sensor fault reads as "not present".
func (a *BiometricAuthenticator) Initialize(ctx context.Context) domain.BiometricCapability {
	var capability domain.BiometricCapability
	if a.sensor != nil {
		var err error
		if capability.HasHardware, err = a.sensor.HasHardware(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("hardware query failed")
			capability.HasHardware = false
		}
		if capability.HasHardware {
			if capability.IsEnrolled, err = a.sensor.IsEnrolled(ctx); err != nil {
				a.logger.Warn().Err(err).Msg("enrollment query failed")
				capability.IsEnrolled = false
			}
			if capability.SupportedModalities, err = a.sensor.SupportedModalities(ctx); err != nil {
				a.logger.Warn().Err(err).Msg("modality query failed")
				capability.SupportedModalities = nil
			}
		}
	}

	preferred := domain.Modality("")
	for _, m := range modalityPriority {
		if capability.Supports(m) {
			preferred = m
			break
		}
	}

	a.mu.Lock()
	a.capability = capability
	a.preferred = preferred
	a.mu.Unlock()

	a.logger.Debug().
		Bool("hardware", capability.HasHardware).
		Bool("enrolled", capability.IsEnrolled).
		Str("preferred", string(preferred)).
		Msg("biometric capability refreshed")
	return capability
}

// Capability returns the result of the last Initialize.
func (a *BiometricAuthenticator) Capability() domain.BiometricCapability {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.capability
}

// PreferredModality returns the highest-priority supported modality.
func (a *BiometricAuthenticator) PreferredModality() (domain.Modality, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.preferred, a.preferred != ""
}

func (a *BiometricAuthenticator) RetryCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.retryCount
}

// ResetRetries zeroes the in-memory retry counter.
func (a *BiometricAuthenticator) ResetRetries() {
	a.mu.Lock()
	a.retryCount = 0
	a.mu.Unlock()
}

func (a *BiometricAuthenticator) noteRetry() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.retryCount++
	return a.retryCount
}

// Authenticate shows the host prompt once and classifies the outcome.
func (a *BiometricAuthenticator) Authenticate(ctx context.Context, opts domain.PromptOptions) domain.AuthResult {
	if !a.Capability().Available() || a.sensor == nil {
		return domain.AuthResult{
			ErrorKind:           domain.ErrorBiometricUnavailable,
			Reason:              domain.BiometricErrNotAvailable,
			ShouldFallbackToPin: true,
		}
	}

	res, err := a.sensor.Authenticate(ctx, opts)
	if err != nil {
		a.logger.Warn().Err(err).Msg("biometric prompt raised")
		return a.classify(domain.BiometricErrException, true)
	}
	if res.Success {
		a.ResetRetries()
		return domain.AuthResult{Success: true}
	}
	return a.classify(res.Error, false)
}

func (a *BiometricAuthenticator) classify(code string, exception bool) domain.AuthResult {
	result := domain.AuthResult{
		ErrorKind: domain.ErrorBiometricFailed,
		Reason:    code,
		Exception: exception,
	}
	switch code {
	case domain.BiometricErrUserCancel, domain.BiometricErrSystemCancel:
		result.CanRetry = true
		result.ShouldFallbackToPin = true
	case domain.BiometricErrUserFallback, domain.BiometricErrLockout:
		result.ShouldFallbackToPin = true
	case domain.BiometricErrNotAvailable, domain.BiometricErrNotEnrolled:
		result.ErrorKind = domain.ErrorBiometricUnavailable
		result.ShouldFallbackToPin = true
	default:
		result.CanRetry = a.RetryCount() < a.maxRetries
		result.ShouldFallbackToPin = !result.CanRetry
	}
	return result
}
