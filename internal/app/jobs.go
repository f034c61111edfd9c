/**
 * @description
 * Housekeeping job implementations. They apply the same expiry rules the
 * read paths apply lazily, so stale secrets do not linger on an idle device.
 */
package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const jobTimeout = 30 * time.Second

// Jobs contains the logic for all housekeeping tasks.
type Jobs struct {
	vault    *CredentialVault
	trackers []*LockoutTracker
	logger   zerolog.Logger
}

// NewJobs creates a new Jobs runner.
func NewJobs(vault *CredentialVault, trackers []*LockoutTracker, logger zerolog.Logger) *Jobs {
	return &Jobs{
		vault:    vault,
		trackers: trackers,
		logger:   logger.With().Str("component", "jobs").Logger(),
	}
}

// PurgeStaleCredentials drops an expired or malformed stored credential.
func (j *Jobs) PurgeStaleCredentials() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	j.logger.Debug().Msg("starting stored credential purge job")
	usable := j.vault.PurgeStale(ctx)
	j.logger.Debug().Bool("credential_present", usable).Msg("stored credential purge job finished")
}

// SweepLockouts clears lockouts whose window has elapsed.
func (j *Jobs) SweepLockouts() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	for _, tracker := range j.trackers {
		status, err := tracker.CheckLockout(ctx)
		if err != nil {
			j.logger.Error().Err(err).Str("scope", tracker.Scope().Name).Msg("failed to sweep lockout")
			continue
		}
		if status.IsLocked {
			j.logger.Debug().Str("scope", tracker.Scope().Name).Int64("remaining_ms", status.RemainingMs()).Msg("lockout still active")
		}
	}
}
