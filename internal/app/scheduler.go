/**
 * @description
 * Cron scheduler setup for housekeeping jobs.
 */
package app

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// CronScheduler manages the cron jobs.
type CronScheduler struct {
	cron     *cron.Cron
	jobs     *Jobs
	schedule string
	logger   zerolog.Logger
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, schedule string, logger zerolog.Logger) *CronScheduler {
	schedLogger := logger.With().Str("component", "scheduler").Logger()
	cronLogger := cron.PrintfLogger(&schedLogger)
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &CronScheduler{
		cron:     c,
		jobs:     jobs,
		schedule: schedule,
		logger:   schedLogger,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *CronScheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.jobs.PurgeStaleCredentials); err != nil {
		s.logger.Error().Err(err).Msg("failed to schedule credential purge job")
		return err
	}
	if _, err := s.cron.AddFunc(s.schedule, s.jobs.SweepLockouts); err != nil {
		s.logger.Error().Err(err).Msg("failed to schedule lockout sweep job")
		return err
	}
	s.logger.Info().Str("schedule", s.schedule).Msg("scheduled housekeeping jobs")

	s.cron.Start()
	return nil
}

// Stop gracefully stops the cron scheduler.
func (s *CronScheduler) Stop() context.Context {
	return s.cron.Stop()
}
