package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// SweepService is what the scheduler needs from the reconciler.
type SweepService interface {
	RunSweep(ctx context.Context) error
	RunCleanup(ctx context.Context) (int64, error)
}

const (
	sweepJobTimeout   = 30 * time.Minute
	cleanupJobTimeout = 5 * time.Minute
)

// SweepScheduler drives the periodic reconciliation and cleanup sweeps. The
// cron chain skips a trigger while the previous run of the same job is still
// in flight, so sweeps never overlap.
type SweepScheduler struct {
	cronEngine  *cron.Cron
	service     SweepService
	logger      *logrus.Entry
	sweepSpec   string
	cleanupSpec string
}

func NewSweepScheduler(service SweepService, logger *logrus.Entry, sweepSpec, cleanupSpec string) *SweepScheduler {
	return &SweepScheduler{
		cronEngine: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(logger))),
		),
		service:     service,
		logger:      logger,
		sweepSpec:   sweepSpec,
		cleanupSpec: cleanupSpec,
	}
}

func (s *SweepScheduler) Start() error {
	_, err := s.cronEngine.AddFunc(s.sweepSpec, func() {
		s.logger.Info("Cron job triggered: reconciliation sweep")
		ctx, cancel := context.WithTimeout(context.Background(), sweepJobTimeout)
		defer cancel()
		if err := s.service.RunSweep(ctx); err != nil {
			s.logger.WithError(err).Error("Reconciliation sweep failed")
		}
	})
	if err != nil {
		return err
	}

	_, err = s.cronEngine.AddFunc(s.cleanupSpec, func() {
		s.logger.Info("Cron job triggered: cleanup sweep")
		ctx, cancel := context.WithTimeout(context.Background(), cleanupJobTimeout)
		defer cancel()
		if _, err := s.service.RunCleanup(ctx); err != nil {
			s.logger.WithError(err).Error("Cleanup sweep failed")
		}
	})
	if err != nil {
		return err
	}

	s.cronEngine.Start()
	s.logger.WithFields(logrus.Fields{
		"sweep_spec":   s.sweepSpec,
		"cleanup_spec": s.cleanupSpec,
	}).Info("Sweep scheduler started")
	return nil
}

func (s *SweepScheduler) Stop() {
	s.logger.Info("Stopping sweep scheduler...")
	ctx := s.cronEngine.Stop() // waits for running jobs
	<-ctx.Done()
	s.logger.Info("Sweep scheduler gracefully stopped")
}
