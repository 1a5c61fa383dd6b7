package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"release_alert_bot/internal/domain/alert"
	"release_alert_bot/internal/domain/metadata"
	domainTelegram "release_alert_bot/internal/domain/telegram"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// ErrSweepInProgress is returned when a sweep is requested while the previous
// one has not finished. Sweeps never overlap.
var ErrSweepInProgress = fmt.Errorf("a reconciliation sweep is already in progress")

// ReconcileService defines the scheduled maintenance operations over the
// tracked alerts.
type ReconcileService interface {
	// RunSweep reconciles every tracked alert against the metadata source
	// once, notifying owners about changed dates.
	RunSweep(ctx context.Context) error

	// RunCleanup removes alerts that no longer need tracking and reports how
	// many were removed.
	RunCleanup(ctx context.Context) (int64, error)
}

// ReconcileServiceImpl runs the fetch-compare-update-notify cycle over all
// tracked alerts. Per-alert failures are isolated: a gateway timeout or a
// failed delivery is logged and retried on the next scheduled sweep, never
// aborting the remaining alerts.
type ReconcileServiceImpl struct {
	alertRepo      alert.Repository
	gateway        metadata.Gateway
	telegramClient domainTelegram.Client
	logger         *logrus.Entry
	gatewayTimeout time.Duration
	parallelism    int

	sweepMu sync.Mutex
	now     func() time.Time
}

func NewReconcileServiceImpl(
	ar alert.Repository,
	gw metadata.Gateway,
	tc domainTelegram.Client,
	logger *logrus.Entry,
	gatewayTimeout time.Duration,
	parallelism int,
) *ReconcileServiceImpl {
	if parallelism < 1 {
		parallelism = 1
	}
	return &ReconcileServiceImpl{
		alertRepo:      ar,
		gateway:        gw,
		telegramClient: tc,
		logger:         logger,
		gatewayTimeout: gatewayTimeout,
		parallelism:    parallelism,
		now:            time.Now,
	}
}

// RunSweep reconciles every tracked alert once. Alerts are processed with
// bounded parallelism to respect the metadata source's rate limits.
func (s *ReconcileServiceImpl) RunSweep(ctx context.Context) error {
	if !s.sweepMu.TryLock() {
		return ErrSweepInProgress
	}
	defer s.sweepMu.Unlock()

	alerts, err := s.alertRepo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list alerts for sweep: %w", err)
	}
	s.logger.WithField("alert_count", len(alerts)).Info("Starting reconciliation sweep")

	sem := make(chan struct{}, s.parallelism)
	var wg sync.WaitGroup
	for _, a := range alerts {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(a *alert.TrackedAlert) {
			defer wg.Done()
			defer func() { <-sem }()
			s.reconcileOne(ctx, a)
		}(a)
	}
	wg.Wait()

	s.logger.Info("Reconciliation sweep finished")
	return ctx.Err()
}

// reconcileOne applies the per-alert state machine: fetch the current date,
// persist it, and notify the owner if the date differs from the one already
// notified for. Delivery failure leaves NotifiedForDate untouched so the same
// change is retried next sweep; this is at-least-once per distinct date value.
func (s *ReconcileServiceImpl) reconcileOne(ctx context.Context, a *alert.TrackedAlert) {
	logCtx := s.logger.WithFields(logrus.Fields{
		"user_id":  a.UserID,
		"title_id": a.TitleID,
		"kind":     a.Kind,
	})

	fetchCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	info, err := s.gateway.LookupDate(fetchCtx, a.TitleID, a.Kind)
	if err != nil {
		logCtx.WithError(err).Warn("Gateway lookup failed; alert left unchanged until next sweep")
		return
	}

	if !info.Exists {
		if err := s.alertRepo.MarkCleanup(ctx, a.UserID, a.TitleID); err != nil {
			logCtx.WithError(err).Error("Failed to flag delisted title for cleanup")
			return
		}
		logCtx.Info("Title no longer listed by the metadata source; flagged for cleanup")
		return
	}

	if info.Date == nil {
		// Nothing scheduled right now. Known information is never regressed
		// to unknown on the strength of an empty answer, but the successful
		// check still counts toward the sweep's fairness ordering.
		if err := s.alertRepo.MarkChecked(ctx, a.UserID, a.TitleID, s.now()); err != nil {
			logCtx.WithError(err).Error("Failed to record check time")
		}
		logCtx.Debug("No scheduled date from the metadata source")
		return
	}
	newDate := dateOnly(*info.Date)

	if err := s.alertRepo.UpdateReleaseDate(ctx, a.UserID, a.TitleID, newDate, s.now()); err != nil {
		logCtx.WithError(err).Error("Failed to persist release date")
		return
	}

	if a.NotifiedForDate.Valid && sameDate(a.NotifiedForDate.Time, newDate) {
		return // already notified for exactly this date
	}

	message := FormatReleaseMessage(a.TitleName, a.Kind, newDate)
	err = s.telegramClient.SendMessage(a.UserID, message, &telebot.SendOptions{ParseMode: telebot.ModeHTML})
	if err != nil {
		logCtx.WithError(err).Warn("Notification delivery failed; will retry next sweep")
		return
	}

	if err := s.alertRepo.MarkNotified(ctx, a.UserID, a.TitleID, newDate); err != nil {
		// Delivered but not recorded: the next sweep may deliver the same
		// date again. Documented trade-off of confirmed-delivery marking.
		logCtx.WithError(err).Error("Delivered notification but failed to record notified date")
		return
	}
	logCtx.WithField("release_date", newDate.Format("2006-01-02")).Info("Release notification delivered")
}

// RunCleanup removes alerts flagged for cleanup together with movie alerts
// whose release date has passed and was already notified. Destructive work is
// kept out of the reconciliation step on purpose.
func (s *ReconcileServiceImpl) RunCleanup(ctx context.Context) (int64, error) {
	removed, err := s.alertRepo.PurgeEligible(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("cleanup sweep failed: %w", err)
	}
	if removed > 0 {
		s.logger.WithField("removed", removed).Info("Cleanup sweep removed finished alerts")
	}
	return removed, nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
