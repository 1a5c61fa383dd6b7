package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"release_alert_bot/internal/domain/alert"
	"release_alert_bot/internal/domain/metadata"
	idb "release_alert_bot/internal/infra/database"

	"github.com/sirupsen/logrus"
)

// ErrAlreadyTracking is surfaced when a user subscribes to a title they
// already hold an alert for. Recoverable; callers report "already tracking".
var ErrAlreadyTracking = fmt.Errorf("user is already tracking this title")

// SubscriptionService defines the operations behind the user-facing search
// and alert management flows.
type SubscriptionService interface {
	Search(ctx context.Context, query string) ([]metadata.Candidate, error)
	Resolve(ctx context.Context, titleID string, kind alert.TitleKind) (metadata.Candidate, error)
	Subscribe(ctx context.Context, userID int64, cand metadata.Candidate) (*alert.TrackedAlert, error)
	ListForUser(ctx context.Context, userID int64) ([]*alert.TrackedAlert, error)
	Unsubscribe(ctx context.Context, userID int64, titleID string) (bool, error)
}

// SubscriptionServiceImpl turns user queries into metadata candidates and
// user selections into tracked alerts. Thin orchestration over the gateway
// and the alert store.
type SubscriptionServiceImpl struct {
	alertRepo     alert.Repository
	gateway       metadata.Gateway
	logger        *logrus.Entry
	searchTimeout time.Duration
}

func NewSubscriptionServiceImpl(
	ar alert.Repository,
	gw metadata.Gateway,
	logger *logrus.Entry,
	searchTimeout time.Duration,
) *SubscriptionServiceImpl {
	return &SubscriptionServiceImpl{
		alertRepo:     ar,
		gateway:       gw,
		logger:        logger,
		searchTimeout: searchTimeout,
	}
}

// Search returns candidates in the gateway's own relevance order.
func (s *SubscriptionServiceImpl) Search(ctx context.Context, query string) ([]metadata.Candidate, error) {
	searchCtx, cancel := context.WithTimeout(ctx, s.searchTimeout)
	defer cancel()

	candidates, err := s.gateway.Search(searchCtx, query)
	if err != nil {
		return nil, fmt.Errorf("metadata search failed: %w", err)
	}
	return candidates, nil
}

// Resolve rebuilds a candidate from the gateway's detail record for a title
// already identified by id, e.g. when a selection arrives for a search result
// that was offered before a restart.
func (s *SubscriptionServiceImpl) Resolve(ctx context.Context, titleID string, kind alert.TitleKind) (metadata.Candidate, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, s.searchTimeout)
	defer cancel()

	cand, err := s.gateway.Lookup(lookupCtx, titleID, kind)
	if err != nil {
		return metadata.Candidate{}, fmt.Errorf("metadata lookup failed: %w", err)
	}
	return cand, nil
}

// Subscribe creates a tracked alert for the chosen candidate. The release
// date starts unknown; the next sweep resolves it.
func (s *SubscriptionServiceImpl) Subscribe(ctx context.Context, userID int64, cand metadata.Candidate) (*alert.TrackedAlert, error) {
	a := &alert.TrackedAlert{
		UserID:    userID,
		TitleID:   cand.TitleID,
		Kind:      cand.Kind,
		TitleName: cand.Name,
	}

	if err := s.alertRepo.Create(ctx, a); err != nil {
		if errors.Is(err, idb.ErrDuplicateAlert) {
			return nil, ErrAlreadyTracking
		}
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"title_id":   cand.TitleID,
		"kind":       cand.Kind,
		"title_name": cand.Name,
	}).Info("Alert created")
	return a, nil
}

func (s *SubscriptionServiceImpl) ListForUser(ctx context.Context, userID int64) ([]*alert.TrackedAlert, error) {
	alerts, err := s.alertRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts for user %d: %w", userID, err)
	}
	return alerts, nil
}

// Unsubscribe removes the user's alert and reports whether one existed.
func (s *SubscriptionServiceImpl) Unsubscribe(ctx context.Context, userID int64, titleID string) (bool, error) {
	existed, err := s.alertRepo.Delete(ctx, userID, titleID)
	if err != nil {
		return false, fmt.Errorf("failed to delete alert: %w", err)
	}
	if existed {
		s.logger.WithFields(logrus.Fields{"user_id": userID, "title_id": titleID}).Info("Alert removed")
	}
	return existed, nil
}
