package alert

import (
	"context"
	"time"
)

// Repository defines the operations for persisting and retrieving TrackedAlert
// records. The store exclusively owns the records; callers never keep a copy
// as source of truth. Implementations must serialize writes per
// (userID, titleID) key; a transactional backing store satisfies this.
type Repository interface {
	// Create inserts a new alert with no known date and LastCheckedAt at the
	// epoch. Returns database.ErrDuplicateAlert if the (UserID, TitleID) pair
	// is already tracked.
	Create(ctx context.Context, a *TrackedAlert) error

	// ListAll returns a snapshot of every tracked alert for a sweep,
	// least-recently-checked first.
	ListAll(ctx context.Context) ([]*TrackedAlert, error)

	ListForUser(ctx context.Context, userID int64) ([]*TrackedAlert, error)

	// UpdateReleaseDate overwrites KnownReleaseDate and LastCheckedAt
	// unconditionally. Idempotent; carries no notification logic.
	UpdateReleaseDate(ctx context.Context, userID int64, titleID string, newDate, checkedAt time.Time) error

	// MarkChecked bumps LastCheckedAt without touching the dates, for
	// reconciliations that succeeded but produced nothing to record.
	MarkChecked(ctx context.Context, userID int64, titleID string, checkedAt time.Time) error

	// MarkNotified records the date a notification was delivered for. Must be
	// called only after confirmed delivery.
	MarkNotified(ctx context.Context, userID int64, titleID string, date time.Time) error

	// MarkCleanup flags the alert for removal by the next cleanup sweep.
	MarkCleanup(ctx context.Context, userID int64, titleID string) error

	// Delete removes the alert and reports whether a record existed.
	Delete(ctx context.Context, userID int64, titleID string) (bool, error)

	// PurgeEligible removes, in one idempotent pass, every alert flagged for
	// cleanup plus every movie alert whose known date is before the given time
	// and was already notified. Series alerts are never purged by date since
	// they recur. Returns the number of alerts removed.
	PurgeEligible(ctx context.Context, before time.Time) (int64, error)
}
