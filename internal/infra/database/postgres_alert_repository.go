package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"release_alert_bot/internal/domain/alert"

	"github.com/lib/pq"
)

// Custom errors
var ErrAlertNotFound = fmt.Errorf("tracked alert not found")
var ErrDuplicateAlert = fmt.Errorf("alert for this user and title already exists")

const pqUniqueViolation = "23505"

const alertColumns = `user_id, title_id, title_kind, title_name,
               known_release_date, notified_for_date, last_checked_at,
               cleanup_flagged, created_at, updated_at`

type PostgresAlertRepository struct {
	db *sql.DB
}

func NewPostgresAlertRepository(db *sql.DB) *PostgresAlertRepository {
	return &PostgresAlertRepository{db: db}
}

// Create inserts a new alert. KnownReleaseDate and NotifiedForDate start
// unknown; LastCheckedAt starts at the epoch so a fresh alert is first in
// line for the next sweep.
func (r *PostgresAlertRepository) Create(ctx context.Context, a *alert.TrackedAlert) error {
	query := `INSERT INTO tracked_alerts (user_id, title_id, title_kind, title_name)
               VALUES ($1, $2, $3, $4)
               RETURNING last_checked_at, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query, a.UserID, a.TitleID, a.Kind, a.TitleName).
		Scan(&a.LastCheckedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrDuplicateAlert
		}
		return fmt.Errorf("error creating tracked alert: %w", err)
	}
	return nil
}

// ListAll returns every alert, least-recently-checked first, so that alerts
// starved by an interrupted sweep are reconciled before fresher ones.
func (r *PostgresAlertRepository) ListAll(ctx context.Context) ([]*alert.TrackedAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM tracked_alerts ORDER BY last_checked_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing tracked alerts: %w", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

func (r *PostgresAlertRepository) ListForUser(ctx context.Context, userID int64) ([]*alert.TrackedAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM tracked_alerts WHERE user_id = $1 ORDER BY title_name`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing alerts for user %d: %w", userID, err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// UpdateReleaseDate overwrites the known date and check time unconditionally.
// Detection of whether the date actually changed happens in the reconciler,
// not here.
func (r *PostgresAlertRepository) UpdateReleaseDate(ctx context.Context, userID int64, titleID string, newDate, checkedAt time.Time) error {
	query := `UPDATE tracked_alerts
               SET known_release_date = $3, last_checked_at = $4, updated_at = NOW()
               WHERE user_id = $1 AND title_id = $2`

	res, err := r.db.ExecContext(ctx, query, userID, titleID, newDate, checkedAt)
	if err != nil {
		return fmt.Errorf("error updating release date: %w", err)
	}
	return requireRow(res)
}

// MarkChecked records a successful check that left the dates untouched, so
// the alert keeps its place in the least-recently-checked sweep order.
func (r *PostgresAlertRepository) MarkChecked(ctx context.Context, userID int64, titleID string, checkedAt time.Time) error {
	query := `UPDATE tracked_alerts
               SET last_checked_at = $3, updated_at = NOW()
               WHERE user_id = $1 AND title_id = $2`

	res, err := r.db.ExecContext(ctx, query, userID, titleID, checkedAt)
	if err != nil {
		return fmt.Errorf("error recording check time: %w", err)
	}
	return requireRow(res)
}

func (r *PostgresAlertRepository) MarkNotified(ctx context.Context, userID int64, titleID string, date time.Time) error {
	query := `UPDATE tracked_alerts
               SET notified_for_date = $3, updated_at = NOW()
               WHERE user_id = $1 AND title_id = $2`

	res, err := r.db.ExecContext(ctx, query, userID, titleID, date)
	if err != nil {
		return fmt.Errorf("error marking alert notified: %w", err)
	}
	return requireRow(res)
}

func (r *PostgresAlertRepository) MarkCleanup(ctx context.Context, userID int64, titleID string) error {
	query := `UPDATE tracked_alerts
               SET cleanup_flagged = TRUE, updated_at = NOW()
               WHERE user_id = $1 AND title_id = $2`

	res, err := r.db.ExecContext(ctx, query, userID, titleID)
	if err != nil {
		return fmt.Errorf("error flagging alert for cleanup: %w", err)
	}
	return requireRow(res)
}

func (r *PostgresAlertRepository) Delete(ctx context.Context, userID int64, titleID string) (bool, error) {
	query := `DELETE FROM tracked_alerts WHERE user_id = $1 AND title_id = $2`

	res, err := r.db.ExecContext(ctx, query, userID, titleID)
	if err != nil {
		return false, fmt.Errorf("error deleting tracked alert: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading delete result: %w", err)
	}
	return affected > 0, nil
}

// PurgeEligible removes flagged alerts plus released-and-notified movie
// alerts in a single statement, keeping the sweep idempotent.
func (r *PostgresAlertRepository) PurgeEligible(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM tracked_alerts
               WHERE cleanup_flagged
                  OR (title_kind = $1
                      AND known_release_date IS NOT NULL
                      AND known_release_date < $2
                      AND notified_for_date = known_release_date)`

	res, err := r.db.ExecContext(ctx, query, alert.KindMovie, before)
	if err != nil {
		return 0, fmt.Errorf("error purging eligible alerts: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error reading purge result: %w", err)
	}
	return affected, nil
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading update result: %w", err)
	}
	if affected == 0 {
		return ErrAlertNotFound
	}
	return nil
}

func scanAlerts(rows *sql.Rows) ([]*alert.TrackedAlert, error) {
	alerts := make([]*alert.TrackedAlert, 0)
	for rows.Next() {
		a := &alert.TrackedAlert{}
		if err := rows.Scan(&a.UserID, &a.TitleID, &a.Kind, &a.TitleName,
			&a.KnownReleaseDate, &a.NotifiedForDate, &a.LastCheckedAt,
			&a.CleanupFlagged, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning tracked alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tracked alerts: %w", err)
	}
	return alerts, nil
}
