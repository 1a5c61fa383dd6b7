package alert

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// TitleKind distinguishes the two release-date policies: a movie has a single
// release date, a series has a recurring next-episode air date.
type TitleKind string

const (
	KindMovie  TitleKind = "MOVIE"
	KindSeries TitleKind = "SERIES"
)

// ParseTitleKind converts a stored or callback-carried kind string.
func ParseTitleKind(s string) (TitleKind, error) {
	switch TitleKind(strings.ToUpper(s)) {
	case KindMovie:
		return KindMovie, nil
	case KindSeries:
		return KindSeries, nil
	default:
		return "", fmt.Errorf("unknown title kind: %q", s)
	}
}

// TrackedAlert is one user's subscription to one title's release date.
// Corresponds to the 'tracked_alerts' table.
type TrackedAlert struct {
	UserID    int64     // Telegram chat/user ID owning the alert
	TitleID   string    // metadata-source identifier, immutable
	Kind      TitleKind
	TitleName string // display name captured at subscription time, never re-fetched

	// KnownReleaseDate is the most recently observed release (movie) or
	// next-episode air date (series). Invalid means "not yet known", which is
	// distinct from the source reporting no upcoming date.
	KnownReleaseDate sql.NullTime

	// NotifiedForDate is the date a notification was last delivered for. It is
	// only ever set to an observed value of KnownReleaseDate, and suppresses
	// duplicate delivery for the same date.
	NotifiedForDate sql.NullTime

	// LastCheckedAt is the time of the most recent successful reconciliation.
	LastCheckedAt time.Time

	// CleanupFlagged marks the alert for removal by the cleanup sweep, e.g.
	// after the metadata source reports the title no longer exists.
	CleanupFlagged bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
