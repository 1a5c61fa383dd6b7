package app

import (
	"fmt"
	"time"

	"release_alert_bot/internal/domain/alert"
)

const displayDateLayout = "Monday, 2 January 2006"

// FormatReleaseMessage builds the HTML notification text for a detected date
// change. Content only; the transport is the adapter's concern.
func FormatReleaseMessage(titleName string, kind alert.TitleKind, date time.Time) string {
	when := date.Format(displayDateLayout)
	if kind == alert.KindSeries {
		return fmt.Sprintf("📺 New episode scheduled!\n\n<b>%s</b> — the next episode airs on <b>%s</b>.", titleName, when)
	}
	return fmt.Sprintf("🎬 Release date update!\n\n<b>%s</b> is scheduled for release on <b>%s</b>.", titleName, when)
}

// FormatAlertList builds the /alerts reply from a user's tracked alerts.
func FormatAlertList(alerts []*alert.TrackedAlert) string {
	if len(alerts) == 0 {
		return "No alerts enabled.\n\nType /help for info on enabling alerts."
	}

	out := "<b>Alerts enabled for:</b>\n"
	for _, a := range alerts {
		when := "date TBA"
		if a.KnownReleaseDate.Valid {
			when = a.KnownReleaseDate.Time.Format("2 Jan 2006")
		}
		label := "movie"
		if a.Kind == alert.KindSeries {
			label = "series"
		}
		out += fmt.Sprintf("\n• <b>%s</b> (%s) — %s", a.TitleName, label, when)
	}
	return out
}
