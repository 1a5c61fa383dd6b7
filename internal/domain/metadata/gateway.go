package metadata

import (
	"context"
	"errors"
	"strings"
	"time"

	"release_alert_bot/internal/domain/alert"
)

// ErrGatewayUnavailable wraps transient metadata-source failures: timeouts,
// server errors and an open circuit breaker. Reconciliation treats it as a
// normal skip-this-cycle branch, never as fatal to a sweep.
var ErrGatewayUnavailable = errors.New("metadata gateway unavailable")

// ErrTitleNotFound is returned by Lookup when the source no longer lists the
// title at all.
var ErrTitleNotFound = errors.New("title not listed by the metadata source")

// Title ids are qualified with the kind because a movie and a series may
// share the same numeric id at the source. The qualified form is the store
// key; adapters strip it back off when talking to the source.
const (
	movieIDPrefix  = "movie-"
	seriesIDPrefix = "tv-"
)

// QualifyTitleID builds the canonical title id from the source's own id.
func QualifyTitleID(kind alert.TitleKind, sourceID string) string {
	if kind == alert.KindSeries {
		return seriesIDPrefix + sourceID
	}
	return movieIDPrefix + sourceID
}

// TitleKindOf reports the kind encoded in a qualified title id, defaulting
// to movie for unqualified ids.
func TitleKindOf(titleID string) alert.TitleKind {
	if strings.HasPrefix(titleID, seriesIDPrefix) {
		return alert.KindSeries
	}
	return alert.KindMovie
}

// SourceTitleID strips the kind qualifier, returning the source's own id.
func SourceTitleID(titleID string) string {
	if rest, ok := strings.CutPrefix(titleID, movieIDPrefix); ok {
		return rest
	}
	if rest, ok := strings.CutPrefix(titleID, seriesIDPrefix); ok {
		return rest
	}
	return titleID
}

// Candidate is a search result offered to the user prior to subscription,
// in the gateway's own relevance order.
type Candidate struct {
	TitleID string
	Kind    alert.TitleKind
	Name    string
	Year    int // release year for disambiguation, 0 when unknown
}

// DateInfo is the gateway's current answer for one title.
type DateInfo struct {
	// Date is the movie release date or the next-unaired-episode air date.
	// Nil means the source lists the title but has no upcoming date scheduled.
	Date *time.Time

	// Exists reports whether the source still lists the title at all.
	// False is a terminal removal signal, not an error.
	Exists bool
}

// Gateway abstracts the external metadata source. All calls are synchronous
// and the caller enforces a bounded timeout through ctx.
type Gateway interface {
	Search(ctx context.Context, query string) ([]Candidate, error)
	LookupDate(ctx context.Context, titleID string, kind alert.TitleKind) (DateInfo, error)

	// Lookup fetches current candidate details for a known title id, for
	// rebuilding a selection whose offered search result is no longer held.
	// Returns ErrTitleNotFound when the source no longer lists the title.
	Lookup(ctx context.Context, titleID string, kind alert.TitleKind) (Candidate, error)
}
