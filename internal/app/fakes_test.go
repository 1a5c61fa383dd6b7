package app

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"release_alert_bot/internal/domain/alert"
	"release_alert_bot/internal/domain/metadata"
	idb "release_alert_bot/internal/infra/database"

	"gopkg.in/telebot.v3"
)

// fakeAlertRepo is an in-memory alert.Repository with the same contract as
// the postgres implementation, including its error values.
type fakeAlertRepo struct {
	mu     sync.Mutex
	alerts map[string]*alert.TrackedAlert
}

func newFakeAlertRepo() *fakeAlertRepo {
	return &fakeAlertRepo{alerts: make(map[string]*alert.TrackedAlert)}
}

func alertKey(userID int64, titleID string) string {
	return fmt.Sprintf("%d|%s", userID, titleID)
}

func (r *fakeAlertRepo) Create(_ context.Context, a *alert.TrackedAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := alertKey(a.UserID, a.TitleID)
	if _, exists := r.alerts[key]; exists {
		return idb.ErrDuplicateAlert
	}
	a.LastCheckedAt = time.Unix(0, 0).UTC()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	stored := *a
	r.alerts[key] = &stored
	return nil
}

func (r *fakeAlertRepo) ListAll(_ context.Context) ([]*alert.TrackedAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*alert.TrackedAlert, 0, len(r.alerts))
	for _, a := range r.alerts {
		copied := *a
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakeAlertRepo) ListForUser(_ context.Context, userID int64) ([]*alert.TrackedAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*alert.TrackedAlert, 0)
	for _, a := range r.alerts {
		if a.UserID == userID {
			copied := *a
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeAlertRepo) UpdateReleaseDate(_ context.Context, userID int64, titleID string, newDate, checkedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[alertKey(userID, titleID)]
	if !ok {
		return idb.ErrAlertNotFound
	}
	a.KnownReleaseDate = sql.NullTime{Time: newDate, Valid: true}
	a.LastCheckedAt = checkedAt
	a.UpdatedAt = time.Now()
	return nil
}

func (r *fakeAlertRepo) MarkChecked(_ context.Context, userID int64, titleID string, checkedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[alertKey(userID, titleID)]
	if !ok {
		return idb.ErrAlertNotFound
	}
	a.LastCheckedAt = checkedAt
	a.UpdatedAt = time.Now()
	return nil
}

func (r *fakeAlertRepo) MarkNotified(_ context.Context, userID int64, titleID string, date time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[alertKey(userID, titleID)]
	if !ok {
		return idb.ErrAlertNotFound
	}
	a.NotifiedForDate = sql.NullTime{Time: date, Valid: true}
	a.UpdatedAt = time.Now()
	return nil
}

func (r *fakeAlertRepo) MarkCleanup(_ context.Context, userID int64, titleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[alertKey(userID, titleID)]
	if !ok {
		return idb.ErrAlertNotFound
	}
	a.CleanupFlagged = true
	a.UpdatedAt = time.Now()
	return nil
}

func (r *fakeAlertRepo) Delete(_ context.Context, userID int64, titleID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := alertKey(userID, titleID)
	if _, ok := r.alerts[key]; !ok {
		return false, nil
	}
	delete(r.alerts, key)
	return true, nil
}

func (r *fakeAlertRepo) PurgeEligible(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for key, a := range r.alerts {
		eligible := a.CleanupFlagged ||
			(a.Kind == alert.KindMovie &&
				a.KnownReleaseDate.Valid &&
				a.KnownReleaseDate.Time.Before(before) &&
				a.NotifiedForDate.Valid &&
				a.NotifiedForDate.Time.Equal(a.KnownReleaseDate.Time))
		if eligible {
			delete(r.alerts, key)
			removed++
		}
	}
	return removed, nil
}

// get returns a copy of the stored alert for assertions.
func (r *fakeAlertRepo) get(userID int64, titleID string) (alert.TrackedAlert, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[alertKey(userID, titleID)]
	if !ok {
		return alert.TrackedAlert{}, false
	}
	return *a, true
}

// fakeGateway answers lookups from a scripted map keyed by titleID.
type fakeGateway struct {
	mu         sync.Mutex
	candidates []metadata.Candidate
	searchErr  error
	dates      map[string]metadata.DateInfo
	details    map[string]metadata.Candidate
	errs       map[string]error
	lookups    int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		dates:   make(map[string]metadata.DateInfo),
		details: make(map[string]metadata.Candidate),
		errs:    make(map[string]error),
	}
}

func (g *fakeGateway) Search(_ context.Context, _ string) ([]metadata.Candidate, error) {
	if g.searchErr != nil {
		return nil, g.searchErr
	}
	return g.candidates, nil
}

func (g *fakeGateway) LookupDate(_ context.Context, titleID string, _ alert.TitleKind) (metadata.DateInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lookups++
	if err := g.errs[titleID]; err != nil {
		return metadata.DateInfo{}, err
	}
	return g.dates[titleID], nil
}

func (g *fakeGateway) Lookup(_ context.Context, titleID string, _ alert.TitleKind) (metadata.Candidate, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.errs[titleID]; err != nil {
		return metadata.Candidate{}, err
	}
	cand, ok := g.details[titleID]
	if !ok {
		return metadata.Candidate{}, metadata.ErrTitleNotFound
	}
	return cand, nil
}

func (g *fakeGateway) setDetails(cand metadata.Candidate) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.details[cand.TitleID] = cand
}

func (g *fakeGateway) setDate(titleID string, date time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d := date
	g.dates[titleID] = metadata.DateInfo{Date: &d, Exists: true}
}

func (g *fakeGateway) setNoDate(titleID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dates[titleID] = metadata.DateInfo{Exists: true}
}

func (g *fakeGateway) setRemoved(titleID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dates[titleID] = metadata.DateInfo{Exists: false}
}

type sentMessage struct {
	chatID int64
	text   string
}

// fakeNotifier records deliveries and optionally fails them.
type fakeNotifier struct {
	mu       sync.Mutex
	sent     []sentMessage
	failNext bool
}

func (n *fakeNotifier) SendMessage(chatID int64, text string, _ *telebot.SendOptions) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failNext {
		return fmt.Errorf("delivery failed")
	}
	n.sent = append(n.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func (n *fakeNotifier) sentTo(chatID int64) []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]sentMessage, 0)
	for _, m := range n.sent {
		if m.chatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}
