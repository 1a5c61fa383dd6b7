// internal/infra/telegram/search_handlers.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"release_alert_bot/internal/app"
	"release_alert_bot/internal/domain/alert"
	"release_alert_bot/internal/domain/metadata"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const (
	uniqueEnableAlert  = "enable_alert"
	uniqueDisableAlert = "disable_alert"
	uniqueDismiss      = "dismiss_result"

	candidateTTL     = 15 * time.Minute
	inlineCacheTime  = 4 // seconds, mirrors how fast new searches replace results
	maxInlineResults = 10
)

// candidateCache stashes recently offered search candidates so an
// enable-alert callback can recover the title name, which does not fit into
// the 64-byte callback payload.
type candidateCache struct {
	mu      sync.Mutex
	entries map[string]candidateEntry
}

type candidateEntry struct {
	cand    metadata.Candidate
	offered time.Time
}

func newCandidateCache() *candidateCache {
	return &candidateCache{entries: make(map[string]candidateEntry)}
}

func (c *candidateCache) put(cand metadata.Candidate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for id, e := range c.entries {
		if now.Sub(e.offered) > candidateTTL {
			delete(c.entries, id)
		}
	}
	c.entries[cand.TitleID] = candidateEntry{cand: cand, offered: now}
}

func (c *candidateCache) get(titleID string) (metadata.Candidate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[titleID]
	if !ok || time.Since(e.offered) > candidateTTL {
		return metadata.Candidate{}, false
	}
	return e.cand, true
}

// RegisterInlineHandlers wires the inline search flow: typing
// "@bot <title>" answers with metadata candidates, each carrying
// enable/disable/dismiss buttons that route to the subscription service.
func RegisterInlineHandlers(ctx context.Context, b *telebot.Bot, subs app.SubscriptionService, baseLogger *logrus.Entry) {
	cache := newCandidateCache()

	b.Handle(telebot.OnQuery, func(c telebot.Context) error {
		query := strings.TrimSpace(c.Query().Text)
		logCtx := baseLogger.WithFields(logrus.Fields{
			"handler":   "inline_query",
			"sender_id": c.Sender().ID,
		})
		if query == "" {
			return c.Answer(&telebot.QueryResponse{Results: telebot.Results{}, CacheTime: inlineCacheTime})
		}

		candidates, err := subs.Search(ctx, query)
		if err != nil {
			logCtx.WithError(err).Warn("Inline search failed")
			return c.Answer(&telebot.QueryResponse{Results: telebot.Results{}, CacheTime: inlineCacheTime})
		}
		if len(candidates) > maxInlineResults {
			candidates = candidates[:maxInlineResults]
		}

		tracked := make(map[string]bool)
		if existing, err := subs.ListForUser(ctx, c.Sender().ID); err != nil {
			logCtx.WithError(err).Warn("Could not load existing alerts; offering enable buttons only")
		} else {
			for _, a := range existing {
				tracked[a.TitleID] = true
			}
		}

		results := make(telebot.Results, 0, len(candidates))
		for i, cand := range candidates {
			cache.put(cand)

			markup := &telebot.ReplyMarkup{}
			var toggle telebot.Btn
			if tracked[cand.TitleID] {
				toggle = markup.Data("Disable alert", uniqueDisableAlert, cand.TitleID)
			} else {
				toggle = markup.Data("Enable alert", uniqueEnableAlert, cand.TitleID, string(cand.Kind))
			}
			dismiss := markup.Data("Dismiss", uniqueDismiss)
			markup.Inline(markup.Row(toggle, dismiss))

			r := &telebot.ArticleResult{
				Title:       displayTitle(cand),
				Text:        candidateMessage(cand),
				Description: kindLabel(cand.Kind),
			}
			r.SetResultID(fmt.Sprintf("%d-%s", i, cand.TitleID))
			r.ReplyMarkup = markup
			results = append(results, r)
		}

		return c.Answer(&telebot.QueryResponse{
			Results:    results,
			CacheTime:  inlineCacheTime,
			IsPersonal: true, // buttons depend on the asking user's alerts
		})
	})

	b.Handle(&telebot.Btn{Unique: uniqueEnableAlert}, func(c telebot.Context) error {
		logCtx := baseLogger.WithFields(logrus.Fields{
			"handler":   "enable_alert",
			"sender_id": c.Sender().ID,
		})
		args := c.Args()
		if len(args) != 2 {
			logCtx.WithField("data", c.Data()).Warn("Malformed enable callback")
			return c.Respond(&telebot.CallbackResponse{Text: "Could not process this result."})
		}
		titleID := args[0]
		kind, err := alert.ParseTitleKind(args[1])
		if err != nil {
			logCtx.WithField("data", c.Data()).Warn("Malformed enable callback")
			return c.Respond(&telebot.CallbackResponse{Text: "Could not process this result."})
		}

		cand, ok := cache.get(titleID)
		if !ok {
			// Bot restarted or the result went stale; rebuild the candidate
			// from the gateway so the button keeps working.
			cand, err = subs.Resolve(ctx, titleID, kind)
			if err != nil {
				logCtx.WithError(err).WithField("title_id", titleID).Warn("Could not rebuild expired result")
				return c.Respond(&telebot.CallbackResponse{Text: "This result expired, please search again."})
			}
			cache.put(cand)
		}

		_, err = subs.Subscribe(ctx, c.Sender().ID, cand)
		if errors.Is(err, app.ErrAlreadyTracking) {
			return c.Respond(&telebot.CallbackResponse{Text: "You are already tracking this title."})
		}
		if err != nil {
			logCtx.WithError(err).WithField("title_id", titleID).Error("Subscribe failed")
			return c.Respond(&telebot.CallbackResponse{Text: "Something went wrong, please try again."})
		}

		if err := c.Edit(titlePageMarkup(cand.TitleID, cand.Kind, "Alert enabled")); err != nil {
			logCtx.WithError(err).Debug("Could not update result buttons")
		}
		return c.Respond(&telebot.CallbackResponse{Text: "Alert enabled! You will be notified about the release date."})
	})

	b.Handle(&telebot.Btn{Unique: uniqueDisableAlert}, func(c telebot.Context) error {
		logCtx := baseLogger.WithFields(logrus.Fields{
			"handler":   "disable_alert",
			"sender_id": c.Sender().ID,
		})
		args := c.Args()
		if len(args) != 1 {
			logCtx.WithField("data", c.Data()).Warn("Malformed disable callback")
			return c.Respond(&telebot.CallbackResponse{Text: "Could not process this result."})
		}
		titleID := args[0]

		existed, err := subs.Unsubscribe(ctx, c.Sender().ID, titleID)
		if err != nil {
			logCtx.WithError(err).WithField("title_id", titleID).Error("Unsubscribe failed")
			return c.Respond(&telebot.CallbackResponse{Text: "Something went wrong, please try again."})
		}
		if !existed {
			return c.Respond(&telebot.CallbackResponse{Text: "No alert was enabled for this title."})
		}

		if err := c.Edit(titlePageMarkup(titleID, metadata.TitleKindOf(titleID), "Alert disabled")); err != nil {
			logCtx.WithError(err).Debug("Could not update result buttons")
		}
		return c.Respond(&telebot.CallbackResponse{Text: "Alert disabled."})
	})

	b.Handle(&telebot.Btn{Unique: uniqueDismiss}, func(c telebot.Context) error {
		if err := c.Edit(&telebot.ReplyMarkup{}); err != nil {
			baseLogger.WithError(err).Debug("Could not clear result buttons")
		}
		return c.Respond()
	})
}

// titlePageMarkup replaces the action buttons with a single link to the
// title's page on the metadata source, the way a decided result stays useful.
func titlePageMarkup(titleID string, kind alert.TitleKind, label string) *telebot.ReplyMarkup {
	section := "movie"
	if kind == alert.KindSeries {
		section = "tv"
	}
	markup := &telebot.ReplyMarkup{}
	link := markup.URL(label+" (title page)", fmt.Sprintf("https://www.themoviedb.org/%s/%s", section, metadata.SourceTitleID(titleID)))
	markup.Inline(markup.Row(link))
	return markup
}

func displayTitle(cand metadata.Candidate) string {
	if cand.Year > 0 {
		return fmt.Sprintf("%s (%d)", cand.Name, cand.Year)
	}
	return cand.Name
}

func candidateMessage(cand metadata.Candidate) string {
	return fmt.Sprintf("%s | %s", displayTitle(cand), kindLabel(cand.Kind))
}

func kindLabel(kind alert.TitleKind) string {
	if kind == alert.KindSeries {
		return "series"
	}
	return "movie"
}
