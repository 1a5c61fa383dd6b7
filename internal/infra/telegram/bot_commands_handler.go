// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"context"
	"fmt"

	"release_alert_bot/internal/app"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// RegisterBotCommands wires the plain chat commands: /start, /help, /alerts.
func RegisterBotCommands(
	ctx context.Context,
	b *telebot.Bot,
	subs app.SubscriptionService,
	baseLogger *logrus.Entry,
) {
	commandsLogger := baseLogger.WithField("handler_group", "commands")

	helpText := func() string {
		return fmt.Sprintf("Search for a title by typing @%s \"movie name\", pick a result "+
			"from the list and enable an alert to receive a notification when the movie "+
			"or the next series episode gets a release date.\n\n"+
			"Type /alerts to view your active alerts.", b.Me.Username)
	}

	b.Handle("/start", func(c telebot.Context) error {
		commandsLogger.WithFields(logrus.Fields{
			"command":   "/start",
			"sender_id": c.Sender().ID,
		}).Info("Processing command")
		return c.Send(helpText())
	})

	b.Handle("/help", func(c telebot.Context) error {
		commandsLogger.WithFields(logrus.Fields{
			"command":   "/help",
			"sender_id": c.Sender().ID,
		}).Info("Processing command")
		return c.Send(helpText())
	})

	b.Handle("/alerts", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := commandsLogger.WithFields(logrus.Fields{
			"command":   "/alerts",
			"sender_id": senderID,
		})
		logCtx.Info("Processing command")

		alerts, err := subs.ListForUser(ctx, senderID)
		if err != nil {
			logCtx.WithError(err).Error("Failed to list alerts")
			return c.Send("Something went wrong while fetching your alerts, please try again later.")
		}
		return c.Send(app.FormatAlertList(alerts), &telebot.SendOptions{ParseMode: telebot.ModeHTML})
	})

	b.Handle(telebot.OnText, func(c telebot.Context) error {
		if c.Sender().IsBot {
			return nil
		}
		return c.Send("Unrecognized command, type /help or /alerts")
	})
}
