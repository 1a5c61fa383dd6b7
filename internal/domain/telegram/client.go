package telegram

import "gopkg.in/telebot.v3"

// Client is the delivery side of the notifier: it hands a formatted message to
// the chat transport and reports success or failure back to the caller. The
// reconciler relies on that report to decide whether a change counts as
// delivered.
type Client interface {
	SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error
}
