package telegram

import (
	"fmt"

	"gopkg.in/telebot.v3"
)

// Notifier posts short run summaries to an operations chat. It is optional
// infrastructure: construct it only when a bot token is configured, and
// treat send failures as log-worthy, not fatal.
type Notifier struct {
	bot    *telebot.Bot
	chatID int64
}

// NewNotifier creates a send-only bot client. The poller is never started;
// the bot is used purely as an outbound transport.
func NewNotifier(token string, chatID int64) (*Notifier, error) {
	bot, err := telebot.NewBot(telebot.Settings{Token: token})
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return &Notifier{bot: bot, chatID: chatID}, nil
}

// NotifyRunSummary posts a one-line summary of a completed run.
func (n *Notifier) NotifyRunSummary(text string) error {
	_, err := n.bot.Send(&telebot.Chat{ID: n.chatID}, text)
	return err
}
