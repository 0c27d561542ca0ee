package handlers

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier posts cycle summaries and failures to the alert chat.
type Notifier struct {
	bot    Sender
	chatID int64
}

func NewNotifier(bot Sender, alertChatID string) (*Notifier, error) {
	chatID, err := strconv.ParseInt(alertChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse alert chat id: %w", err)
	}
	return &Notifier{bot: bot, chatID: chatID}, nil
}

func (n *Notifier) Notify(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := n.bot.Send(tgbotapi.NewMessage(n.chatID, text)); err != nil {
		return fmt.Errorf("send alert: %w", err)
	}
	return nil
}
