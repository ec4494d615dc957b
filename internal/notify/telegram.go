// Package notify delivers queued notifications to people.
package notify

import (
	"context"
	"errors"
	"fmt"

	"marketplace/internal/config"
	"marketplace/internal/domain"
	"marketplace/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// ErrNoChat marks a recipient without a linked chat. Retrying will not help.
var ErrNoChat = errors.New("recipient has no chat id")

// TelegramNotifier sends notification text through a Telegram bot.
type TelegramNotifier struct {
	bot domain.TelegramSender
}

func NewTelegramNotifier(bot domain.TelegramSender) *TelegramNotifier {
	return &TelegramNotifier{bot: bot}
}

// NewBot connects to the Bot API with the configured token.
func NewBot(cfg config.TelegramConfig) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	bot.Debug = cfg.Debug
	return bot, nil
}

func (n *TelegramNotifier) Deliver(ctx context.Context, task models.NotificationTask) error {
	if task.ChatID == 0 {
		return ErrNoChat
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(task.ChatID, task.Text)
	msg.DisableWebPagePreview = true
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send to %d: %w", task.ChatID, err)
	}
	return nil
}

// LogNotifier only logs; used when Telegram delivery is disabled.
type LogNotifier struct {
	logger *zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Deliver(_ context.Context, task models.NotificationTask) error {
	n.logger.Info().
		Int64("task_id", task.ID).
		Str("kind", task.Kind).
		Str("recipient_id", task.RecipientID).
		Str("text", task.Text).
		Msg("Notification (telegram disabled)")
	return nil
}
