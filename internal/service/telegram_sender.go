package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"

	"biliticket/invitehub/internal/config"
)

// ChatSender broadcasts a plain-text message to operator chats.
type ChatSender interface {
	Broadcast(ctx context.Context, text string) error
}

type telegramSender struct {
	api     *tgbotapi.Bot
	chatIDs []int64
}

func NewTelegramSender(cfg config.TelegramConfig) (ChatSender, error) {
	if len(cfg.ChatIDs) == 0 {
		return nil, fmt.Errorf("telegram chat_ids are required")
	}
	api, err := tgbotapi.NewBot(cfg.BotToken, nil)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &telegramSender{api: api, chatIDs: cfg.ChatIDs}, nil
}

func (t *telegramSender) Broadcast(ctx context.Context, text string) error {
	timeout := 10 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	var errs []error
	for _, chatID := range t.chatIDs {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		_, err := t.api.SendMessage(chatID, text, &tgbotapi.SendMessageOpts{
			RequestOpts: &tgbotapi.RequestOpts{Timeout: timeout},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}
