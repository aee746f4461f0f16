// Package telegram delivers notification messages to Telegram chats.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sethvargo/go-retry"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Sender sends messages through the Telegram Bot API. Transient send
// failures are retried a couple of times with exponential backoff before
// the error is surfaced to the dispatcher's own retry loop.
type Sender struct {
	api telegramAPI
	log *slog.Logger
}

// New creates a Sender authenticated with the given bot token.
func New(token string, log *slog.Logger) (*Sender, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return &Sender{api: api, log: log}, nil
}

// Send delivers text to the chat, treating every API error as retryable.
func (s *Sender) Send(ctx context.Context, chatID int64, text string) error {
	backoff := retry.WithMaxRetries(2, retry.NewExponential(500*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.DisableWebPagePreview = true
		if _, err := s.api.Send(msg); err != nil {
			s.log.Debug("telegram send attempt failed", "chat_id", chatID, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}

// LogSender writes messages to the log instead of Telegram. Used when no
// bot token is configured, so the pipeline can run end to end locally.
type LogSender struct {
	log *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: log}
}

// Send logs the message that would have been delivered.
func (s *LogSender) Send(_ context.Context, chatID int64, text string) error {
	s.log.Info("notification (dry run)", "chat_id", chatID, "text", text)
	return nil
}
