package telegram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type mockAPI struct {
	failures int
	sent     []tgbotapi.MessageConfig
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m.failures > 0 {
		m.failures--
		return tgbotapi.Message{}, errors.New("bad gateway")
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.sent = append(m.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func testSender(api telegramAPI) *Sender {
	return &Sender{api: api, log: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestSenderSend(t *testing.T) {
	api := &mockAPI{}
	s := testSender(api)

	if err := s.Send(context.Background(), 42, "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(api.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(api.sent))
	}
	if api.sent[0].ChatID != 42 || api.sent[0].Text != "hello" {
		t.Errorf("sent = %+v", api.sent[0])
	}
	if !api.sent[0].DisableWebPagePreview {
		t.Error("link previews should be disabled")
	}
}

func TestSenderRetriesTransientFailure(t *testing.T) {
	api := &mockAPI{failures: 2}
	s := testSender(api)

	if err := s.Send(context.Background(), 42, "hello"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(api.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(api.sent))
	}
}

func TestSenderGivesUpAfterRetries(t *testing.T) {
	api := &mockAPI{failures: 10}
	s := testSender(api)

	if err := s.Send(context.Background(), 42, "hello"); err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if len(api.sent) != 0 {
		t.Fatalf("sent = %d, want 0", len(api.sent))
	}
}

func TestLogSenderNeverFails(t *testing.T) {
	s := NewLogSender(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := s.Send(context.Background(), 42, "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
