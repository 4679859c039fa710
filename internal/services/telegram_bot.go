package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// pollTimeout is the getUpdates long-poll window in seconds. The HTTP client
// must outlive it, or idle polls are cut off client-side.
const (
	pollTimeout   = 30
	clientTimeout = 2 * pollTimeout * time.Second
)

type TelegramService struct {
	api    *tgbotapi.BotAPI
	logger *slog.Logger
}

func NewTelegramService(token string, logger *slog.Logger) (*TelegramService, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: clientTimeout})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	logger.Info("Telegram bot authorized", "username", api.Self.UserName)
	return &TelegramService{api: api, logger: logger}, nil
}

// Notify sends a plain-text message. Chats that blocked the bot or do not
// exist fail permanently so the dispatcher does not retry them.
func (t *TelegramService) Notify(ctx context.Context, chatID int64, text string) error {
	if chatID == 0 {
		return backoff.Permanent(errors.New("telegram: empty chat id"))
	}
	err := t.Send(ctx, tgbotapi.NewMessage(chatID, text))
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusForbidden || apiErr.Code == http.StatusBadRequest) {
		return backoff.Permanent(err)
	}
	return err
}

// Send delivers any outgoing Telegram object and gives up when ctx ends.
func (t *TelegramService) Send(ctx context.Context, c tgbotapi.Chattable) error {
	done := make(chan error, 1)
	go func() {
		_, err := t.api.Send(c)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *TelegramService) AnswerCallback(ctx context.Context, callbackID, text string) error {
	done := make(chan error, 1)
	go func() {
		_, err := t.api.Request(tgbotapi.NewCallback(callbackID, text))
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *TelegramService) SetWebhook(url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("telegram webhook: %w", err)
	}
	if _, err := t.api.Request(wh); err != nil {
		return fmt.Errorf("telegram setWebhook: %w", err)
	}
	t.logger.Info("Telegram webhook registered", "url", url)
	return nil
}

// Poll long-polls updates and hands each to handle until ctx is done. It is
// used when no webhook URL is configured.
func (t *TelegramService) Poll(ctx context.Context, handle func(context.Context, tgbotapi.Update) error) {
	if _, err := t.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		t.logger.Warn("Telegram deleteWebhook failed", "error", err)
	}
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeout
	updates := t.api.GetUpdatesChan(cfg)
	defer t.api.StopReceivingUpdates()

	t.logger.Info("Telegram long polling started")
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			if err := handle(ctx, up); err != nil {
				t.logger.Error("Telegram update failed", "update_id", up.UpdateID, "error", err)
			}
		}
	}
}
