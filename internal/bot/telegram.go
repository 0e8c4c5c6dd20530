package bot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram connects a Handler to the Telegram Bot API using long polling.
type Telegram struct {
	api         *tgbotapi.BotAPI
	pollTimeout int
	logger      *slog.Logger
}

// NewTelegram authenticates with token.
func NewTelegram(token string, pollTimeout int, logger *slog.Logger) (*Telegram, error) {
	if err := tgbotapi.SetLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug)); err != nil {
		return nil, fmt.Errorf("set telegram logger: %w", err)
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram: %w", err)
	}
	if pollTimeout <= 0 {
		pollTimeout = 60
	}

	logger.Info("telegram bot authorized", "username", api.Self.UserName)
	return &Telegram{api: api, pollTimeout: pollTimeout, logger: logger}, nil
}

// SendText sends a plain text message.
func (t *Telegram) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	_, err := t.api.Send(msg)
	return err
}

// SendFile uploads path as a document named filename.
func (t *Telegram) SendFile(ctx context.Context, chatID int64, path, filename string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileReader{Name: filename, Reader: f})
	doc.Caption = filename
	if _, err := t.api.Send(doc); err != nil {
		return fmt.Errorf("upload %s: %w", filename, err)
	}
	return nil
}

// Run polls for updates and dispatches each text message to h on its own
// goroutine until ctx is cancelled. It waits for in-flight messages before
// returning.
func (t *Telegram) Run(ctx context.Context, h *Handler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = t.pollTimeout
	updates := t.api.GetUpdatesChan(u)

	var wg sync.WaitGroup
	defer wg.Wait()

	t.logger.Info("telegram bot polling", "timeout", t.pollTimeout)
	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			t.logger.Info("telegram bot stopped")
			return nil

		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}

			msg := Message{ChatID: update.Message.Chat.ID, Text: update.Message.Text}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						t.logger.Error("panic handling message", "chat_id", msg.ChatID, "panic", r)
					}
				}()
				h.Handle(ctx, msg)
			}()
		}
	}
}
