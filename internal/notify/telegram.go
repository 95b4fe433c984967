package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// telegramInterval spaces messages to one chat below the bot API's
// per-chat limit.
const telegramInterval = 2 * time.Second

type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSender delivers notifications through a Telegram bot.
type TelegramSender struct {
	bot      botAPI
	chatID   int64
	interval time.Duration

	mu       sync.Mutex
	lastSend time.Time
}

// NewTelegramSender authenticates the bot token and returns a sender bound
// to chatID.
func NewTelegramSender(token string, chatID int64) (*TelegramSender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	bot.Debug = false
	return newTelegramSender(bot, chatID), nil
}

func newTelegramSender(bot botAPI, chatID int64) *TelegramSender {
	return &TelegramSender{bot: bot, chatID: chatID, interval: telegramInterval}
}

// Send posts a Markdown message with the title in bold. Calls are
// serialised and spaced by the send interval.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if wait := t.interval - time.Since(t.lastSend); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	text := fmt.Sprintf("*%s*\n%s",
		tgbotapi.EscapeText(tgbotapi.ModeMarkdown, title),
		tgbotapi.EscapeText(tgbotapi.ModeMarkdown, message))
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true

	_, err := t.bot.Send(msg)
	t.lastSend = time.Now()
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	return nil
}

func (t *TelegramSender) Name() string {
	return "telegram"
}
