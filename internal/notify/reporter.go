// Package notify sends operational alerts to a Telegram admin chat.
package notify

import (
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Reporter sends short failure messages to a Telegram admin chat.
// It is nil-safe: if adminID is 0 or the receiver is nil, Notify is a no-op.
type Reporter struct {
	bot     sender
	adminID int64
	log     *slog.Logger
}

func New(bot sender, adminID int64, log *slog.Logger) *Reporter {
	if log == nil {
		log = slog.Default()
	}
	return &Reporter{bot: bot, adminID: adminID, log: log}
}

// FromToken connects to the Bot API. An empty token yields a nil reporter.
func FromToken(token string, adminID int64, log *slog.Logger) (*Reporter, error) {
	if token == "" || adminID == 0 {
		return nil, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return New(bot, adminID, log), nil
}

func (r *Reporter) Notify(msg string) {
	if r == nil || r.adminID == 0 || r.bot == nil {
		return
	}
	if _, err := r.bot.Send(tgbotapi.NewMessage(r.adminID, msg)); err != nil {
		r.log.Error("failed to send error notification", slog.Any("err", err))
	}
}
