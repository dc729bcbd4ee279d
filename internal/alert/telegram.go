// Package alert tells operators about expiry runs that finished with failures.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/mintwatch/internal/domain"
	"github.com/Proton-105/mintwatch/internal/expiry"
	"github.com/Proton-105/mintwatch/internal/i18n"
)

const messageKey = "alert.run_failures"

// messenger is the part of telebot.Bot used for alerts.
type messenger interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// TelegramAlerter posts a short run summary to an operator chat. Alerts closer together
// than minInterval are dropped so a persistent outage does not flood the chat.
type TelegramAlerter struct {
	bot         messenger
	chat        telebot.Recipient
	translator  i18n.Translator
	minInterval time.Duration
	log         *slog.Logger

	mu       sync.Mutex
	lastSent time.Time
	now      func() time.Time
}

var _ expiry.Alerter = (*TelegramAlerter)(nil)

// NewTelegramBot creates an offline bot client; it never polls for updates.
func NewTelegramBot(token string) (*telebot.Bot, error) {
	bot, err := telebot.NewBot(telebot.Settings{
		Token:   token,
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize telebot: %w", err)
	}
	return bot, nil
}

func NewTelegramAlerter(bot messenger, chatID int64, translator i18n.Translator, minInterval time.Duration, log *slog.Logger) *TelegramAlerter {
	if log == nil {
		log = slog.Default()
	}

	return &TelegramAlerter{
		bot:         bot,
		chat:        telebot.ChatID(chatID),
		translator:  translator,
		minInterval: minInterval,
		log:         log,
		now:         time.Now,
	}
}

func (a *TelegramAlerter) RunFailed(ctx context.Context, scope expiry.Scope, summary domain.Summary) error {
	if a == nil || a.bot == nil || summary.Failed == 0 {
		return nil
	}

	if !a.allow() {
		a.log.Debug("failure alert throttled", slog.Int("failed", summary.Failed))
		return nil
	}

	text := a.render(scope, summary)
	if _, err := a.bot.Send(a.chat, text, telebot.NoPreview); err != nil {
		return fmt.Errorf("send telegram alert: %w", err)
	}

	a.log.InfoContext(ctx, "failure alert sent", slog.Int("failed", summary.Failed))
	return nil
}

func (a *TelegramAlerter) allow() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if !a.lastSent.IsZero() && now.Sub(a.lastSent) < a.minInterval {
		return false
	}
	a.lastSent = now
	return true
}

func (a *TelegramAlerter) render(scope expiry.Scope, summary domain.Summary) string {
	vars := map[string]string{
		"failed":   strconv.Itoa(summary.Failed),
		"checked":  strconv.Itoa(summary.Checked),
		"expired":  strconv.Itoa(summary.Expired),
		"notified": strconv.Itoa(summary.Notified),
		"updated":  strconv.Itoa(summary.Updated),
	}

	var text string
	if a.translator != nil {
		text = a.translator.Render(messageKey, vars)
	} else {
		text = fmt.Sprintf("Expiry run finished with %d failure(s)", summary.Failed)
	}

	target := "all users"
	if !scope.All {
		target = "user " + scope.UserID
	}
	text += "\nscope: " + target
	if scope.Trigger != "" {
		text += " (" + scope.Trigger + ")"
	}
	if summary.Partial {
		text += "\nrun stopped at its deadline"
	}

	for i, e := range summary.Errors {
		if i == 3 {
			text += fmt.Sprintf("\n… and %d more", len(summary.Errors)-i)
			break
		}
		text += fmt.Sprintf("\n%s %s", e.Code, e.Message)
	}

	return text
}
