// Package notify delivers expiration notices to a user's friend contacts.
package notify

import (
	"context"
	"log/slog"

	"github.com/Proton-105/mintwatch/pkg/logger"
)

// Sender delivers one message to one contact.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, to, body string) error

func (f SenderFunc) Send(ctx context.Context, to, body string) error {
	return f(ctx, to, body)
}

// LogSender only logs messages. It is the development provider.
type LogSender struct {
	log *slog.Logger
}

func NewLogSender(log *slog.Logger) *LogSender {
	if log == nil {
		log = slog.Default()
	}
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, to, body string) error {
	s.log.InfoContext(ctx, "sms delivered to log",
		slog.String("to", logger.MaskPhone(to)),
		slog.Int("body_length", len(body)),
	)
	return ctx.Err()
}
