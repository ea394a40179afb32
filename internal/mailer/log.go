package mailer

import (
	"context"
	"log/slog"
)

// Log is a development transport: it records each message and delivers
// nothing.
type Log struct{}

func NewLog() *Log { return &Log{} }

func (*Log) Name() string { return "log" }

func (*Log) Send(_ context.Context, m Message) error {
	slog.Info("mail: not delivered (log transport)",
		"to", m.To,
		"subject", m.Subject,
		"bytes", len(m.HTML),
	)
	return nil
}
