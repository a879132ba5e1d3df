package notify

import (
	"context"
	"log/slog"
)

// Message is one notification.
type Message struct {
	// Recipients are chat ids for chat-addressed channels. Channels with a
	// fixed audience ignore them.
	Recipients []int64

	Subject string
	Text    string
}

// Channel is a delivery transport.
type Channel interface {
	// Name identifies the channel in logs and metrics.
	Name() string

	// Send delivers msg. Implementations should respect ctx deadlines.
	Send(ctx context.Context, msg Message) error
}

// LogChannel writes each message to the structured log. Message text is not
// logged because it may carry credentials.
type LogChannel struct {
	logger *slog.Logger
}

// NewLogChannel creates a log channel.
func NewLogChannel() *LogChannel {
	return &LogChannel{logger: slog.Default().With("component", "notify.log")}
}

func (l *LogChannel) Name() string { return "log" }

func (l *LogChannel) Send(ctx context.Context, msg Message) error {
	l.logger.InfoContext(ctx, "notification",
		"subject", msg.Subject,
		"recipients", msg.Recipients,
	)
	return nil
}
