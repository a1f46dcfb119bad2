package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sdrshn-nmbr/tierledger/internal/loyalty"
)

var (
	ErrQueueFull = errors.New("notification queue full")
	ErrClosed    = errors.New("notification dispatcher closed")
	ErrDelivery  = errors.New("notification delivery failed")
)

// Provider delivers one notification over a concrete channel.
type Provider interface {
	Send(ctx context.Context, notification loyalty.Notification) error
}

// LogProvider writes notifications to a logger. It is the default when no
// gateway is configured.
type LogProvider struct {
	Logger *slog.Logger
}

func (p LogProvider) Send(ctx context.Context, n loyalty.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "sms", "id", n.ID, "to", n.Recipient, "message", n.Message)
	return nil
}
