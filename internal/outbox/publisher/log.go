package publisher

import (
	"context"

	"github.com/smallbiznis/sitecraft/internal/outbox/domain"
	"go.uber.org/zap"
)

// LogPublisher stands in for a broker when none is configured. Rows are
// logged and marked published.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log.Named("outbox.log_publisher")}
}

func (p *LogPublisher) Publish(ctx context.Context, msgs []domain.Message) error {
	for _, msg := range msgs {
		p.log.Info("outbox message",
			zap.String("outbox_id", msg.ID.String()),
			zap.String("topic", msg.Topic),
			zap.String("key", msg.MessageKey),
			zap.ByteString("payload", msg.Payload),
		)
	}
	return nil
}

func (p *LogPublisher) Close() error { return nil }
