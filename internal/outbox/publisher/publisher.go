package publisher

import (
	"github.com/smallbiznis/sitecraft/internal/config"
	"github.com/smallbiznis/sitecraft/internal/outbox/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// New picks the Kafka publisher when brokers are configured.
func New(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) domain.Publisher {
	if !cfg.Kafka.Enabled() {
		log.Info("kafka brokers not configured, outbox messages will be logged")
		return NewLogPublisher(log)
	}
	pub := NewKafkaPublisher(cfg.Kafka.Brokers)
	lc.Append(fx.StopHook(pub.Close))
	return pub
}
