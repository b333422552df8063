package publisher

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/smallbiznis/sitecraft/internal/outbox/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes outbox rows to the topic recorded on each row.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

func (k *KafkaPublisher) Publish(ctx context.Context, msgs []domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]kafka.Message, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, toKafkaMessage(msg))
	}
	return k.writer.WriteMessages(ctx, out...)
}

func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}

func toKafkaMessage(msg domain.Message) kafka.Message {
	headers := []kafka.Header{{Key: "outbox_id", Value: []byte(msg.ID.String())}}
	for key, value := range msg.HeaderMap() {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
	}
	return kafka.Message{
		Topic:   msg.Topic,
		Key:     []byte(msg.MessageKey),
		Value:   []byte(msg.Payload),
		Time:    msg.CreatedAt,
		Headers: headers,
	}
}
