package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/crash-risk-service/internal/config"
	"github.com/couchcryptid/crash-risk-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher announces freshly computed prediction sets on a Kafka topic.
// It implements pipeline.Publisher.
type Publisher struct {
	writer messageWriter
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		// Sets can be large; compress rather than split.
		Compression: kafkago.Snappy,
	}
	return &Publisher{writer: w, logger: logger}
}

// Publish writes one message keyed by date, so every computation of a date
// lands on the same partition.
func (p *Publisher) Publish(ctx context.Context, set domain.ComputedSet) error {
	msg, err := serializeToMessage(set)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish prediction set %s: %w", set.Date, err)
	}
	p.logger.Debug("prediction set published", "date", set.Date, "run_id", set.RunID, "predictions", set.Count)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a ComputedSet into a Kafka message.
func serializeToMessage(set domain.ComputedSet) (kafkago.Message, error) {
	data, err := json.Marshal(set)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize prediction set: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(set.Date),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(set.RunID)},
			{Key: "computed_at", Value: []byte(set.ComputedAt.Format(time.RFC3339))},
			{Key: "synthetic", Value: []byte(strconv.FormatBool(set.Synthetic))},
		},
	}, nil
}
