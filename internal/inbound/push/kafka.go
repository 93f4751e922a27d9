package push

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// messageReader is the part of *kafka.Reader the source uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaSource reads envelopes from a Kafka topic as part of a consumer group.
// The record key stands in for a missing sender and the record time for a
// missing sent time.
type KafkaSource struct {
	reader     messageReader
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewKafkaSource creates a source for topic.
func NewKafkaSource(brokers []string, topic, groupID string, logger *zap.Logger) *KafkaSource {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return newKafkaSource(r, logger)
}

func newKafkaSource(r messageReader, logger *zap.Logger) *KafkaSource {
	return &KafkaSource{reader: r, retryDelay: time.Second, logger: logger}
}

func (s *KafkaSource) Run(ctx context.Context, h Handler) error {
	for {
		m, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("kafka read error", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.retryDelay):
			}
			continue
		}
		p, err := DecodeEnvelope(m.Value)
		if err != nil {
			s.logger.Warn("dropping push message", zap.String("driver", "kafka"), zap.Int64("offset", m.Offset), zap.Error(err))
			continue
		}
		if p.From == "" {
			p.From = string(m.Key)
		}
		if p.SentTime.IsZero() {
			p.SentTime = m.Time
		}
		h(p)
	}
}

func (s *KafkaSource) Close() error {
	return s.reader.Close()
}
