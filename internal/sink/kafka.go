package sink

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ppiankov/factharvest/internal/model"
)

// messageWriter is the part of *kafka.Writer the sink uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes one JSON message per record
type KafkaSink struct {
	writer       messageWriter
	topic        string
	writeTimeout time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// NewKafkaSink creates a synchronous producer for cfg.Topic
func NewKafkaSink(cfg model.KafkaSinkConfig, logger *zap.Logger) *KafkaSink {
	return newKafkaSink(newKafkaWriter(cfg), cfg, logger)
}

// newKafkaWriter partitions by message key, so every message for one
// identity goes to the same partition
func newKafkaWriter(cfg model.KafkaSinkConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
}

func newKafkaSink(w messageWriter, cfg model.KafkaSinkConfig, logger *zap.Logger) *KafkaSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaSink{
		writer:       w,
		topic:        cfg.Topic,
		writeTimeout: cfg.WriteTimeout,
		logger:       logger,
		now:          time.Now,
	}
}

// Accept writes the whole batch in one WriteMessages call
func (s *KafkaSink) Accept(ctx context.Context, batch model.Batch) error {
	if len(batch) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(batch))
	now := s.now()
	for _, record := range batch {
		value, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal record %s: %w", record.SourceURL, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   MessageKey(record.Key()),
			Value: value,
			Time:  now,
		})
	}

	if s.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.writeTimeout)
		defer cancel()
	}

	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d messages to %s: %w", len(msgs), s.topic, err)
	}

	s.logger.Info("batch published",
		zap.String("topic", s.topic),
		zap.Int("messages", len(msgs)),
	)
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// MessageKey hashes the identity key. With the key-hashing balancer of
// newKafkaWriter, equal records land on the same partition.
func MessageKey(key model.IdentityKey) []byte {
	h := sha256.New()
	h.Write([]byte(key.Statement))
	h.Write([]byte{0})
	h.Write([]byte(key.SourceURL))
	sum := h.Sum(nil)
	out := make([]byte, hex.EncodedLen(len(sum)))
	hex.Encode(out, sum)
	return out
}
