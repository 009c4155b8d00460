// Package sink hands harvested batches to downstream consumers.
package sink

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/factharvest/internal/model"
)

// Sink receives each run's batch after the corpus is persisted
type Sink interface {
	Accept(ctx context.Context, batch model.Batch) error
	Close() error
}

// New builds the sink selected by cfg.Backend
func New(cfg model.SinkConfig, logger *zap.Logger) (Sink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Backend {
	case "none", "":
		return NopSink{}, nil
	case "log":
		return NewLogSink(logger), nil
	case "kafka":
		return NewKafkaSink(cfg.Kafka, logger), nil
	default:
		return nil, fmt.Errorf("unknown sink backend %q", cfg.Backend)
	}
}

// NopSink discards every batch
type NopSink struct{}

func (NopSink) Accept(context.Context, model.Batch) error { return nil }
func (NopSink) Close() error                              { return nil }

// LogSink logs a one-line summary per batch
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Accept(ctx context.Context, batch model.Batch) error {
	s.logger.Info("batch harvested",
		zap.Int("records", len(batch)),
		zap.Int("degraded", batch.Degraded()),
	)
	return nil
}

func (s *LogSink) Close() error { return nil }
