package events

import (
	"context"

	"go.uber.org/zap"
)

// LoggingPublisher writes events to the log instead of a broker. It is the
// fallback when no brokers are configured.
type LoggingPublisher struct {
	logger *zap.Logger
}

func NewLoggingPublisher(logger *zap.Logger) *LoggingPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingPublisher{logger: logger.With(zap.String("module", "events.logging_publisher"))}
}

func (p *LoggingPublisher) Publish(_ context.Context, eventType, partitionKey string, payload []byte) error {
	p.logger.Info("published event",
		zap.String("event_type", eventType),
		zap.String("partition_key", partitionKey),
		zap.ByteString("payload", payload),
	)
	return nil
}
