package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/johnson-oragui/multi-tenant-license-service/internal/ports"
)

// OutboxWorker relays committed audit events to the broker. Delivery is
// at-least-once; consumers dedupe on event_id.
type OutboxWorker struct {
	logger     *zap.Logger
	relay      ports.OutboxRelay
	publisher  ports.EventPublisher
	interval   time.Duration
	batchSize  int
	claimTTL   time.Duration
	maxRetries int
	observer   BatchObserver
	nowFn      func() time.Time
}

// BatchObserver receives per-pass relay counts.
type BatchObserver interface {
	OutboxBatch(published, failed, deadLettered int)
}

func NewOutboxWorker(
	logger *zap.Logger,
	relay ports.OutboxRelay,
	publisher ports.EventPublisher,
	interval time.Duration,
	batchSize int,
	claimTTL time.Duration,
	maxRetries int,
) *OutboxWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if claimTTL <= 0 {
		claimTTL = 30 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &OutboxWorker{
		logger: logger.With(
			zap.String("module", "events.outbox_worker"),
			zap.String("layer", "adapter"),
		),
		relay:      relay,
		publisher:  publisher,
		interval:   interval,
		batchSize:  batchSize,
		claimTTL:   claimTTL,
		maxRetries: maxRetries,
		nowFn:      func() time.Time { return time.Now().UTC() },
	}
}

// WithObserver attaches a metrics sink.
func (w *OutboxWorker) WithObserver(observer BatchObserver) *OutboxWorker {
	w.observer = observer
	return w
}

// Run drains the outbox every interval until ctx is cancelled.
func (w *OutboxWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.ProcessOnce(ctx); err != nil {
			w.logger.Error("outbox iteration failed",
				zap.String("operation", "outbox_process_once"),
				zap.String("outcome", "failure"),
				zap.Error(err),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// BatchStats summarises one relay pass.
type BatchStats struct {
	Claimed      int
	Published    int
	Failed       int
	DeadLettered int
}

// ProcessOnce claims one batch and publishes it.
func (w *OutboxWorker) ProcessOnce(ctx context.Context) (BatchStats, error) {
	var stats BatchStats
	claimToken := uuid.NewString()
	records, err := w.relay.ClaimUnpublished(ctx, w.batchSize, claimToken, w.nowFn().Add(w.claimTTL))
	if err != nil {
		return stats, err
	}
	stats.Claimed = len(records)

	for _, rec := range records {
		now := w.nowFn()
		if rec.RetryCount >= w.maxRetries {
			stats.DeadLettered++
			w.mark(ctx, "mark_dead_lettered", rec, w.relay.MarkDeadLettered(ctx, rec.OutboxID, claimToken, "retry threshold reached before publish", now))
			continue
		}

		if err := w.publisher.Publish(ctx, rec.EventType, rec.PartitionKey, rec.Payload); err != nil {
			stats.Failed++
			retries := rec.RetryCount + 1
			fields := []zap.Field{
				zap.String("operation", "publish_event"),
				zap.String("outcome", "failure"),
				zap.String("outbox_id", rec.OutboxID.String()),
				zap.String("event_type", rec.EventType),
				zap.Int("payload_bytes", len(rec.Payload)),
				zap.Int("retry_count", retries),
				zap.Error(err),
			}
			if retries >= w.maxRetries {
				stats.DeadLettered++
				w.logger.Error("outbox message moved to dlq", fields...)
				w.mark(ctx, "mark_dead_lettered", rec, w.relay.MarkDeadLettered(ctx, rec.OutboxID, claimToken, err.Error(), now))
				continue
			}
			w.logger.Warn("outbox publish failed; retry scheduled", fields...)
			w.mark(ctx, "mark_failed", rec, w.relay.MarkFailed(ctx, rec.OutboxID, claimToken, err.Error(), now))
			continue
		}
		stats.Published++
		w.mark(ctx, "mark_published", rec, w.relay.MarkPublished(ctx, rec.OutboxID, claimToken, now))
	}

	if w.observer != nil {
		w.observer.OutboxBatch(stats.Published, stats.Failed, stats.DeadLettered)
	}
	if stats.Claimed > 0 {
		w.logger.Info("outbox batch processed",
			zap.String("operation", "outbox_process_once"),
			zap.String("outcome", "success"),
			zap.Int("batch_size", stats.Claimed),
			zap.Int("published_count", stats.Published),
			zap.Int("failed_count", stats.Failed),
			zap.Int("dead_lettered_count", stats.DeadLettered),
		)
	}
	return stats, nil
}

// mark logs bookkeeping failures. The claim expires on its own, so the record
// is retried on a later pass.
func (w *OutboxWorker) mark(_ context.Context, operation string, rec ports.OutboxRecord, err error) {
	if err == nil {
		return
	}
	w.logger.Warn("outbox bookkeeping failed",
		zap.String("operation", operation),
		zap.String("outcome", "failure"),
		zap.String("outbox_id", rec.OutboxID.String()),
		zap.Error(err),
	)
}
