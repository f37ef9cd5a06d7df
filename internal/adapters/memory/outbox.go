package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/johnson-oragui/multi-tenant-license-service/internal/ports"
)

type outboxRow struct {
	record    ports.OutboxRecord
	committed bool
}

type outboxWriter struct{ t *tx }

func (w outboxWriter) Enqueue(_ context.Context, event ports.OutboxEvent) error {
	s := w.t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	row := &outboxRow{record: ports.OutboxRecord{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      append([]byte(nil), event.Payload...),
		CreatedAt:    event.OccurredAt,
	}}
	s.outbox = append(s.outbox, row)
	w.t.enqueued = append(w.t.enqueued, row)
	w.t.journal(func() {
		for i := len(s.outbox) - 1; i >= 0; i-- {
			if s.outbox[i] == row {
				s.outbox = append(s.outbox[:i], s.outbox[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (s *Store) ClaimUnpublished(_ context.Context, limit int, claimToken string, claimUntil time.Time) ([]ports.OutboxRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	if claimToken == "" {
		return nil, fmt.Errorf("claim token is required")
	}
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ports.OutboxRecord, 0, limit)
	for _, row := range s.outbox {
		if len(out) == limit {
			break
		}
		if !row.committed {
			continue
		}
		rec := &row.record
		if rec.PublishedAt != nil || rec.DeadLetteredAt != nil {
			continue
		}
		if rec.ClaimUntil != nil && !rec.ClaimUntil.Before(now) {
			continue
		}
		token, until := claimToken, claimUntil
		rec.ClaimToken = &token
		rec.ClaimUntil = &until
		out = append(out, *rec)
	}
	return out, nil
}

func (s *Store) MarkPublished(_ context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error {
	return s.updateClaimed(outboxID, claimToken, func(rec *ports.OutboxRecord) {
		rec.PublishedAt = &at
	})
}

func (s *Store) MarkFailed(_ context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	return s.updateClaimed(outboxID, claimToken, func(rec *ports.OutboxRecord) {
		rec.RetryCount++
		rec.LastError = &errMsg
		rec.LastErrorAt = &at
	})
}

func (s *Store) MarkDeadLettered(_ context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	return s.updateClaimed(outboxID, claimToken, func(rec *ports.OutboxRecord) {
		rec.RetryCount++
		rec.LastError = &errMsg
		rec.LastErrorAt = &at
		rec.DeadLetteredAt = &at
	})
}

// updateClaimed applies mutate to the row claimed under claimToken. Published
// rows are dropped; dead-lettered rows stay for inspection.
func (s *Store) updateClaimed(outboxID uuid.UUID, claimToken string, mutate func(rec *ports.OutboxRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, row := range s.outbox {
		rec := &row.record
		if rec.OutboxID != outboxID || rec.ClaimToken == nil || *rec.ClaimToken != claimToken {
			continue
		}
		mutate(rec)
		rec.ClaimToken = nil
		rec.ClaimUntil = nil
		if rec.PublishedAt != nil {
			s.outbox = append(s.outbox[:i], s.outbox[i+1:]...)
		}
		return nil
	}
	return nil
}

// PendingOutbox reports how many committed events still await publication.
func (s *Store) PendingOutbox() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, row := range s.outbox {
		if row.committed && row.record.PublishedAt == nil && row.record.DeadLetteredAt == nil {
			n++
		}
	}
	return n
}
