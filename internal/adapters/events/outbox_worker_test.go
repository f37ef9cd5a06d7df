package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnson-oragui/multi-tenant-license-service/internal/adapters/memory"
	"github.com/johnson-oragui/multi-tenant-license-service/internal/ports"
)

type fakePublisher struct {
	mu        sync.Mutex
	failTypes map[string]bool
	sent      []string
}

func (p *fakePublisher) Publish(_ context.Context, eventType, partitionKey string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failTypes[eventType] {
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, eventType+"/"+partitionKey)
	return nil
}

func enqueue(t *testing.T, store *memory.Store, eventType, partitionKey string) {
	t.Helper()
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		return tx.Outbox().Enqueue(ctx, ports.OutboxEvent{
			EventID:      uuid.New(),
			EventType:    eventType,
			PartitionKey: partitionKey,
			Payload:      []byte(`{}`),
			OccurredAt:   time.Now().UTC(),
		})
	})
	require.NoError(t, err)
}

func TestOutboxWorkerPublishesRetriesAndDeadLetters(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	publisher := &fakePublisher{failTypes: map[string]bool{"license.audit.license_revoked": true}}
	enqueue(t, store, "license.audit.license_activated", "lic-1")
	enqueue(t, store, "license.audit.license_revoked", "lic-2")

	worker := NewOutboxWorker(nil, store, publisher, time.Second, 10, time.Minute, 2)
	ctx := context.Background()

	stats, err := worker.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, BatchStats{Claimed: 2, Published: 1, Failed: 1}, stats)
	assert.Equal(t, 1, store.PendingOutbox())
	assert.Equal(t, []string{"license.audit.license_activated/lic-1"}, publisher.sent)

	stats, err = worker.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, BatchStats{Claimed: 1, Failed: 1, DeadLettered: 1}, stats)
	assert.Equal(t, 0, store.PendingOutbox())

	stats, err = worker.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, BatchStats{}, stats)
}

func TestOutboxWorkerRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	publisher := &fakePublisher{}
	enqueue(t, store, "license.audit.license_provisioned", "lic-1")

	worker := NewOutboxWorker(nil, store, publisher, 10*time.Millisecond, 10, time.Minute, 3)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	require.Eventually(t, func() bool { return store.PendingOutbox() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestKafkaPublisherTopicRouting(t *testing.T) {
	t.Parallel()

	_, err := NewKafkaPublisher([]string{" ", ""}, "", nil)
	require.Error(t, err)

	p, err := NewKafkaPublisher([]string{"localhost:9092"}, "license.audit", map[string]string{
		"license.audit.license_revoked": "license.revocations",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	assert.Equal(t, "license.revocations", p.topicFor("license.audit.license_revoked"))
	assert.Equal(t, "license.audit", p.topicFor("license.audit.license_activated"))

	bare, err := NewKafkaPublisher([]string{"localhost:9092"}, "", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bare.Close() })
	assert.Equal(t, "license.audit.license_activated", bare.topicFor("license.audit.license_activated"))
}
