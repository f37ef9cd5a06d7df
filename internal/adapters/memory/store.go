// Package memory is a process-local implementation of ports.Store. Row locks
// are held until the owning transaction ends and writes are journaled so a
// failed transaction leaves no trace. Reads outside a row lock may observe
// uncommitted writes.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/johnson-oragui/multi-tenant-license-service/internal/domain"
	"github.com/johnson-oragui/multi-tenant-license-service/internal/ports"
)

type Store struct {
	mu    sync.Mutex
	locks map[uuid.UUID]chan struct{}

	brands      map[uuid.UUID]domain.Brand
	products    map[uuid.UUID]domain.Product
	customers   map[uuid.UUID]domain.Customer
	licenseKeys map[uuid.UUID]domain.LicenseKey
	licenses    map[uuid.UUID]domain.License
	activations map[uuid.UUID]domain.Activation
	audit       []domain.AuditEntry
	outbox      []*outboxRow
}

var (
	_ ports.Store       = (*Store)(nil)
	_ ports.OutboxRelay = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{
		locks:       make(map[uuid.UUID]chan struct{}),
		brands:      make(map[uuid.UUID]domain.Brand),
		products:    make(map[uuid.UUID]domain.Product),
		customers:   make(map[uuid.UUID]domain.Customer),
		licenseKeys: make(map[uuid.UUID]domain.LicenseKey),
		licenses:    make(map[uuid.UUID]domain.License),
		activations: make(map[uuid.UUID]domain.Activation),
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// WithinTx runs fn as one unit of work. Row locks taken by fn are released
// when it returns; a non-nil error or a panic replays the undo journal first.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := &tx{store: s, held: make(map[uuid.UUID]struct{})}
	defer func() {
		if rec := recover(); rec != nil {
			t.rollback()
			t.release()
			panic(rec)
		}
	}()

	if err := fn(ctx, t); err != nil {
		t.rollback()
		t.release()
		return err
	}
	if err := ctx.Err(); err != nil {
		t.rollback()
		t.release()
		return err
	}
	t.commit()
	t.release()
	return nil
}

type tx struct {
	store *Store
	held  map[uuid.UUID]struct{}
	undo  []func()
	// enqueued rows stay invisible to the relay until commit.
	enqueued []*outboxRow
}

func (t *tx) Brands() ports.BrandRepository           { return brandRepo{t} }
func (t *tx) Products() ports.ProductRepository       { return productRepo{t} }
func (t *tx) Customers() ports.CustomerRepository     { return customerRepo{t} }
func (t *tx) LicenseKeys() ports.LicenseKeyRepository { return licenseKeyRepo{t} }
func (t *tx) Licenses() ports.LicenseRepository       { return licenseRepo{t} }
func (t *tx) Activations() ports.ActivationRepository { return activationRepo{t} }
func (t *tx) AuditLog() ports.AuditLogRepository      { return auditRepo{t} }
func (t *tx) Outbox() ports.OutboxWriter              { return outboxWriter{t} }

// journal records the inverse of a write. Callers hold store.mu.
func (t *tx) journal(fn func()) {
	t.undo = append(t.undo, fn)
}

func (t *tx) rollback() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *tx) commit() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, row := range t.enqueued {
		row.committed = true
	}
	t.enqueued = nil
	t.undo = nil
}

func (t *tx) release() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for id := range t.held {
		<-t.store.locks[id]
	}
	t.held = nil
}

// lock blocks until the row lock for id is free and keeps it until the
// transaction ends.
func (t *tx) lock(ctx context.Context, id uuid.UUID) error {
	if _, ok := t.held[id]; ok {
		return nil
	}
	t.store.mu.Lock()
	ch, ok := t.store.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		t.store.locks[id] = ch
	}
	t.store.mu.Unlock()

	select {
	case ch <- struct{}{}:
		t.held[id] = struct{}{}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// await waits for another transaction's lock on id to be released without
// keeping it.
func (t *tx) await(ctx context.Context, id uuid.UUID) error {
	if _, ok := t.held[id]; ok {
		return nil
	}
	t.store.mu.Lock()
	ch, ok := t.store.locks[id]
	t.store.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case ch <- struct{}{}:
		<-ch
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// lockFresh takes the lock of a row this transaction just inserted. Callers
// hold store.mu; the lock cannot be contended.
func (t *tx) lockFresh(id uuid.UUID) {
	ch := make(chan struct{}, 1)
	ch <- struct{}{}
	t.store.locks[id] = ch
	t.held[id] = struct{}{}
}
