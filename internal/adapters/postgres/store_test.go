package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/johnson-oragui/multi-tenant-license-service/internal/domain"
	"github.com/johnson-oragui/multi-tenant-license-service/internal/ports"
)

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	db, err := Connect(ctx, DriverSQLite, dsn, 0, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, RunMigrations(ctx, db, zap.NewNop()))
	store := NewStore(db, 2, zap.NewNop())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

type seed struct {
	brand    domain.Brand
	product  domain.Product
	customer domain.Customer
	key      domain.LicenseKey
	license  domain.License
}

func seedLicense(t *testing.T, s *Store) seed {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	limit := 2
	out := seed{
		brand:    domain.Brand{ID: uuid.New(), Name: "acme", APIKeyPrefix: "abcdefabcdef", APIKeyHash: "hash", CreatedAt: now, UpdatedAt: now},
		customer: domain.Customer{ID: uuid.New(), Email: "user@example.com", CreatedAt: now, UpdatedAt: now},
	}
	out.product = domain.Product{ID: uuid.New(), BrandID: out.brand.ID, Code: "rankmath", Name: "RankMath", CreatedAt: now, UpdatedAt: now}
	out.key = domain.LicenseKey{ID: uuid.New(), Key: "LIC-AAAA-BBBB-CCCC-DDDD", BrandID: out.brand.ID, CustomerID: out.customer.ID, CreatedAt: now, UpdatedAt: now}
	out.license = domain.License{
		ID: uuid.New(), LicenseKeyID: out.key.ID, ProductID: out.product.ID,
		Status: domain.LicenseStatusValid, ExpiresAt: now.Add(24 * time.Hour), SeatLimit: &limit,
		CreatedAt: now, UpdatedAt: now,
	}

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		if err := tx.Brands().Create(ctx, out.brand); err != nil {
			return err
		}
		if err := tx.Products().Create(ctx, out.product); err != nil {
			return err
		}
		if _, err := tx.Customers().Ensure(ctx, out.customer); err != nil {
			return err
		}
		if _, err := tx.LicenseKeys().Ensure(ctx, out.key); err != nil {
			return err
		}
		return tx.Licenses().Create(ctx, out.license)
	})
	require.NoError(t, err)
	return out
}

func TestStoreRoundTripsLicense(t *testing.T) {
	t.Parallel()

	s := newSQLiteStore(t)
	fx := seedLicense(t, s)

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		brand, err := tx.Brands().GetByAPIKeyPrefix(ctx, "abcdefabcdef")
		require.NoError(t, err)
		assert.Equal(t, fx.brand.ID, brand.ID)

		l, err := tx.Licenses().LockByKeyAndProductCode(ctx, fx.key.Key, "rankmath")
		require.NoError(t, err)
		assert.Equal(t, fx.license.ID, l.ID)
		assert.Equal(t, fx.key.ID, l.LicenseKeyID)
		require.NotNil(t, l.SeatLimit)
		assert.Equal(t, 2, *l.SeatLimit)
		assert.True(t, fx.license.ExpiresAt.Equal(l.ExpiresAt))

		_, err = tx.Licenses().LockByKeyAndProductCode(ctx, fx.key.Key, "other")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		listed, err := tx.Licenses().ListByLicenseKey(ctx, fx.key.ID)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.Equal(t, "rankmath", listed[0].Product.Code)
		return nil
	})
	require.NoError(t, err)
}

func TestStoreRollsBackOnError(t *testing.T) {
	t.Parallel()

	s := newSQLiteStore(t)
	fx := seedLicense(t, s)
	boom := errors.New("boom")

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		require.NoError(t, tx.Licenses().UpdateStatus(ctx, fx.license.ID, domain.LicenseStatusCancelled, time.Now().UTC()))
		require.NoError(t, tx.AuditLog().Append(ctx, domain.AuditEntry{
			ID: uuid.New(), ActorType: domain.ActorTypeSystem, Action: "x", TargetType: "license",
			TargetID: fx.license.ID.String(), CreatedAt: time.Now().UTC(),
		}))
		require.NoError(t, tx.Outbox().Enqueue(ctx, ports.OutboxEvent{EventID: uuid.New(), EventType: "x", OccurredAt: time.Now().UTC()}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.WithinTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		l, err := tx.Licenses().GetByID(ctx, fx.license.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.LicenseStatusValid, l.Status)
		entries, err := tx.AuditLog().ListByTargets(ctx, []string{fx.license.ID.String()})
		require.NoError(t, err)
		assert.Empty(t, entries)
		return nil
	})
	require.NoError(t, err)

	pending, err := s.PendingOutbox(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestStoreTranslatesConstraintErrors(t *testing.T) {
	t.Parallel()

	s := newSQLiteStore(t)
	fx := seedLicense(t, s)
	now := time.Now().UTC()

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		return tx.Brands().Create(ctx, domain.Brand{ID: uuid.New(), Name: "acme", APIKeyPrefix: "ffffffffffff", APIKeyHash: "h", CreatedAt: now, UpdatedAt: now})
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	err = s.WithinTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		dup := fx.license
		dup.ID = uuid.New()
		return tx.Licenses().Create(ctx, dup)
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	err = s.WithinTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		_, err := tx.Licenses().GetByID(ctx, uuid.New())
		return err
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = s.WithinTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		return tx.Licenses().UpdateStatus(ctx, uuid.New(), domain.LicenseStatusSuspended, now)
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEnsureResolvesExistingRows(t *testing.T) {
	t.Parallel()

	s := newSQLiteStore(t)
	fx := seedLicense(t, s)
	now := time.Now().UTC()

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		c, err := tx.Customers().Ensure(ctx, domain.Customer{ID: uuid.New(), Email: fx.customer.Email, CreatedAt: now, UpdatedAt: now})
		require.NoError(t, err)
		assert.Equal(t, fx.customer.ID, c.ID)

		k, err := tx.LicenseKeys().Ensure(ctx, domain.LicenseKey{
			ID: uuid.New(), Key: "LIC-1111-2222-3333-4444", BrandID: fx.brand.ID, CustomerID: fx.customer.ID, CreatedAt: now, UpdatedAt: now,
		})
		require.NoError(t, err)
		assert.Equal(t, fx.key.ID, k.ID)
		assert.Equal(t, fx.key.Key, k.Key)

		other, err := tx.Customers().Ensure(ctx, domain.Customer{ID: uuid.New(), Email: "other@example.com", CreatedAt: now, UpdatedAt: now})
		require.NoError(t, err)
		_, err = tx.LicenseKeys().Ensure(ctx, domain.LicenseKey{
			ID: uuid.New(), Key: fx.key.Key, BrandID: fx.brand.ID, CustomerID: other.ID, CreatedAt: now, UpdatedAt: now,
		})
		assert.ErrorIs(t, err, domain.ErrConflict)
		return nil
	})
	require.NoError(t, err)
}

func TestActiveInstanceUniquenessIsPartial(t *testing.T) {
	t.Parallel()

	s := newSQLiteStore(t)
	fx := seedLicense(t, s)
	ctx := context.Background()
	now := time.Now().UTC()

	first := domain.Activation{ID: uuid.New(), LicenseID: fx.license.ID, InstanceIdentifier: "host-1", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		return tx.Activations().Create(ctx, first)
	}))

	err := s.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		return tx.Activations().Create(ctx, domain.Activation{ID: uuid.New(), LicenseID: fx.license.ID, InstanceIdentifier: "host-1", CreatedAt: now, UpdatedAt: now})
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		if err := tx.Activations().Deactivate(ctx, first.ID, now); err != nil {
			return err
		}
		return tx.Activations().Create(ctx, domain.Activation{ID: uuid.New(), LicenseID: fx.license.ID, InstanceIdentifier: "host-1", CreatedAt: now, UpdatedAt: now})
	}))

	err = s.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		assert.ErrorIs(t, tx.Activations().Deactivate(ctx, first.ID, now), domain.ErrNotFound)

		all, err := tx.Activations().ListByLicense(ctx, fx.license.ID)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		n, err := tx.Activations().CountActive(ctx, fx.license.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		active, err := tx.Activations().LockActiveByKey(ctx, fx.key.Key, "host-1", "")
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.NotEqual(t, first.ID, active[0].ID)

		scoped, err := tx.Activations().LockActiveByKey(ctx, fx.key.Key, "host-1", "other")
		require.NoError(t, err)
		assert.Empty(t, scoped)

		deactivated, err := tx.Activations().DeactivateAllActive(ctx, fx.license.ID, now)
		require.NoError(t, err)
		assert.Equal(t, 1, deactivated)
		return nil
	})
	require.NoError(t, err)
}

func TestListByCustomerEmailCountsSeats(t *testing.T) {
	t.Parallel()

	s := newSQLiteStore(t)
	fx := seedLicense(t, s)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		for _, host := range []string{"a", "b"} {
			if err := tx.Activations().Create(ctx, domain.Activation{ID: uuid.New(), LicenseID: fx.license.ID, InstanceIdentifier: host, CreatedAt: now, UpdatedAt: now}); err != nil {
				return err
			}
		}
		return nil
	}))

	err := s.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		rows, total, err := tx.Licenses().ListByCustomerEmail(ctx, fx.customer.Email, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, rows, 1)
		assert.Equal(t, fx.license.ID, rows[0].LicenseID)
		assert.Equal(t, fx.key.Key, rows[0].LicenseKey)
		assert.Equal(t, "acme", rows[0].BrandName)
		assert.Equal(t, "rankmath", rows[0].ProductCode)
		assert.Equal(t, 2, rows[0].ActiveSeats)

		rows, total, err = tx.Licenses().ListByCustomerEmail(ctx, fx.customer.Email, 10, 5)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Empty(t, rows)
		return nil
	})
	require.NoError(t, err)
}

func TestAuditMetadataRoundTrips(t *testing.T) {
	t.Parallel()

	s := newSQLiteStore(t)
	ctx := context.Background()
	target := uuid.NewString()
	actor := uuid.NewString()
	base := time.Now().UTC()

	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		for i, action := range []string{domain.AuditActionLicenseProvisioned, domain.AuditActionLicenseSuspended} {
			if err := tx.AuditLog().Append(ctx, domain.AuditEntry{
				ID: uuid.New(), ActorType: domain.ActorTypeBrand, ActorID: &actor, Action: action,
				TargetType: domain.AuditTargetLicense, TargetID: target,
				Metadata: map[string]any{
					"reason": "chargeback", "deactivated_count": i,
					"detail": map[string]any{"ratio": 0.5, "seats": []any{1, 2}},
				},
				CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
			}); err != nil {
				return err
			}
		}
		return nil
	}))

	err := s.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		entries, err := tx.AuditLog().ListByTargets(ctx, []string{target})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, domain.AuditActionLicenseProvisioned, entries[0].Action)
		assert.Equal(t, domain.AuditActionLicenseSuspended, entries[1].Action)
		assert.Equal(t, "chargeback", entries[1].Metadata["reason"])
		assert.Equal(t, int64(1), entries[1].Metadata["deactivated_count"])
		assert.Equal(t, map[string]any{"ratio": 0.5, "seats": []any{int64(1), int64(2)}}, entries[1].Metadata["detail"])
		require.NotNil(t, entries[1].ActorID)
		assert.Equal(t, actor, *entries[1].ActorID)

		none, err := tx.AuditLog().ListByTargets(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, none)
		return nil
	})
	require.NoError(t, err)
}

func TestOutboxClaimLifecycle(t *testing.T) {
	t.Parallel()

	s := newSQLiteStore(t)
	ctx := context.Background()
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	base := time.Now().UTC()
	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		for i, id := range ids {
			if err := tx.Outbox().Enqueue(ctx, ports.OutboxEvent{
				EventID: id, EventType: "license.audit.license_activated", PartitionKey: "p",
				Payload: []byte(`{"n":1}`), OccurredAt: base.Add(time.Duration(i) * time.Millisecond),
			}); err != nil {
				return err
			}
		}
		return nil
	}))

	claimed, err := s.ClaimUnpublished(ctx, 2, "token-a", time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, ids[0], claimed[0].OutboxID)
	assert.JSONEq(t, `{"n":1}`, string(claimed[0].Payload))

	rest, err := s.ClaimUnpublished(ctx, 10, "token-b", time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, ids[2], rest[0].OutboxID)

	require.NoError(t, s.MarkPublished(ctx, ids[0], "token-a", time.Now().UTC()))
	require.NoError(t, s.MarkFailed(ctx, ids[1], "token-a", "broker down", time.Now().UTC()))
	require.NoError(t, s.MarkDeadLettered(ctx, ids[2], "token-b", "poison", time.Now().UTC()))
	// A stale token no longer owns the row.
	require.NoError(t, s.MarkPublished(ctx, ids[1], "token-a", time.Now().UTC()))

	pending, err := s.PendingOutbox(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	retry, err := s.ClaimUnpublished(ctx, 10, "token-c", time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, retry, 1)
	assert.Equal(t, ids[1], retry[0].OutboxID)
	assert.Equal(t, 1, retry[0].RetryCount)
	require.NotNil(t, retry[0].LastError)
	assert.Equal(t, "broker down", *retry[0].LastError)
}
