package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/johnson-oragui/multi-tenant-license-service/internal/adapters/postgres"
	"github.com/johnson-oragui/multi-tenant-license-service/internal/adapters/security"
	"github.com/johnson-oragui/multi-tenant-license-service/internal/application"
	"github.com/johnson-oragui/multi-tenant-license-service/internal/domain"
)

func newService(t *testing.T) (*application.Service, *gorm.DB) {
	t.Helper()
	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	db, err := postgres.Connect(ctx, postgres.DriverSQLite, dsn, 0, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, postgres.RunMigrations(ctx, db, zap.NewNop()))
	store := postgres.NewStore(db, 0, zap.NewNop())
	t.Cleanup(func() { _ = store.Close() })

	svc := application.NewService(application.Dependencies{
		Config: application.Config{DefaultSeatLimit: 3},
		Store:  store,
		Hasher: security.NewBcryptHasher(bcrypt.MinCost),
	})
	return svc, db
}

func TestLicenseLifecycleOnSQLite(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()

	brand, err := svc.CreateBrand(ctx, "acme")
	require.NoError(t, err)
	authed, err := svc.AuthenticateBrand(ctx, brand.APIKey)
	require.NoError(t, err)
	assert.Equal(t, brand.Brand.ID, authed.ID)

	product, err := svc.CreateProduct(ctx, application.CreateProductInput{BrandID: brand.Brand.ID, Code: "rankmath", Name: "RankMath"})
	require.NoError(t, err)

	lic, err := svc.Provision(ctx, application.ProvisionInput{
		BrandID:       brand.Brand.ID,
		ProductID:     product.ID,
		CustomerEmail: "buyer@example.com",
		ExpiresAt:     time.Now().UTC().Add(24 * time.Hour),
	})
	require.NoError(t, err)

	activate := func(instance string) application.ActivationResult {
		res, err := svc.ValidateAndActivate(ctx, application.ActivateInput{
			LicenseKey: lic.LicenseKey, ProductCode: "rankmath", InstanceIdentifier: instance,
		})
		require.NoError(t, err)
		return res
	}

	first := activate("site-1")
	require.True(t, first.Success)
	assert.Equal(t, application.ActivationStatusActivated, first.Status)
	replay := activate("site-1")
	assert.Equal(t, first.ActivationID, replay.ActivationID)
	assert.Equal(t, application.ActivationStatusActive, replay.Status)
	require.True(t, activate("site-2").Success)
	require.True(t, activate("site-3").Success)

	over := activate("site-4")
	assert.False(t, over.Success)
	assert.Equal(t, domain.RejectionSeatLimitExceeded, over.Rejection)

	require.NoError(t, svc.Deactivate(ctx, application.DeactivateInput{LicenseKey: lic.LicenseKey, InstanceIdentifier: "site-1"}))
	assert.ErrorIs(t, svc.Deactivate(ctx, application.DeactivateInput{LicenseKey: lic.LicenseKey, InstanceIdentifier: "site-1"}), domain.ErrNotFound)
	require.True(t, activate("site-4").Success)

	suspended, err := svc.Suspend(ctx, application.SuspendInput{
		LicenseID: lic.LicenseID, Actor: application.BrandActor(brand.Brand.ID), DeactivateExisting: true,
	})
	require.NoError(t, err)
	assert.True(t, suspended.Changed)
	assert.Equal(t, 3, suspended.DeactivatedSeats)
	assert.Equal(t, domain.RejectionSuspended, activate("site-5").Rejection)

	status, err := svc.GetStatus(ctx, lic.LicenseKey)
	require.NoError(t, err)
	assert.False(t, status.Valid)
	require.Len(t, status.Entitlements, 1)
	assert.Zero(t, status.Entitlements[0].ActiveSeats)

	_, err = svc.Reinstate(ctx, application.ReinstateInput{LicenseID: lic.LicenseID, Actor: application.BrandActor(brand.Brand.ID)})
	require.NoError(t, err)
	_, err = svc.Revoke(ctx, application.RevokeInput{LicenseID: lic.LicenseID, Actor: application.BrandActor(brand.Brand.ID)})
	require.NoError(t, err)
	assert.Equal(t, domain.RejectionRevoked, activate("site-1").Rejection)

	page, err := svc.ListByCustomerEmail(ctx, application.ListByEmailInput{Email: "buyer@example.com"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Count)
	require.Len(t, page.Results, 1)
	assert.Equal(t, domain.LicenseStatusCancelled, page.Results[0].Status)
	assert.False(t, page.Results[0].IsActive)

	trail, err := svc.AuditTrail(ctx, brand.Brand.ID, lic.LicenseID)
	require.NoError(t, err)
	actions := make([]string, 0, len(trail))
	for _, e := range trail {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, domain.AuditActionLicenseProvisioned)
	assert.Contains(t, actions, domain.AuditActionLicenseDeactivated)
	assert.Contains(t, actions, domain.AuditActionLicenseRevoked)
}

func TestStatusSurvivesCustomerRemoval(t *testing.T) {
	t.Parallel()

	svc, db := newService(t)
	ctx := context.Background()

	brand, err := svc.CreateBrand(ctx, "acme")
	require.NoError(t, err)
	product, err := svc.CreateProduct(ctx, application.CreateProductInput{BrandID: brand.Brand.ID, Code: "rankmath", Name: "RankMath"})
	require.NoError(t, err)
	lic, err := svc.Provision(ctx, application.ProvisionInput{
		BrandID:       brand.Brand.ID,
		ProductID:     product.ID,
		CustomerEmail: "gone@example.com",
		ExpiresAt:     time.Now().UTC().Add(24 * time.Hour),
	})
	require.NoError(t, err)

	require.NoError(t, db.WithContext(ctx).Exec("DELETE FROM customers WHERE email = ?", "gone@example.com").Error)
	var orphaned int64
	require.NoError(t, db.WithContext(ctx).Table("license_keys").Where("license_key = ? AND customer_id IS NULL", lic.LicenseKey).Count(&orphaned).Error)
	require.Equal(t, int64(1), orphaned)

	status, err := svc.GetStatus(ctx, lic.LicenseKey)
	require.NoError(t, err)
	assert.Nil(t, status.CustomerEmail)
	assert.True(t, status.Valid)
	require.Len(t, status.Entitlements, 1)
	assert.Equal(t, "rankmath", status.Entitlements[0].ProductCode)
}
