package application_test

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnson-oragui/multi-tenant-license-service/internal/application"
	"github.com/johnson-oragui/multi-tenant-license-service/internal/domain"
)

var licenseKeyPattern = regexp.MustCompile(`^LIC-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}$`)

func TestProvisionIssuesLicense(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	brand, product := f.brand(t, "acme", "rankmath")
	expires := f.clock.Now().Add(365 * 24 * time.Hour)

	res, err := f.service.Provision(context.Background(), application.ProvisionInput{
		BrandID:       brand.ID,
		ProductID:     product.ID,
		CustomerEmail: "  Buyer@Example.com ",
		ExpiresAt:     expires,
	})
	require.NoError(t, err)
	assert.Regexp(t, licenseKeyPattern, res.LicenseKey)
	assert.Equal(t, domain.LicenseStatusValid, res.Status)
	assert.True(t, expires.Equal(res.ExpiresAt))
	require.NotNil(t, res.SeatLimit)
	assert.Equal(t, 3, *res.SeatLimit)

	entries, err := f.service.AuditTrail(context.Background(), brand.ID, res.LicenseID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.AuditActionLicenseProvisioned, entries[0].Action)
	assert.Equal(t, domain.ActorTypeBrand, entries[0].ActorType)
	require.NotNil(t, entries[0].ActorID)
	assert.Equal(t, brand.ID.String(), *entries[0].ActorID)
	assert.Equal(t, product.ID.String(), entries[0].Metadata["product_id"])
	assert.Equal(t, "buyer@example.com", entries[0].Metadata["customer_email"])
	assert.Equal(t, 1, f.store.PendingOutbox())
	assert.Equal(t, 1, f.metrics.audits[domain.AuditActionLicenseProvisioned])
}

func TestProvisionRejections(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	acme, product := f.brand(t, "acme", "rankmath")
	globex, _ := f.brand(t, "globex", "widget")
	expires := f.clock.Now().Add(time.Hour)

	_, err := f.service.Provision(ctx, application.ProvisionInput{
		BrandID: globex.ID, ProductID: product.ID, CustomerEmail: "buyer@example.com", ExpiresAt: expires,
	})
	assert.ErrorIs(t, err, domain.ErrCrossTenant)

	_, err = f.service.Provision(ctx, application.ProvisionInput{
		BrandID: acme.ID, ProductID: acme.ID, CustomerEmail: "buyer@example.com", ExpiresAt: expires,
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.service.Provision(ctx, application.ProvisionInput{
		BrandID: acme.ID, ProductID: product.ID, CustomerEmail: "buyer@example.com", ExpiresAt: expires, SeatLimit: intPtr(0),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.service.Provision(ctx, application.ProvisionInput{
		BrandID: acme.ID, ProductID: product.ID, CustomerEmail: "buyer@example.com",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	f.provision(t, acme, product, "buyer@example.com", nil)
	_, err = f.service.Provision(ctx, application.ProvisionInput{
		BrandID: acme.ID, ProductID: product.ID, CustomerEmail: "buyer@example.com", ExpiresAt: expires,
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 1, f.store.PendingOutbox(), "failed provisioning leaves nothing behind")
}

func TestProvisionRejectsMalformedEmail(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	acme, product := f.brand(t, "acme", "rankmath")
	expires := f.clock.Now().Add(time.Hour)

	for _, email := range []string{
		"",
		"   ",
		"not-an-email",
		"Buyer <buyer@example.com>",
		"buyer@",
		strings.Repeat("a", 250) + "@example.com",
	} {
		_, err := f.service.Provision(context.Background(), application.ProvisionInput{
			BrandID: acme.ID, ProductID: product.ID, CustomerEmail: email, ExpiresAt: expires,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidInput, "email %q", email)
	}
	assert.Zero(t, f.store.PendingOutbox())
}

func TestLicenseKeyIsPerBrandAndCustomer(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	acme, acmeProduct := f.brand(t, "acme", "rankmath")
	globex, globexProduct := f.brand(t, "globex", "widget")

	a := f.provision(t, acme, acmeProduct, "buyer@example.com", nil)
	b := f.provision(t, globex, globexProduct, "buyer@example.com", nil)
	c := f.provision(t, acme, acmeProduct, "other@example.com", nil)

	assert.NotEqual(t, a.LicenseKey, b.LicenseKey)
	assert.NotEqual(t, a.LicenseKey, c.LicenseKey)
}

func TestCreateBrandAndAuthenticate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	created, err := f.service.CreateBrand(ctx, "acme")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(created.APIKey, "lsk_"))
	assert.NotEqual(t, created.APIKey, created.Brand.APIKeyHash)

	_, err = f.service.CreateBrand(ctx, "acme")
	assert.ErrorIs(t, err, domain.ErrConflict)
	_, err = f.service.CreateBrand(ctx, " ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	brand, err := f.service.AuthenticateBrand(ctx, created.APIKey)
	require.NoError(t, err)
	assert.Equal(t, created.Brand.ID, brand.ID)

	tampered := created.APIKey[:len(created.APIKey)-1] + "x"
	if tampered == created.APIKey {
		tampered = created.APIKey[:len(created.APIKey)-1] + "y"
	}
	_, err = f.service.AuthenticateBrand(ctx, tampered)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = f.service.AuthenticateBrand(ctx, "not-a-key")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Zero(t, f.hasher.dummyCount())

	_, err = f.service.AuthenticateBrand(ctx, "lsk_000000000000_secret")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, 1, f.hasher.dummyCount(), "unknown prefixes still pay for a hash comparison")
}

func TestProductsAreScopedToBrand(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	acme, _ := f.brand(t, "acme", "rankmath")
	globex, _ := f.brand(t, "globex", "rankmath")

	_, err := f.service.CreateProduct(ctx, application.CreateProductInput{BrandID: acme.ID, Code: "rankmath", Name: "dup"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	products, err := f.service.ListProducts(ctx, globex.ID)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, globex.ID, products[0].BrandID)

	_, err = f.service.CreateProduct(ctx, application.CreateProductInput{BrandID: uuid.New(), Code: "orphan", Name: "Orphan"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
