package application_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/johnson-oragui/multi-tenant-license-service/internal/adapters/memory"
	"github.com/johnson-oragui/multi-tenant-license-service/internal/adapters/security"
	"github.com/johnson-oragui/multi-tenant-license-service/internal/application"
	"github.com/johnson-oragui/multi-tenant-license-service/internal/domain"
	"github.com/johnson-oragui/multi-tenant-license-service/internal/ports"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingMetrics struct {
	mu          sync.Mutex
	activations map[string]int
	audits      map[string]int
}

func (m *recordingMetrics) ActivationResult(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activations[result]++
}

func (m *recordingMetrics) AuditEntry(action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits[action]++
}

// countingHasher counts dummy comparisons made for unknown API keys.
type countingHasher struct {
	*security.BcryptHasher
	mu      sync.Mutex
	dummies int
}

func (h *countingHasher) CompareDummy(secret string) error {
	h.mu.Lock()
	h.dummies++
	h.mu.Unlock()
	return h.BcryptHasher.CompareDummy(secret)
}

func (h *countingHasher) dummyCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dummies
}

type fixture struct {
	store   *memory.Store
	service *application.Service
	clock   *fakeClock
	metrics *recordingMetrics
	hasher  *countingHasher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithConfig(t, application.Config{DefaultSeatLimit: 3})
}

func newFixtureWithConfig(t *testing.T, cfg application.Config) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	metrics := &recordingMetrics{activations: map[string]int{}, audits: map[string]int{}}
	store := memory.NewStore()
	hasher := &countingHasher{BcryptHasher: security.NewBcryptHasher(bcrypt.MinCost)}
	svc := application.NewService(application.Dependencies{
		Config:  cfg,
		Store:   store,
		Hasher:  hasher,
		Metrics: metrics,
		Clock:   clock.Now,
	})
	return &fixture{store: store, service: svc, clock: clock, metrics: metrics, hasher: hasher}
}

// brand creates a brand with one product and returns both.
func (f *fixture) brand(t *testing.T, name, productCode string) (domain.Brand, domain.Product) {
	t.Helper()
	ctx := context.Background()
	created, err := f.service.CreateBrand(ctx, name)
	require.NoError(t, err)
	product, err := f.service.CreateProduct(ctx, application.CreateProductInput{
		BrandID: created.Brand.ID,
		Code:    productCode,
		Name:    productCode,
	})
	require.NoError(t, err)
	return created.Brand, product
}

func (f *fixture) provision(t *testing.T, brand domain.Brand, product domain.Product, email string, seatLimit *int) application.ProvisionResult {
	t.Helper()
	res, err := f.service.Provision(context.Background(), application.ProvisionInput{
		BrandID:       brand.ID,
		ProductID:     product.ID,
		CustomerEmail: email,
		ExpiresAt:     f.clock.Now().Add(30 * 24 * time.Hour),
		SeatLimit:     seatLimit,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) activate(t *testing.T, key, productCode, instance string) application.ActivationResult {
	t.Helper()
	res, err := f.service.ValidateAndActivate(context.Background(), application.ActivateInput{
		LicenseKey:         key,
		ProductCode:        productCode,
		InstanceIdentifier: instance,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) activations(t *testing.T, licenseID uuid.UUID) []domain.Activation {
	t.Helper()
	var out []domain.Activation
	require.NoError(t, f.store.WithinTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		var err error
		out, err = tx.Activations().ListByLicense(ctx, licenseID)
		return err
	}))
	return out
}

func (f *fixture) license(t *testing.T, licenseID uuid.UUID) domain.License {
	t.Helper()
	var out domain.License
	require.NoError(t, f.store.WithinTx(context.Background(), func(ctx context.Context, tx ports.Tx) error {
		var err error
		out, err = tx.Licenses().GetByID(ctx, licenseID)
		return err
	}))
	return out
}

func (f *fixture) auditActions(t *testing.T, brand domain.Brand, licenseID uuid.UUID) []string {
	t.Helper()
	entries, err := f.service.AuditTrail(context.Background(), brand.ID, licenseID)
	require.NoError(t, err)
	actions := make([]string, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	return actions
}

func countActive(activations []domain.Activation) int {
	n := 0
	for _, a := range activations {
		if a.IsActive() {
			n++
		}
	}
	return n
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }
