package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/johnson-oragui/multi-tenant-license-service/internal/domain"
)

// Store runs units of work. Every repository reached through Tx shares the
// same transaction; returning an error from fn rolls all of it back.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
}

// Tx exposes the repositories bound to one open transaction.
type Tx interface {
	Brands() BrandRepository
	Products() ProductRepository
	Customers() CustomerRepository
	LicenseKeys() LicenseKeyRepository
	Licenses() LicenseRepository
	Activations() ActivationRepository
	AuditLog() AuditLogRepository
	Outbox() OutboxWriter
}

type BrandRepository interface {
	// Create fails with domain.ErrConflict on a duplicate name or key prefix.
	Create(ctx context.Context, brand domain.Brand) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.Brand, error)
	GetByAPIKeyPrefix(ctx context.Context, prefix string) (domain.Brand, error)
}

type ProductRepository interface {
	// Create fails with domain.ErrConflict on a duplicate (brand, code).
	Create(ctx context.Context, product domain.Product) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.Product, error)
	ListByBrand(ctx context.Context, brandID uuid.UUID) ([]domain.Product, error)
}

type CustomerRepository interface {
	// Ensure inserts candidate unless a customer with the same email exists,
	// and returns the stored row either way.
	Ensure(ctx context.Context, candidate domain.Customer) (domain.Customer, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Customer, error)
}

type LicenseKeyRepository interface {
	// Ensure returns the key already issued for (brand, customer) or stores
	// candidate. It fails with domain.ErrConflict when candidate.Key collides
	// with a key issued to someone else.
	Ensure(ctx context.Context, candidate domain.LicenseKey) (domain.LicenseKey, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.LicenseKey, error)
	GetByKey(ctx context.Context, key string) (domain.LicenseKey, error)
}

// LicenseProduct pairs a license with the product it grants.
type LicenseProduct struct {
	License domain.License
	Product domain.Product
}

type LicenseRepository interface {
	// Create fails with domain.ErrConflict when the key already holds a
	// license for the product.
	Create(ctx context.Context, license domain.License) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.License, error)
	// LockByID and LockByKeyAndProductCode take an exclusive row lock held
	// until the surrounding transaction ends.
	LockByID(ctx context.Context, id uuid.UUID) (domain.License, error)
	LockByKeyAndProductCode(ctx context.Context, licenseKey, productCode string) (domain.License, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.LicenseStatus, at time.Time) error
	ListByLicenseKey(ctx context.Context, licenseKeyID uuid.UUID) ([]LicenseProduct, error)
	ListByCustomerEmail(ctx context.Context, email string, limit, offset int) ([]domain.LicenseListing, int64, error)
}

type ActivationRepository interface {
	// Create fails with domain.ErrConflict when the instance already holds an
	// active activation on the license.
	Create(ctx context.Context, activation domain.Activation) error
	FindActive(ctx context.Context, licenseID uuid.UUID, instanceIdentifier string) (domain.Activation, error)
	// LockActiveByKey locks every active activation for instanceIdentifier on
	// licenses under licenseKey. An empty productCode matches all products.
	LockActiveByKey(ctx context.Context, licenseKey, instanceIdentifier, productCode string) ([]domain.Activation, error)
	CountActive(ctx context.Context, licenseID uuid.UUID) (int, error)
	Deactivate(ctx context.Context, id uuid.UUID, at time.Time) error
	DeactivateAllActive(ctx context.Context, licenseID uuid.UUID, at time.Time) (int, error)
	ListByLicense(ctx context.Context, licenseID uuid.UUID) ([]domain.Activation, error)
}

// AuditLogRepository is append-only.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditEntry) error
	ListByTargets(ctx context.Context, targetIDs []string) ([]domain.AuditEntry, error)
}

// OutboxEvent is the write-side event payload prior to storage.
type OutboxEvent struct {
	EventID      uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	OccurredAt   time.Time
}

// OutboxRecord represents durable outbox state, including retry/error metadata.
type OutboxRecord struct {
	OutboxID       uuid.UUID
	EventType      string
	PartitionKey   string
	Payload        []byte
	RetryCount     int
	LastError      *string
	CreatedAt      time.Time
	PublishedAt    *time.Time
	LastErrorAt    *time.Time
	ClaimToken     *string
	ClaimUntil     *time.Time
	DeadLetteredAt *time.Time
}

// OutboxWriter enqueues events inside the caller's transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, event OutboxEvent) error
}

// OutboxRelay drives the publish-retry workflow outside request transactions.
type OutboxRelay interface {
	ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
	MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
}
