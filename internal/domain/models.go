package domain

import (
	"time"

	"github.com/google/uuid"
)

type LicenseStatus string

const (
	LicenseStatusValid     LicenseStatus = "valid"
	LicenseStatusSuspended LicenseStatus = "suspended"
	LicenseStatusCancelled LicenseStatus = "cancelled"
)

type ActorType string

const (
	ActorTypeBrand  ActorType = "brand"
	ActorTypeSystem ActorType = "system"
)

const (
	AuditActionLicenseProvisioned = "license_provisioned"
	AuditActionLicenseActivated   = "license_activated"
	AuditActionLicenseDeactivated = "license_deactivated"
	AuditActionLicenseSuspended   = "license_suspended"
	AuditActionLicenseReinstated  = "license_reinstated"
	AuditActionLicenseRevoked     = "license_revoked"
)

const (
	AuditTargetLicense    = "license"
	AuditTargetActivation = "activation"
)

// Brand is a tenant. The API credential is never stored in clear text:
// APIKeyPrefix is the unique lookup handle, APIKeyHash the bcrypt digest of
// the full key.
type Brand struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	APIKeyPrefix string    `json:"-"`
	APIKeyHash   string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Product struct {
	ID        uuid.UUID `json:"id"`
	BrandID   uuid.UUID `json:"brand_id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Customer struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LicenseKey is shared by every license a brand issues to one customer.
type LicenseKey struct {
	ID         uuid.UUID `json:"id"`
	Key        string    `json:"key"`
	BrandID    uuid.UUID `json:"brand_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// License grants one product under a license key. A nil SeatLimit means
// unlimited activations.
type License struct {
	ID           uuid.UUID     `json:"id"`
	LicenseKeyID uuid.UUID     `json:"license_key_id"`
	ProductID    uuid.UUID     `json:"product_id"`
	Status       LicenseStatus `json:"status"`
	ExpiresAt    time.Time     `json:"expires_at"`
	SeatLimit    *int          `json:"seat_limit"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

type Activation struct {
	ID                 uuid.UUID  `json:"id"`
	LicenseID          uuid.UUID  `json:"license_id"`
	InstanceIdentifier string     `json:"instance_identifier"`
	DeactivatedAt      *time.Time `json:"deactivated_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (a Activation) IsActive() bool {
	return a.DeactivatedAt == nil
}

type AuditEntry struct {
	ID         uuid.UUID      `json:"id"`
	ActorType  ActorType      `json:"actor_type"`
	ActorID    *string        `json:"actor_id"`
	Action     string         `json:"action"`
	TargetType string         `json:"target_type"`
	TargetID   string         `json:"target_id"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"created_at"`
}

// LicenseListing is the denormalized row returned when listing licenses by
// customer email.
type LicenseListing struct {
	LicenseID   uuid.UUID     `json:"license_id"`
	LicenseKey  string        `json:"license_key"`
	BrandName   string        `json:"brand"`
	ProductCode string        `json:"product"`
	Status      LicenseStatus `json:"status"`
	ExpiresAt   time.Time     `json:"expires_at"`
	ActiveSeats int           `json:"active_seats"`
	CreatedAt   time.Time     `json:"-"`
}
