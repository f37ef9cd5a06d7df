package postgres

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type brandModel struct {
	ID           uuid.UUID `gorm:"column:id;primaryKey"`
	Name         string    `gorm:"column:name;not null;uniqueIndex:uq_brands_name"`
	APIKeyPrefix string    `gorm:"column:api_key_prefix;not null;uniqueIndex:uq_brands_api_key_prefix"`
	APIKeyHash   string    `gorm:"column:api_key_hash;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null"`
}

func (brandModel) TableName() string { return "brands" }

type productModel struct {
	ID        uuid.UUID  `gorm:"column:id;primaryKey"`
	BrandID   *uuid.UUID `gorm:"column:brand_id;uniqueIndex:uq_products_brand_code,priority:1"`
	Code      string     `gorm:"column:code;not null;uniqueIndex:uq_products_brand_code,priority:2"`
	Name      string     `gorm:"column:name;not null"`
	CreatedAt time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt time.Time  `gorm:"column:updated_at;not null"`

	Brand *brandModel `gorm:"foreignKey:BrandID;references:ID;constraint:OnDelete:SET NULL"`
}

func (productModel) TableName() string { return "products" }

type customerModel struct {
	ID        uuid.UUID `gorm:"column:id;primaryKey"`
	Email     string    `gorm:"column:email;not null;uniqueIndex:uq_customers_email"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (customerModel) TableName() string { return "customers" }

type licenseKeyModel struct {
	ID         uuid.UUID  `gorm:"column:id;primaryKey"`
	Key        string     `gorm:"column:license_key;not null;uniqueIndex:uq_license_keys_key"`
	BrandID    *uuid.UUID `gorm:"column:brand_id;uniqueIndex:uq_license_keys_brand_customer,priority:1"`
	CustomerID *uuid.UUID `gorm:"column:customer_id;uniqueIndex:uq_license_keys_brand_customer,priority:2"`
	CreatedAt  time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;not null"`

	Brand    *brandModel    `gorm:"foreignKey:BrandID;references:ID;constraint:OnDelete:SET NULL"`
	Customer *customerModel `gorm:"foreignKey:CustomerID;references:ID;constraint:OnDelete:SET NULL"`
}

func (licenseKeyModel) TableName() string { return "license_keys" }

type licenseModel struct {
	ID           uuid.UUID  `gorm:"column:id;primaryKey"`
	LicenseKeyID *uuid.UUID `gorm:"column:license_key_id;uniqueIndex:uq_licenses_key_product,priority:1"`
	ProductID    *uuid.UUID `gorm:"column:product_id;uniqueIndex:uq_licenses_key_product,priority:2"`
	Status       string     `gorm:"column:status;not null"`
	ExpiresAt    time.Time  `gorm:"column:expires_at;not null"`
	SeatLimit    *int       `gorm:"column:seat_limit"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null;index:idx_licenses_created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;not null"`

	LicenseKey *licenseKeyModel `gorm:"foreignKey:LicenseKeyID;references:ID;constraint:OnDelete:SET NULL"`
	Product    *productModel    `gorm:"foreignKey:ProductID;references:ID;constraint:OnDelete:SET NULL"`
}

func (licenseModel) TableName() string { return "licenses" }

type activationModel struct {
	ID                 uuid.UUID  `gorm:"column:id;primaryKey"`
	LicenseID          uuid.UUID  `gorm:"column:license_id;not null;index:idx_activations_license"`
	InstanceIdentifier string     `gorm:"column:instance_identifier;not null"`
	DeactivatedAt      *time.Time `gorm:"column:deactivated_at"`
	CreatedAt          time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;not null"`

	License *licenseModel `gorm:"foreignKey:LicenseID;references:ID;constraint:OnDelete:CASCADE"`
}

func (activationModel) TableName() string { return "activations" }

type auditLogModel struct {
	ID         uuid.UUID         `gorm:"column:id;primaryKey"`
	ActorType  string            `gorm:"column:actor_type;not null"`
	ActorID    *string           `gorm:"column:actor_id"`
	Action     string            `gorm:"column:action;not null"`
	TargetType string            `gorm:"column:target_type;not null"`
	TargetID   string            `gorm:"column:target_id;not null;index:idx_audit_logs_target"`
	Metadata   datatypes.JSONMap `gorm:"column:metadata;not null"`
	CreatedAt  time.Time         `gorm:"column:created_at;not null"`
}

func (auditLogModel) TableName() string { return "audit_logs" }

type outboxModel struct {
	OutboxID       uuid.UUID      `gorm:"column:outbox_id;primaryKey"`
	EventType      string         `gorm:"column:event_type;not null"`
	PartitionKey   string         `gorm:"column:partition_key;not null"`
	Payload        datatypes.JSON `gorm:"column:payload;not null"`
	RetryCount     int            `gorm:"column:retry_count;not null;default:0"`
	LastError      *string        `gorm:"column:last_error"`
	CreatedAt      time.Time      `gorm:"column:created_at;not null;index:idx_license_outbox_created"`
	PublishedAt    *time.Time     `gorm:"column:published_at"`
	LastErrorAt    *time.Time     `gorm:"column:last_error_at"`
	ClaimToken     *string        `gorm:"column:claim_token"`
	ClaimUntil     *time.Time     `gorm:"column:claim_until"`
	DeadLetteredAt *time.Time     `gorm:"column:dead_lettered_at"`
}

func (outboxModel) TableName() string { return "license_outbox" }

// autoMigrateModels is the AutoMigrate set for dialects without SQL migrations,
// in dependency order.
var autoMigrateModels = []any{
	&brandModel{},
	&productModel{},
	&customerModel{},
	&licenseKeyModel{},
	&licenseModel{},
	&activationModel{},
	&auditLogModel{},
	&outboxModel{},
}
