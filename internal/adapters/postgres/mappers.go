package postgres

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/johnson-oragui/multi-tenant-license-service/internal/domain"
)

func toDomainBrand(row brandModel) domain.Brand {
	return domain.Brand{
		ID:           row.ID,
		Name:         row.Name,
		APIKeyPrefix: row.APIKeyPrefix,
		APIKeyHash:   row.APIKeyHash,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

func toDomainProduct(row productModel) domain.Product {
	return domain.Product{
		ID:        row.ID,
		BrandID:   derefID(row.BrandID),
		Code:      row.Code,
		Name:      row.Name,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func toDomainCustomer(row customerModel) domain.Customer {
	return domain.Customer{ID: row.ID, Email: row.Email, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt}
}

func toDomainLicenseKey(row licenseKeyModel) domain.LicenseKey {
	return domain.LicenseKey{
		ID:         row.ID,
		Key:        row.Key,
		BrandID:    derefID(row.BrandID),
		CustomerID: derefID(row.CustomerID),
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
}

func toDomainLicense(row licenseModel) domain.License {
	return domain.License{
		ID:           row.ID,
		LicenseKeyID: derefID(row.LicenseKeyID),
		ProductID:    derefID(row.ProductID),
		Status:       domain.LicenseStatus(row.Status),
		ExpiresAt:    row.ExpiresAt,
		SeatLimit:    row.SeatLimit,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

func toDomainActivation(row activationModel) domain.Activation {
	return domain.Activation{
		ID:                 row.ID,
		LicenseID:          row.LicenseID,
		InstanceIdentifier: row.InstanceIdentifier,
		DeactivatedAt:      row.DeactivatedAt,
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}
}

func toDomainAuditEntry(row auditLogModel) domain.AuditEntry {
	metadata := domain.NormalizeMetadata(row.Metadata)
	return domain.AuditEntry{
		ID:         row.ID,
		ActorType:  domain.ActorType(row.ActorType),
		ActorID:    row.ActorID,
		Action:     row.Action,
		TargetType: row.TargetType,
		TargetID:   row.TargetID,
		Metadata:   metadata,
		CreatedAt:  row.CreatedAt,
	}
}

func optionalID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func derefID(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}

// translateError maps gorm and driver errors onto domain sentinels.
func translateError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %s not found", domain.ErrNotFound, what)
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %s already exists", domain.ErrConflict, what)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// isRetryable reports serialization failures and deadlocks, which Postgres
// resolves by aborting one of the contending transactions.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
