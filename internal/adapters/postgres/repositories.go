package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/johnson-oragui/multi-tenant-license-service/internal/domain"
	"github.com/johnson-oragui/multi-tenant-license-service/internal/ports"
)

type brandRepository struct {
	db *gorm.DB
}

func (r *brandRepository) Create(ctx context.Context, brand domain.Brand) error {
	row := brandModel{
		ID:           brand.ID,
		Name:         brand.Name,
		APIKeyPrefix: brand.APIKeyPrefix,
		APIKeyHash:   brand.APIKeyHash,
		CreatedAt:    brand.CreatedAt,
		UpdatedAt:    brand.UpdatedAt,
	}
	return translateError(r.db.WithContext(ctx).Create(&row).Error, "brand")
}

func (r *brandRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Brand, error) {
	var row brandModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return domain.Brand{}, translateError(err, "brand")
	}
	return toDomainBrand(row), nil
}

func (r *brandRepository) GetByAPIKeyPrefix(ctx context.Context, prefix string) (domain.Brand, error) {
	var row brandModel
	if err := r.db.WithContext(ctx).Where("api_key_prefix = ?", prefix).Take(&row).Error; err != nil {
		return domain.Brand{}, translateError(err, "brand")
	}
	return toDomainBrand(row), nil
}

type productRepository struct {
	db *gorm.DB
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) error {
	row := productModel{
		ID:        product.ID,
		BrandID:   optionalID(product.BrandID),
		Code:      product.Code,
		Name:      product.Name,
		CreatedAt: product.CreatedAt,
		UpdatedAt: product.UpdatedAt,
	}
	return translateError(r.db.WithContext(ctx).Omit(clause.Associations).Create(&row).Error, "product")
}

func (r *productRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Product, error) {
	var row productModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return domain.Product{}, translateError(err, "product")
	}
	return toDomainProduct(row), nil
}

func (r *productRepository) ListByBrand(ctx context.Context, brandID uuid.UUID) ([]domain.Product, error) {
	var rows []productModel
	if err := r.db.WithContext(ctx).Where("brand_id = ?", brandID).Order("code ASC").Find(&rows).Error; err != nil {
		return nil, translateError(err, "products")
	}
	out := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainProduct(row))
	}
	return out, nil
}

type customerRepository struct {
	db *gorm.DB
}

// Ensure inserts with ON CONFLICT DO NOTHING and reads back by email, so a
// concurrent insert of the same email resolves to the committed row.
func (r *customerRepository) Ensure(ctx context.Context, candidate domain.Customer) (domain.Customer, error) {
	row := customerModel{
		ID:        candidate.ID,
		Email:     candidate.Email,
		CreatedAt: candidate.CreatedAt,
		UpdatedAt: candidate.UpdatedAt,
	}
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return domain.Customer{}, translateError(err, "customer")
	}
	var stored customerModel
	if err := db.Where("email = ?", candidate.Email).Take(&stored).Error; err != nil {
		return domain.Customer{}, translateError(err, "customer")
	}
	return toDomainCustomer(stored), nil
}

func (r *customerRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Customer, error) {
	var row customerModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return domain.Customer{}, translateError(err, "customer")
	}
	return toDomainCustomer(row), nil
}

type licenseKeyRepository struct {
	db *gorm.DB
}

func (r *licenseKeyRepository) Ensure(ctx context.Context, candidate domain.LicenseKey) (domain.LicenseKey, error) {
	row := licenseKeyModel{
		ID:         candidate.ID,
		Key:        candidate.Key,
		BrandID:    optionalID(candidate.BrandID),
		CustomerID: optionalID(candidate.CustomerID),
		CreatedAt:  candidate.CreatedAt,
		UpdatedAt:  candidate.UpdatedAt,
	}
	db := r.db.WithContext(ctx)
	if err := db.Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return domain.LicenseKey{}, translateError(err, "license key")
	}

	var stored licenseKeyModel
	err := db.Where("brand_id = ? AND customer_id = ?", candidate.BrandID, candidate.CustomerID).Take(&stored).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// The insert was skipped because the token belongs to another pair.
		return domain.LicenseKey{}, fmt.Errorf("%w: license key collision", domain.ErrConflict)
	}
	if err != nil {
		return domain.LicenseKey{}, translateError(err, "license key")
	}
	return toDomainLicenseKey(stored), nil
}

func (r *licenseKeyRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.LicenseKey, error) {
	var row licenseKeyModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return domain.LicenseKey{}, translateError(err, "license key")
	}
	return toDomainLicenseKey(row), nil
}

func (r *licenseKeyRepository) GetByKey(ctx context.Context, key string) (domain.LicenseKey, error) {
	var row licenseKeyModel
	if err := r.db.WithContext(ctx).Where("license_key = ?", key).Take(&row).Error; err != nil {
		return domain.LicenseKey{}, translateError(err, "license key")
	}
	return toDomainLicenseKey(row), nil
}

type licenseRepository struct {
	db *gorm.DB
}

func lockLicenses() clause.Locking {
	return clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "licenses"}}
}

func (r *licenseRepository) Create(ctx context.Context, license domain.License) error {
	row := licenseModel{
		ID:           license.ID,
		LicenseKeyID: optionalID(license.LicenseKeyID),
		ProductID:    optionalID(license.ProductID),
		Status:       string(license.Status),
		ExpiresAt:    license.ExpiresAt,
		SeatLimit:    license.SeatLimit,
		CreatedAt:    license.CreatedAt,
		UpdatedAt:    license.UpdatedAt,
	}
	return translateError(r.db.WithContext(ctx).Omit(clause.Associations).Create(&row).Error, "license")
}

func (r *licenseRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.License, error) {
	var row licenseModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return domain.License{}, translateError(err, "license")
	}
	return toDomainLicense(row), nil
}

func (r *licenseRepository) LockByID(ctx context.Context, id uuid.UUID) (domain.License, error) {
	var row licenseModel
	err := r.db.WithContext(ctx).
		Clauses(lockLicenses()).
		Where("licenses.id = ?", id).
		Take(&row).Error
	if err != nil {
		return domain.License{}, translateError(err, "license")
	}
	return toDomainLicense(row), nil
}

func (r *licenseRepository) LockByKeyAndProductCode(ctx context.Context, licenseKey, productCode string) (domain.License, error) {
	var row licenseModel
	err := r.db.WithContext(ctx).
		Model(&licenseModel{}).
		Select("licenses.*").
		Joins("JOIN license_keys ON license_keys.id = licenses.license_key_id").
		Joins("JOIN products ON products.id = licenses.product_id").
		Where("license_keys.license_key = ?", licenseKey).
		Where("products.code = ?", productCode).
		Clauses(lockLicenses()).
		Take(&row).Error
	if err != nil {
		return domain.License{}, translateError(err, "license")
	}
	return toDomainLicense(row), nil
}

func (r *licenseRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.LicenseStatus, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&licenseModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     string(status),
			"updated_at": at,
		})
	if res.Error != nil {
		return translateError(res.Error, "license")
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: license not found", domain.ErrNotFound)
	}
	return nil
}

func (r *licenseRepository) ListByLicenseKey(ctx context.Context, licenseKeyID uuid.UUID) ([]ports.LicenseProduct, error) {
	var rows []licenseModel
	err := r.db.WithContext(ctx).
		Preload("Product").
		Where("license_key_id = ?", licenseKeyID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, translateError(err, "licenses")
	}
	out := make([]ports.LicenseProduct, 0, len(rows))
	for _, row := range rows {
		item := ports.LicenseProduct{License: toDomainLicense(row)}
		if row.Product != nil {
			item.Product = toDomainProduct(*row.Product)
		}
		out = append(out, item)
	}
	return out, nil
}

type listingRow struct {
	LicenseID   uuid.UUID
	LicenseKey  string
	BrandName   string
	ProductCode string
	Status      string
	ExpiresAt   time.Time
	ActiveSeats int
	CreatedAt   time.Time
}

func (r *licenseRepository) ListByCustomerEmail(ctx context.Context, email string, limit, offset int) ([]domain.LicenseListing, int64, error) {
	byEmail := func() *gorm.DB {
		return r.db.WithContext(ctx).
			Table("licenses AS l").
			Joins("JOIN license_keys lk ON lk.id = l.license_key_id").
			Joins("JOIN customers c ON c.id = lk.customer_id").
			Joins("LEFT JOIN brands b ON b.id = lk.brand_id").
			Joins("LEFT JOIN products p ON p.id = l.product_id").
			Where("c.email = ?", email)
	}

	var total int64
	if err := byEmail().Count(&total).Error; err != nil {
		return nil, 0, translateError(err, "licenses")
	}

	var rows []listingRow
	err := byEmail().
		Select(`l.id AS license_id,
			lk.license_key AS license_key,
			COALESCE(b.name, '') AS brand_name,
			COALESCE(p.code, '') AS product_code,
			l.status AS status,
			l.expires_at AS expires_at,
			l.created_at AS created_at,
			(SELECT COUNT(*) FROM activations a WHERE a.license_id = l.id AND a.deactivated_at IS NULL) AS active_seats`).
		Order("l.created_at ASC, l.id ASC").
		Limit(limit).
		Offset(offset).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, translateError(err, "licenses")
	}

	out := make([]domain.LicenseListing, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.LicenseListing{
			LicenseID:   row.LicenseID,
			LicenseKey:  row.LicenseKey,
			BrandName:   row.BrandName,
			ProductCode: row.ProductCode,
			Status:      domain.LicenseStatus(row.Status),
			ExpiresAt:   row.ExpiresAt,
			ActiveSeats: row.ActiveSeats,
			CreatedAt:   row.CreatedAt,
		})
	}
	return out, total, nil
}

type activationRepository struct {
	db *gorm.DB
}

func (r *activationRepository) Create(ctx context.Context, activation domain.Activation) error {
	row := activationModel{
		ID:                 activation.ID,
		LicenseID:          activation.LicenseID,
		InstanceIdentifier: activation.InstanceIdentifier,
		DeactivatedAt:      activation.DeactivatedAt,
		CreatedAt:          activation.CreatedAt,
		UpdatedAt:          activation.UpdatedAt,
	}
	return translateError(r.db.WithContext(ctx).Omit(clause.Associations).Create(&row).Error, "activation")
}

func (r *activationRepository) FindActive(ctx context.Context, licenseID uuid.UUID, instanceIdentifier string) (domain.Activation, error) {
	var row activationModel
	err := r.db.WithContext(ctx).
		Where("license_id = ?", licenseID).
		Where("instance_identifier = ?", instanceIdentifier).
		Where("deactivated_at IS NULL").
		Take(&row).Error
	if err != nil {
		return domain.Activation{}, translateError(err, "activation")
	}
	return toDomainActivation(row), nil
}

func (r *activationRepository) LockActiveByKey(ctx context.Context, licenseKey, instanceIdentifier, productCode string) ([]domain.Activation, error) {
	q := r.db.WithContext(ctx).
		Model(&activationModel{}).
		Select("activations.*").
		Joins("JOIN licenses ON licenses.id = activations.license_id").
		Joins("JOIN license_keys ON license_keys.id = licenses.license_key_id").
		Where("license_keys.license_key = ?", licenseKey).
		Where("activations.instance_identifier = ?", instanceIdentifier).
		Where("activations.deactivated_at IS NULL")
	if productCode != "" {
		q = q.Joins("JOIN products ON products.id = licenses.product_id").
			Where("products.code = ?", productCode)
	}

	var rows []activationModel
	err := q.Order("activations.id ASC").
		Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "activations"}}).
		Find(&rows).Error
	if err != nil {
		return nil, translateError(err, "activations")
	}
	out := make([]domain.Activation, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainActivation(row))
	}
	return out, nil
}

func (r *activationRepository) CountActive(ctx context.Context, licenseID uuid.UUID) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&activationModel{}).
		Where("license_id = ?", licenseID).
		Where("deactivated_at IS NULL").
		Count(&n).Error
	if err != nil {
		return 0, translateError(err, "activations")
	}
	return int(n), nil
}

func (r *activationRepository) Deactivate(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&activationModel{}).
		Where("id = ?", id).
		Where("deactivated_at IS NULL").
		Updates(map[string]any{
			"deactivated_at": at,
			"updated_at":     at,
		})
	if res.Error != nil {
		return translateError(res.Error, "activation")
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: active activation not found", domain.ErrNotFound)
	}
	return nil
}

func (r *activationRepository) DeactivateAllActive(ctx context.Context, licenseID uuid.UUID, at time.Time) (int, error) {
	res := r.db.WithContext(ctx).
		Model(&activationModel{}).
		Where("license_id = ?", licenseID).
		Where("deactivated_at IS NULL").
		Updates(map[string]any{
			"deactivated_at": at,
			"updated_at":     at,
		})
	if res.Error != nil {
		return 0, translateError(res.Error, "activations")
	}
	return int(res.RowsAffected), nil
}

func (r *activationRepository) ListByLicense(ctx context.Context, licenseID uuid.UUID) ([]domain.Activation, error) {
	var rows []activationModel
	err := r.db.WithContext(ctx).
		Where("license_id = ?", licenseID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, translateError(err, "activations")
	}
	out := make([]domain.Activation, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainActivation(row))
	}
	return out, nil
}

type auditLogRepository struct {
	db *gorm.DB
}

func (r *auditLogRepository) Append(ctx context.Context, entry domain.AuditEntry) error {
	metadata := datatypes.JSONMap(entry.Metadata)
	if metadata == nil {
		metadata = datatypes.JSONMap{}
	}
	row := auditLogModel{
		ID:         entry.ID,
		ActorType:  string(entry.ActorType),
		ActorID:    entry.ActorID,
		Action:     entry.Action,
		TargetType: entry.TargetType,
		TargetID:   entry.TargetID,
		Metadata:   metadata,
		CreatedAt:  entry.CreatedAt,
	}
	return translateError(r.db.WithContext(ctx).Create(&row).Error, "audit entry")
}

func (r *auditLogRepository) ListByTargets(ctx context.Context, targetIDs []string) ([]domain.AuditEntry, error) {
	if len(targetIDs) == 0 {
		return []domain.AuditEntry{}, nil
	}
	var rows []auditLogModel
	err := r.db.WithContext(ctx).
		Where("target_id IN ?", targetIDs).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, translateError(err, "audit entries")
	}
	out := make([]domain.AuditEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainAuditEntry(row))
	}
	return out, nil
}
