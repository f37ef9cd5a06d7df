package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/johnson-oragui/multi-tenant-license-service/internal/domain"
	"github.com/johnson-oragui/multi-tenant-license-service/internal/ports"
)

// Provision issues a license for a product the calling brand owns. The
// customer and the brand's license key for that customer are created on
// first use and reused afterwards.
func (s *Service) Provision(ctx context.Context, in ProvisionInput) (result ProvisionResult, err error) {
	ctx, span := s.startSpan(ctx, "provision")
	defer func() { endSpan(span, err) }()

	email, err := s.normalizeEmail(in.CustomerEmail)
	if err != nil {
		return ProvisionResult{}, err
	}
	if in.ExpiresAt.IsZero() {
		return ProvisionResult{}, fmt.Errorf("%w: expires_at is required", domain.ErrInvalidInput)
	}
	seatLimit, err := s.resolveSeatLimit(in.SeatLimit)
	if err != nil {
		return ProvisionResult{}, err
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		product, err := tx.Products().GetByID(ctx, in.ProductID)
		if err != nil {
			return fmt.Errorf("load product: %w", err)
		}
		if product.BrandID != in.BrandID {
			return fmt.Errorf("%w: product %s", domain.ErrCrossTenant, product.ID)
		}

		now := s.nowFn()
		customer, err := tx.Customers().Ensure(ctx, domain.Customer{
			ID:        newID(),
			Email:     email,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("ensure customer: %w", err)
		}
		key, err := s.ensureLicenseKey(ctx, tx, in.BrandID, customer.ID)
		if err != nil {
			return err
		}

		license := domain.License{
			ID:           newID(),
			LicenseKeyID: key.ID,
			ProductID:    product.ID,
			Status:       domain.LicenseStatusValid,
			ExpiresAt:    in.ExpiresAt.UTC(),
			SeatLimit:    seatLimit,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.Licenses().Create(ctx, license); err != nil {
			return fmt.Errorf("create license: %w", err)
		}
		if err := s.recordAudit(ctx, tx, BrandActor(in.BrandID), domain.AuditActionLicenseProvisioned,
			domain.AuditTargetLicense, license.ID.String(), map[string]any{
				"product_id":     product.ID.String(),
				"customer_email": email,
			}, now); err != nil {
			return err
		}

		result = ProvisionResult{
			LicenseID:  license.ID,
			LicenseKey: key.Key,
			ProductID:  product.ID,
			Status:     license.Status,
			ExpiresAt:  license.ExpiresAt,
			SeatLimit:  license.SeatLimit,
		}
		return nil
	})
	if err != nil {
		s.logFailure("provision", err,
			zap.String("brand_id", in.BrandID.String()),
			zap.String("product_id", in.ProductID.String()),
		)
		return ProvisionResult{}, err
	}
	s.metrics.AuditEntry(domain.AuditActionLicenseProvisioned)
	s.logSuccess("license provisioned", "provision",
		zap.String("brand_id", in.BrandID.String()),
		zap.String("license_id", result.LicenseID.String()),
	)
	return result, nil
}

func (s *Service) ensureLicenseKey(ctx context.Context, tx ports.Tx, brandID, customerID uuid.UUID) (domain.LicenseKey, error) {
	for attempt := 0; attempt < s.cfg.KeyGenerationAttempts; attempt++ {
		raw, err := generateLicenseKey()
		if err != nil {
			return domain.LicenseKey{}, err
		}
		now := s.nowFn()
		key, err := tx.LicenseKeys().Ensure(ctx, domain.LicenseKey{
			ID:         newID(),
			Key:        raw,
			BrandID:    brandID,
			CustomerID: customerID,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		if err != nil {
			return domain.LicenseKey{}, fmt.Errorf("ensure license key: %w", err)
		}
		return key, nil
	}
	return domain.LicenseKey{}, fmt.Errorf("ensure license key: %w: no unique key after %d attempts", domain.ErrConflict, s.cfg.KeyGenerationAttempts)
}

func (s *Service) resolveSeatLimit(requested *int) (*int, error) {
	if requested != nil {
		if *requested < 1 {
			return nil, fmt.Errorf("%w: seat_limit must be a positive integer", domain.ErrInvalidInput)
		}
		v := *requested
		return &v, nil
	}
	if s.cfg.DefaultSeatLimit > 0 {
		v := s.cfg.DefaultSeatLimit
		return &v, nil
	}
	return nil, nil
}

// CreateBrand registers a tenant and returns its API key. The plaintext key
// is not recoverable afterwards.
func (s *Service) CreateBrand(ctx context.Context, name string) (result CreateBrandResult, err error) {
	ctx, span := s.startSpan(ctx, "create_brand")
	defer func() { endSpan(span, err) }()

	name = strings.TrimSpace(name)
	if name == "" {
		return CreateBrandResult{}, fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	apiKey, prefix, err := generateAPIKey()
	if err != nil {
		return CreateBrandResult{}, err
	}
	hash, err := s.hasher.Hash(apiKey)
	if err != nil {
		return CreateBrandResult{}, fmt.Errorf("hash api key: %w", err)
	}

	now := s.nowFn()
	brand := domain.Brand{
		ID:           newID(),
		Name:         name,
		APIKeyPrefix: prefix,
		APIKeyHash:   hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		if err := tx.Brands().Create(ctx, brand); err != nil {
			return fmt.Errorf("create brand: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logFailure("create_brand", err)
		return CreateBrandResult{}, err
	}
	s.logSuccess("brand created", "create_brand", zap.String("brand_id", brand.ID.String()))
	return CreateBrandResult{Brand: brand, APIKey: apiKey}, nil
}

// AuthenticateBrand resolves an API key to its brand.
func (s *Service) AuthenticateBrand(ctx context.Context, apiKey string) (brand domain.Brand, err error) {
	ctx, span := s.startSpan(ctx, "authenticate_brand")
	defer func() { endSpan(span, err) }()

	prefix, ok := parseAPIKeyPrefix(apiKey)
	if !ok {
		return domain.Brand{}, domain.ErrUnauthorized
	}
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		var err error
		brand, err = tx.Brands().GetByAPIKeyPrefix(ctx, prefix)
		return err
	})
	if errors.Is(err, domain.ErrNotFound) {
		_ = s.hasher.CompareDummy(strings.TrimSpace(apiKey))
		return domain.Brand{}, domain.ErrUnauthorized
	}
	if err != nil {
		return domain.Brand{}, fmt.Errorf("load brand: %w", err)
	}
	if err := s.hasher.Compare(brand.APIKeyHash, strings.TrimSpace(apiKey)); err != nil {
		return domain.Brand{}, domain.ErrUnauthorized
	}
	return brand, nil
}

func (s *Service) CreateProduct(ctx context.Context, in CreateProductInput) (product domain.Product, err error) {
	ctx, span := s.startSpan(ctx, "create_product")
	defer func() { endSpan(span, err) }()

	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if in.Code == "" || in.Name == "" {
		return domain.Product{}, fmt.Errorf("%w: code and name are required", domain.ErrInvalidInput)
	}
	now := s.nowFn()
	product = domain.Product{
		ID:        newID(),
		BrandID:   in.BrandID,
		Code:      in.Code,
		Name:      in.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		if _, err := tx.Brands().GetByID(ctx, in.BrandID); err != nil {
			return fmt.Errorf("load brand: %w", err)
		}
		if err := tx.Products().Create(ctx, product); err != nil {
			return fmt.Errorf("create product: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logFailure("create_product", err, zap.String("brand_id", in.BrandID.String()))
		return domain.Product{}, err
	}
	s.logSuccess("product created", "create_product",
		zap.String("brand_id", in.BrandID.String()),
		zap.String("product_id", product.ID.String()),
	)
	return product, nil
}

func (s *Service) ListProducts(ctx context.Context, brandID uuid.UUID) (products []domain.Product, err error) {
	ctx, span := s.startSpan(ctx, "list_products")
	defer func() { endSpan(span, err) }()

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		var err error
		products, err = tx.Products().ListByBrand(ctx, brandID)
		return err
	})
	if err != nil {
		s.logFailure("list_products", err, zap.String("brand_id", brandID.String()))
		return nil, err
	}
	return products, nil
}

func (s *Service) normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", domain.ErrInvalidInput)
	}
	if err := s.validate.Var(email, "email,max=254"); err != nil {
		return "", fmt.Errorf("%w: invalid email", domain.ErrInvalidInput)
	}
	return email, nil
}
