package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/johnson-oragui/multi-tenant-license-service/internal/domain"
	"github.com/johnson-oragui/multi-tenant-license-service/internal/ports"
)

// GetStatus summarises every license under a key. It is read-only.
func (s *Service) GetStatus(ctx context.Context, licenseKey string) (result LicenseStatusResult, err error) {
	ctx, span := s.startSpan(ctx, "get_status")
	defer func() { endSpan(span, err) }()

	licenseKey = strings.TrimSpace(licenseKey)
	if licenseKey == "" {
		return LicenseStatusResult{}, fmt.Errorf("%w: license_key is required", domain.ErrInvalidInput)
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		key, err := tx.LicenseKeys().GetByKey(ctx, licenseKey)
		if err != nil {
			return fmt.Errorf("load license key: %w", err)
		}
		var email *string
		if key.CustomerID != uuid.Nil {
			customer, err := tx.Customers().GetByID(ctx, key.CustomerID)
			if err != nil {
				return fmt.Errorf("load customer: %w", err)
			}
			email = &customer.Email
		}
		licenses, err := tx.Licenses().ListByLicenseKey(ctx, key.ID)
		if err != nil {
			return fmt.Errorf("list licenses: %w", err)
		}

		now := s.nowFn()
		result = LicenseStatusResult{
			LicenseKey:    key.Key,
			CustomerEmail: email,
			Entitlements:  make([]Entitlement, 0, len(licenses)),
		}
		for _, lp := range licenses {
			activeSeats, err := tx.Activations().CountActive(ctx, lp.License.ID)
			if err != nil {
				return fmt.Errorf("count active activations: %w", err)
			}
			valid := lp.License.IsActive(now)
			if valid {
				result.Valid = true
			}
			result.Entitlements = append(result.Entitlements, Entitlement{
				LicenseID:      lp.License.ID,
				ProductCode:    lp.Product.Code,
				Status:         lp.License.Status,
				ExpiresAt:      lp.License.ExpiresAt,
				SeatLimit:      lp.License.SeatLimit,
				ActiveSeats:    activeSeats,
				RemainingSeats: lp.License.RemainingSeats(activeSeats),
				Valid:          valid,
			})
		}
		return nil
	})
	if err != nil {
		s.logFailure("get_status", err, zap.String("license_key", domain.MaskKey(licenseKey)))
		return LicenseStatusResult{}, err
	}
	return result, nil
}

// ListByCustomerEmail pages through every license issued to an email, across
// all brands, oldest first.
func (s *Service) ListByCustomerEmail(ctx context.Context, in ListByEmailInput) (page LicenseListPage, err error) {
	ctx, span := s.startSpan(ctx, "list_by_customer_email")
	defer func() { endSpan(span, err) }()

	email, err := s.normalizeEmail(in.Email)
	if err != nil {
		return LicenseListPage{}, err
	}
	limit, offset := s.clampPage(in.Limit, in.Offset)

	var rows []domain.LicenseListing
	var total int64
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		var err error
		rows, total, err = tx.Licenses().ListByCustomerEmail(ctx, email, limit, offset)
		if err != nil {
			return fmt.Errorf("list licenses by email: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logFailure("list_by_customer_email", err)
		return LicenseListPage{}, err
	}

	now := s.nowFn()
	page = LicenseListPage{
		Count:   total,
		Limit:   limit,
		Offset:  offset,
		Results: make([]LicenseListItem, 0, len(rows)),
	}
	for _, row := range rows {
		license := domain.License{Status: row.Status, ExpiresAt: row.ExpiresAt}
		page.Results = append(page.Results, LicenseListItem{LicenseListing: row, IsActive: license.IsActive(now)})
	}
	if next := offset + limit; int64(next) < total {
		page.NextOffset = &next
	}
	if offset > 0 {
		prev := offset - limit
		if prev < 0 {
			prev = 0
		}
		page.PreviousOffset = &prev
	}
	return page, nil
}

// AuditTrail returns the audit entries of a license and its activations.
func (s *Service) AuditTrail(ctx context.Context, brandID, licenseID uuid.UUID) (entries []domain.AuditEntry, err error) {
	ctx, span := s.startSpan(ctx, "audit_trail")
	defer func() { endSpan(span, err) }()

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		license, err := tx.Licenses().GetByID(ctx, licenseID)
		if err != nil {
			return fmt.Errorf("load license: %w", err)
		}
		if err := s.authorizeLicense(ctx, tx, license, BrandActor(brandID)); err != nil {
			return err
		}
		activations, err := tx.Activations().ListByLicense(ctx, license.ID)
		if err != nil {
			return fmt.Errorf("list activations: %w", err)
		}
		targets := make([]string, 0, len(activations)+1)
		targets = append(targets, license.ID.String())
		for _, a := range activations {
			targets = append(targets, a.ID.String())
		}
		entries, err = tx.AuditLog().ListByTargets(ctx, targets)
		if err != nil {
			return fmt.Errorf("list audit entries: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logFailure("audit_trail", err, zap.String("license_id", licenseID.String()))
		return nil, err
	}
	return entries, nil
}

func (s *Service) clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = s.cfg.DefaultPageSize
	}
	if limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
