package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/johnson-oragui/multi-tenant-license-service/internal/domain"
	"github.com/johnson-oragui/multi-tenant-license-service/internal/ports"
)

type brandRepo struct{ t *tx }

func (r brandRepo) Create(_ context.Context, brand domain.Brand) error {
	s := r.t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.brands {
		if b.Name == brand.Name || b.APIKeyPrefix == brand.APIKeyPrefix {
			return fmt.Errorf("%w: brand already exists", domain.ErrConflict)
		}
	}
	s.brands[brand.ID] = brand
	r.t.journal(func() { delete(s.brands, brand.ID) })
	return nil
}

func (r brandRepo) GetByID(_ context.Context, id uuid.UUID) (domain.Brand, error) {
	s := r.t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.brands[id]
	if !ok {
		return domain.Brand{}, domain.ErrNotFound
	}
	return b, nil
}

func (r brandRepo) GetByAPIKeyPrefix(_ context.Context, prefix string) (domain.Brand, error) {
	s := r.t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.brands {
		if b.APIKeyPrefix == prefix {
			return b, nil
		}
	}
	return domain.Brand{}, domain.ErrNotFound
}

type productRepo struct{ t *tx }

func (r productRepo) Create(_ context.Context, product domain.Product) error {
	s := r.t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.BrandID == product.BrandID && p.Code == product.Code {
			return fmt.Errorf("%w: product code already exists for brand", domain.ErrConflict)
		}
	}
	s.products[product.ID] = product
	r.t.journal(func() { delete(s.products, product.ID) })
	return nil
}

func (r productRepo) GetByID(_ context.Context, id uuid.UUID) (domain.Product, error) {
	s := r.t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, domain.ErrNotFound
	}
	return p, nil
}

func (r productRepo) ListByBrand(_ context.Context, brandID uuid.UUID) ([]domain.Product, error) {
	s := r.t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Product, 0)
	for _, p := range s.products {
		if p.BrandID == brandID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

type customerRepo struct{ t *tx }

func (r customerRepo) Ensure(ctx context.Context, candidate domain.Customer) (domain.Customer, error) {
	s := r.t.store
	for {
		s.mu.Lock()
		existingID, found := uuid.Nil, false
		for id, c := range s.customers {
			if c.Email == candidate.Email {
				existingID, found = id, true
				break
			}
		}
		if !found {
			s.customers[candidate.ID] = candidate
			r.t.lockFresh(candidate.ID)
			r.t.journal(func() { delete(s.customers, candidate.ID) })
			s.mu.Unlock()
			return candidate, nil
		}
		s.mu.Unlock()

		// An uncommitted insert by another transaction may still roll back.
		if err := r.t.await(ctx, existingID); err != nil {
			return domain.Customer{}, err
		}
		s.mu.Lock()
		c, ok := s.customers[existingID]
		s.mu.Unlock()
		if ok {
			return c, nil
		}
	}
}

func (r customerRepo) GetByID(_ context.Context, id uuid.UUID) (domain.Customer, error) {
	s := r.t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[id]
	if !ok {
		return domain.Customer{}, domain.ErrNotFound
	}
	return c, nil
}

type licenseKeyRepo struct{ t *tx }

func (r licenseKeyRepo) Ensure(ctx context.Context, candidate domain.LicenseKey) (domain.LicenseKey, error) {
	s := r.t.store
	for {
		s.mu.Lock()
		existingID, found := uuid.Nil, false
		for id, k := range s.licenseKeys {
			if k.BrandID == candidate.BrandID && k.CustomerID == candidate.CustomerID {
				existingID, found = id, true
				break
			}
		}
		if !found {
			if _, err := s.licenseKeyByValue(candidate.Key); err == nil {
				s.mu.Unlock()
				return domain.LicenseKey{}, fmt.Errorf("%w: license key collision", domain.ErrConflict)
			}
			s.licenseKeys[candidate.ID] = candidate
			r.t.lockFresh(candidate.ID)
			r.t.journal(func() { delete(s.licenseKeys, candidate.ID) })
			s.mu.Unlock()
			return candidate, nil
		}
		s.mu.Unlock()

		if err := r.t.await(ctx, existingID); err != nil {
			return domain.LicenseKey{}, err
		}
		s.mu.Lock()
		k, ok := s.licenseKeys[existingID]
		s.mu.Unlock()
		if ok {
			return k, nil
		}
	}
}

func (r licenseKeyRepo) GetByID(_ context.Context, id uuid.UUID) (domain.LicenseKey, error) {
	s := r.t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.licenseKeys[id]
	if !ok {
		return domain.LicenseKey{}, domain.ErrNotFound
	}
	return k, nil
}

func (r licenseKeyRepo) GetByKey(_ context.Context, key string) (domain.LicenseKey, error) {
	s := r.t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.licenseKeyByValue(key)
}

// licenseKeyByValue expects store.mu to be held.
func (s *Store) licenseKeyByValue(key string) (domain.LicenseKey, error) {
	for _, k := range s.licenseKeys {
		if k.Key == key {
			return k, nil
		}
	}
	return domain.LicenseKey{}, domain.ErrNotFound
}

type licenseRepo struct{ t *tx }

func (r licenseRepo) Create(_ context.Context, license domain.License) error {
	s := r.t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.licenses {
		if l.LicenseKeyID == license.LicenseKeyID && l.ProductID == license.ProductID {
			return fmt.Errorf("%w: license key already holds this product", domain.ErrConflict)
		}
	}
	s.licenses[license.ID] = cloneLicense(license)
	r.t.lockFresh(license.ID)
	r.t.journal(func() { delete(s.licenses, license.ID) })
	return nil
}

func (r licenseRepo) GetByID(_ context.Context, id uuid.UUID) (domain.License, error) {
	s := r.t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.licenses[id]
	if !ok {
		return domain.License{}, domain.ErrNotFound
	}
	return cloneLicense(l), nil
}

func (r licenseRepo) LockByID(ctx context.Context, id uuid.UUID) (domain.License, error) {
	if err := r.t.lock(ctx, id); err != nil {
		return domain.License{}, err
	}
	return r.GetByID(ctx, id)
}

func (r licenseRepo) LockByKeyAndProductCode(ctx context.Context, licenseKey, productCode string) (domain.License, error) {
	s := r.t.store
	s.mu.Lock()
	id, err := s.licenseIDByKeyAndProduct(licenseKey, productCode)
	s.mu.Unlock()
	if err != nil {
		return domain.License{}, err
	}
	return r.LockByID(ctx, id)
}

// licenseIDByKeyAndProduct expects store.mu to be held.
func (s *Store) licenseIDByKeyAndProduct(licenseKey, productCode string) (uuid.UUID, error) {
	key, err := s.licenseKeyByValue(licenseKey)
	if err != nil {
		return uuid.Nil, err
	}
	for id, l := range s.licenses {
		if l.LicenseKeyID != key.ID {
			continue
		}
		if p, ok := s.products[l.ProductID]; ok && p.Code == productCode {
			return id, nil
		}
	}
	return uuid.Nil, domain.ErrNotFound
}

func (r licenseRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.LicenseStatus, at time.Time) error {
	if err := r.t.lock(ctx, id); err != nil {
		return err
	}
	s := r.t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.licenses[id]
	if !ok {
		return domain.ErrNotFound
	}
	next := cloneLicense(prev)
	next.Status = status
	next.UpdatedAt = at
	s.licenses[id] = next
	r.t.journal(func() { s.licenses[id] = prev })
	return nil
}

func (r licenseRepo) ListByLicenseKey(_ context.Context, licenseKeyID uuid.UUID) ([]ports.LicenseProduct, error) {
	s := r.t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ports.LicenseProduct, 0)
	for _, l := range s.licenses {
		if l.LicenseKeyID != licenseKeyID {
			continue
		}
		out = append(out, ports.LicenseProduct{License: cloneLicense(l), Product: s.products[l.ProductID]})
	}
	sort.Slice(out, func(i, j int) bool { return lessByCreation(out[i].License, out[j].License) })
	return out, nil
}

func (r licenseRepo) ListByCustomerEmail(_ context.Context, email string, limit, offset int) ([]domain.LicenseListing, int64, error) {
	s := r.t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]domain.License, 0)
	for _, l := range s.licenses {
		key, ok := s.licenseKeys[l.LicenseKeyID]
		if !ok {
			continue
		}
		if c, ok := s.customers[key.CustomerID]; ok && c.Email == email {
			matched = append(matched, l)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return lessByCreation(matched[i], matched[j]) })

	total := int64(len(matched))
	if offset >= len(matched) {
		return []domain.LicenseListing{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	out := make([]domain.LicenseListing, 0, end-offset)
	for _, l := range matched[offset:end] {
		key := s.licenseKeys[l.LicenseKeyID]
		out = append(out, domain.LicenseListing{
			LicenseID:   l.ID,
			LicenseKey:  key.Key,
			BrandName:   s.brands[key.BrandID].Name,
			ProductCode: s.products[l.ProductID].Code,
			Status:      l.Status,
			ExpiresAt:   l.ExpiresAt,
			ActiveSeats: s.countActive(l.ID),
			CreatedAt:   l.CreatedAt,
		})
	}
	return out, total, nil
}

type activationRepo struct{ t *tx }

func (r activationRepo) Create(_ context.Context, activation domain.Activation) error {
	s := r.t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.activations {
		if a.LicenseID == activation.LicenseID && a.InstanceIdentifier == activation.InstanceIdentifier && a.IsActive() {
			return fmt.Errorf("%w: instance already active on license", domain.ErrConflict)
		}
	}
	s.activations[activation.ID] = cloneActivation(activation)
	r.t.lockFresh(activation.ID)
	r.t.journal(func() { delete(s.activations, activation.ID) })
	return nil
}

func (r activationRepo) FindActive(_ context.Context, licenseID uuid.UUID, instanceIdentifier string) (domain.Activation, error) {
	s := r.t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.activations {
		if a.LicenseID == licenseID && a.InstanceIdentifier == instanceIdentifier && a.IsActive() {
			return cloneActivation(a), nil
		}
	}
	return domain.Activation{}, domain.ErrNotFound
}

func (r activationRepo) LockActiveByKey(ctx context.Context, licenseKey, instanceIdentifier, productCode string) ([]domain.Activation, error) {
	s := r.t.store
	match := func() []uuid.UUID {
		key, err := s.licenseKeyByValue(licenseKey)
		if err != nil {
			return nil
		}
		ids := make([]uuid.UUID, 0)
		for id, a := range s.activations {
			if !a.IsActive() || a.InstanceIdentifier != instanceIdentifier {
				continue
			}
			l, ok := s.licenses[a.LicenseID]
			if !ok || l.LicenseKeyID != key.ID {
				continue
			}
			if productCode != "" && s.products[l.ProductID].Code != productCode {
				continue
			}
			ids = append(ids, id)
		}
		return ids
	}

	s.mu.Lock()
	candidates := match()
	s.mu.Unlock()
	sortIDs(candidates)
	for _, id := range candidates {
		if err := r.t.lock(ctx, id); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Activation, 0, len(candidates))
	for _, id := range candidates {
		if a, ok := s.activations[id]; ok && a.IsActive() {
			out = append(out, cloneActivation(a))
		}
	}
	return out, nil
}

func (r activationRepo) CountActive(_ context.Context, licenseID uuid.UUID) (int, error) {
	s := r.t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countActive(licenseID), nil
}

// countActive expects store.mu to be held.
func (s *Store) countActive(licenseID uuid.UUID) int {
	n := 0
	for _, a := range s.activations {
		if a.LicenseID == licenseID && a.IsActive() {
			n++
		}
	}
	return n
}

func (r activationRepo) Deactivate(ctx context.Context, id uuid.UUID, at time.Time) error {
	if err := r.t.lock(ctx, id); err != nil {
		return err
	}
	s := r.t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.activations[id]; !ok || !a.IsActive() {
		return fmt.Errorf("%w: active activation not found", domain.ErrNotFound)
	}
	r.t.deactivateLocked(id, at)
	return nil
}

func (r activationRepo) DeactivateAllActive(ctx context.Context, licenseID uuid.UUID, at time.Time) (int, error) {
	s := r.t.store
	s.mu.Lock()
	ids := make([]uuid.UUID, 0)
	for id, a := range s.activations {
		if a.LicenseID == licenseID && a.IsActive() {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()
	sortIDs(ids)
	for _, id := range ids {
		if err := r.t.lock(ctx, id); err != nil {
			return 0, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if a, ok := s.activations[id]; ok && a.IsActive() {
			r.t.deactivateLocked(id, at)
			n++
		}
	}
	return n, nil
}

// deactivateLocked expects store.mu to be held.
func (t *tx) deactivateLocked(id uuid.UUID, at time.Time) {
	s := t.store
	prev := s.activations[id]
	next := cloneActivation(prev)
	stamp := at
	next.DeactivatedAt = &stamp
	next.UpdatedAt = at
	s.activations[id] = next
	t.journal(func() { s.activations[id] = prev })
}

func (r activationRepo) ListByLicense(_ context.Context, licenseID uuid.UUID) ([]domain.Activation, error) {
	s := r.t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Activation, 0)
	for _, a := range s.activations {
		if a.LicenseID == licenseID {
			out = append(out, cloneActivation(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

type auditRepo struct{ t *tx }

func (r auditRepo) Append(_ context.Context, entry domain.AuditEntry) error {
	s := r.t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.Metadata = domain.NormalizeMetadata(entry.Metadata)
	s.audit = append(s.audit, entry)
	r.t.journal(func() {
		for i := len(s.audit) - 1; i >= 0; i-- {
			if s.audit[i].ID == entry.ID {
				s.audit = append(s.audit[:i], s.audit[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (r auditRepo) ListByTargets(_ context.Context, targetIDs []string) ([]domain.AuditEntry, error) {
	want := make(map[string]struct{}, len(targetIDs))
	for _, id := range targetIDs {
		want[id] = struct{}{}
	}
	s := r.t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AuditEntry, 0)
	for _, e := range s.audit {
		if _, ok := want[e.TargetID]; ok {
			e.Metadata = domain.NormalizeMetadata(e.Metadata)
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func lessByCreation(a, b domain.License) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID.String() < b.ID.String()
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// sortIDs gives lock acquisition a stable order.
func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}

func cloneLicense(l domain.License) domain.License {
	if l.SeatLimit != nil {
		v := *l.SeatLimit
		l.SeatLimit = &v
	}
	return l
}

func cloneActivation(a domain.Activation) domain.Activation {
	if a.DeactivatedAt != nil {
		v := *a.DeactivatedAt
		a.DeactivatedAt = &v
	}
	return a
}
