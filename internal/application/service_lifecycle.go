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

// ValidateAndActivate binds a license to an instance. The license row stays
// locked from the status checks through the activation insert, so concurrent
// callers cannot both pass the seat check.
func (s *Service) ValidateAndActivate(ctx context.Context, in ActivateInput) (result ActivationResult, err error) {
	ctx, span := s.startSpan(ctx, "validate_and_activate")
	defer func() { endSpan(span, err) }()

	in.LicenseKey = strings.TrimSpace(in.LicenseKey)
	in.ProductCode = strings.TrimSpace(in.ProductCode)
	in.InstanceIdentifier = strings.TrimSpace(in.InstanceIdentifier)
	if in.LicenseKey == "" || in.ProductCode == "" || in.InstanceIdentifier == "" {
		return ActivationResult{}, fmt.Errorf("%w: license_key, product_code and instance_identifier are required", domain.ErrInvalidInput)
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		result = ActivationResult{}
		license, err := tx.Licenses().LockByKeyAndProductCode(ctx, in.LicenseKey, in.ProductCode)
		if err != nil {
			return fmt.Errorf("lock license: %w", err)
		}
		result.LicenseID = license.ID

		now := s.nowFn()
		if rejection := license.CheckActivatable(now); rejection != "" {
			result.Rejection = rejection
			result.Message = rejection.Message()
			return nil
		}

		existing, err := tx.Activations().FindActive(ctx, license.ID, in.InstanceIdentifier)
		switch {
		case err == nil:
			result.Success = true
			result.ActivationID = existing.ID
			result.Status = ActivationStatusActive
			result.Message = "license already activated on this instance"
			return nil
		case !errors.Is(err, domain.ErrNotFound):
			return fmt.Errorf("find active activation: %w", err)
		}

		activeSeats, err := tx.Activations().CountActive(ctx, license.ID)
		if err != nil {
			return fmt.Errorf("count active activations: %w", err)
		}
		if license.SeatsExhausted(activeSeats) {
			result.Rejection = domain.RejectionSeatLimitExceeded
			result.Message = domain.RejectionSeatLimitExceeded.Message()
			return nil
		}

		activation := domain.Activation{
			ID:                 newID(),
			LicenseID:          license.ID,
			InstanceIdentifier: in.InstanceIdentifier,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := tx.Activations().Create(ctx, activation); err != nil {
			return fmt.Errorf("create activation: %w", err)
		}
		if err := s.recordAudit(ctx, tx, SystemActor(), domain.AuditActionLicenseActivated,
			domain.AuditTargetLicense, license.ID.String(), map[string]any{
				"instance_identifier": in.InstanceIdentifier,
				"activation_id":       activation.ID.String(),
				"product_code":        in.ProductCode,
			}, now); err != nil {
			return err
		}

		result.Success = true
		result.ActivationID = activation.ID
		result.Status = ActivationStatusActivated
		result.Message = "license successfully activated"
		return nil
	})
	if err != nil {
		s.logFailure("validate_and_activate", err,
			zap.String("license_key", domain.MaskKey(in.LicenseKey)),
			zap.String("product_code", in.ProductCode),
		)
		return ActivationResult{}, err
	}

	label := result.Status
	if !result.Success {
		label = strings.ToLower(string(result.Rejection))
		s.logger.Info("license activation rejected",
			zap.String("operation", "validate_and_activate"),
			zap.String("outcome", "rejected"),
			zap.String("license_id", result.LicenseID.String()),
			zap.String("rejection", string(result.Rejection)),
		)
	} else {
		if result.Status == ActivationStatusActivated {
			s.metrics.AuditEntry(domain.AuditActionLicenseActivated)
		}
		s.logSuccess("license activation accepted", "validate_and_activate",
			zap.String("license_id", result.LicenseID.String()),
			zap.String("activation_id", result.ActivationID.String()),
			zap.String("status", result.Status),
		)
	}
	s.metrics.ActivationResult(label)
	return result, nil
}

// Deactivate releases the seat held by an active activation. It never creates
// rows; an instance with no active activation is ErrNotFound.
func (s *Service) Deactivate(ctx context.Context, in DeactivateInput) (err error) {
	ctx, span := s.startSpan(ctx, "deactivate")
	defer func() { endSpan(span, err) }()

	in.LicenseKey = strings.TrimSpace(in.LicenseKey)
	in.InstanceIdentifier = strings.TrimSpace(in.InstanceIdentifier)
	in.ProductCode = strings.TrimSpace(in.ProductCode)
	if in.LicenseKey == "" || in.InstanceIdentifier == "" {
		return fmt.Errorf("%w: license_key and instance_identifier are required", domain.ErrInvalidInput)
	}

	var deactivated domain.Activation
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		matches, err := tx.Activations().LockActiveByKey(ctx, in.LicenseKey, in.InstanceIdentifier, in.ProductCode)
		if err != nil {
			return fmt.Errorf("lock activation: %w", err)
		}
		switch len(matches) {
		case 0:
			return fmt.Errorf("%w: active activation not found", domain.ErrNotFound)
		case 1:
		default:
			return fmt.Errorf("%w: instance is active on %d products, product_code is required", domain.ErrConflict, len(matches))
		}
		deactivated = matches[0]

		now := s.nowFn()
		if err := tx.Activations().Deactivate(ctx, deactivated.ID, now); err != nil {
			return fmt.Errorf("deactivate activation: %w", err)
		}
		return s.recordAudit(ctx, tx, SystemActor(), domain.AuditActionLicenseDeactivated,
			domain.AuditTargetActivation, deactivated.ID.String(), map[string]any{
				"instance_identifier": in.InstanceIdentifier,
				"license_id":          deactivated.LicenseID.String(),
			}, now)
	})
	if err != nil {
		s.logFailure("deactivate", err, zap.String("license_key", domain.MaskKey(in.LicenseKey)))
		return err
	}
	s.metrics.AuditEntry(domain.AuditActionLicenseDeactivated)
	s.logSuccess("license instance deactivated", "deactivate",
		zap.String("license_id", deactivated.LicenseID.String()),
		zap.String("activation_id", deactivated.ID.String()),
	)
	return nil
}

// Suspend moves VALID to SUSPENDED. Suspending a suspended license is a no-op.
func (s *Service) Suspend(ctx context.Context, in SuspendInput) (result TransitionResult, err error) {
	ctx, span := s.startSpan(ctx, "suspend")
	defer func() { endSpan(span, err) }()

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		license, err := s.lockOwnedLicense(ctx, tx, in.LicenseID, in.Actor)
		if err != nil {
			return err
		}
		result = TransitionResult{LicenseID: license.ID, Status: license.Status}
		if license.Status == domain.LicenseStatusSuspended {
			return nil
		}
		if !license.Status.CanTransitionTo(domain.LicenseStatusSuspended) {
			return domain.TransitionError(license.Status, domain.LicenseStatusSuspended)
		}

		now := s.nowFn()
		if err := tx.Licenses().UpdateStatus(ctx, license.ID, domain.LicenseStatusSuspended, now); err != nil {
			return fmt.Errorf("update license status: %w", err)
		}
		if in.DeactivateExisting {
			n, err := tx.Activations().DeactivateAllActive(ctx, license.ID, now)
			if err != nil {
				return fmt.Errorf("deactivate activations: %w", err)
			}
			result.DeactivatedSeats = n
		}
		if err := s.recordAudit(ctx, tx, in.Actor, domain.AuditActionLicenseSuspended,
			domain.AuditTargetLicense, license.ID.String(), map[string]any{
				"reason":               optionalString(in.Reason),
				"deactivated_existing": in.DeactivateExisting,
				"deactivated_count":    result.DeactivatedSeats,
			}, now); err != nil {
			return err
		}
		result.Status = domain.LicenseStatusSuspended
		result.Changed = true
		return nil
	})
	if err != nil {
		s.logFailure("suspend", err, zap.String("license_id", in.LicenseID.String()))
		return TransitionResult{}, err
	}
	s.afterTransition("license suspended", "suspend", domain.AuditActionLicenseSuspended, result)
	return result, nil
}

// Reinstate moves SUSPENDED back to VALID. Any other starting status fails.
func (s *Service) Reinstate(ctx context.Context, in ReinstateInput) (result TransitionResult, err error) {
	ctx, span := s.startSpan(ctx, "reinstate")
	defer func() { endSpan(span, err) }()

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		license, err := s.lockOwnedLicense(ctx, tx, in.LicenseID, in.Actor)
		if err != nil {
			return err
		}
		if !license.Status.CanTransitionTo(domain.LicenseStatusValid) {
			return domain.TransitionError(license.Status, domain.LicenseStatusValid)
		}

		now := s.nowFn()
		if err := tx.Licenses().UpdateStatus(ctx, license.ID, domain.LicenseStatusValid, now); err != nil {
			return fmt.Errorf("update license status: %w", err)
		}
		if err := s.recordAudit(ctx, tx, in.Actor, domain.AuditActionLicenseReinstated,
			domain.AuditTargetLicense, license.ID.String(), nil, now); err != nil {
			return err
		}
		result = TransitionResult{LicenseID: license.ID, Status: domain.LicenseStatusValid, Changed: true}
		return nil
	})
	if err != nil {
		s.logFailure("reinstate", err, zap.String("license_id", in.LicenseID.String()))
		return TransitionResult{}, err
	}
	s.afterTransition("license reinstated", "reinstate", domain.AuditActionLicenseReinstated, result)
	return result, nil
}

// Revoke cancels a license permanently and releases every seat. Revoking a
// cancelled license is a no-op.
func (s *Service) Revoke(ctx context.Context, in RevokeInput) (result TransitionResult, err error) {
	ctx, span := s.startSpan(ctx, "revoke")
	defer func() { endSpan(span, err) }()

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		license, err := s.lockOwnedLicense(ctx, tx, in.LicenseID, in.Actor)
		if err != nil {
			return err
		}
		result = TransitionResult{LicenseID: license.ID, Status: license.Status}
		if license.Status == domain.LicenseStatusCancelled {
			return nil
		}
		if !license.Status.CanTransitionTo(domain.LicenseStatusCancelled) {
			return domain.TransitionError(license.Status, domain.LicenseStatusCancelled)
		}

		now := s.nowFn()
		if err := tx.Licenses().UpdateStatus(ctx, license.ID, domain.LicenseStatusCancelled, now); err != nil {
			return fmt.Errorf("update license status: %w", err)
		}
		n, err := tx.Activations().DeactivateAllActive(ctx, license.ID, now)
		if err != nil {
			return fmt.Errorf("deactivate activations: %w", err)
		}
		if err := s.recordAudit(ctx, tx, in.Actor, domain.AuditActionLicenseRevoked,
			domain.AuditTargetLicense, license.ID.String(), map[string]any{
				"reason": optionalString(in.Reason),
			}, now); err != nil {
			return err
		}
		result.Status = domain.LicenseStatusCancelled
		result.Changed = true
		result.DeactivatedSeats = n
		return nil
	})
	if err != nil {
		s.logFailure("revoke", err, zap.String("license_id", in.LicenseID.String()))
		return TransitionResult{}, err
	}
	s.afterTransition("license revoked", "revoke", domain.AuditActionLicenseRevoked, result)
	return result, nil
}

// lockOwnedLicense locks the license row and, for brand actors, checks the
// license was issued by that brand.
func (s *Service) lockOwnedLicense(ctx context.Context, tx ports.Tx, licenseID uuid.UUID, actor Actor) (domain.License, error) {
	license, err := tx.Licenses().LockByID(ctx, licenseID)
	if err != nil {
		return domain.License{}, fmt.Errorf("lock license: %w", err)
	}
	if err := s.authorizeLicense(ctx, tx, license, actor); err != nil {
		return domain.License{}, err
	}
	return license, nil
}

func (s *Service) authorizeLicense(ctx context.Context, tx ports.Tx, license domain.License, actor Actor) error {
	if actor.Type != domain.ActorTypeBrand {
		return nil
	}
	key, err := tx.LicenseKeys().GetByID(ctx, license.LicenseKeyID)
	if err != nil {
		return fmt.Errorf("load license key: %w", err)
	}
	if key.BrandID != actor.BrandID {
		return fmt.Errorf("%w: license %s", domain.ErrCrossTenant, license.ID)
	}
	return nil
}

func (s *Service) afterTransition(msg, operation, action string, result TransitionResult) {
	if !result.Changed {
		s.logger.Info("license transition skipped",
			zap.String("operation", operation),
			zap.String("outcome", "noop"),
			zap.String("license_id", result.LicenseID.String()),
			zap.String("status", string(result.Status)),
		)
		return
	}
	s.metrics.AuditEntry(action)
	s.logSuccess(msg, operation,
		zap.String("license_id", result.LicenseID.String()),
		zap.Int("deactivated_seats", result.DeactivatedSeats),
	)
}

func optionalString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
