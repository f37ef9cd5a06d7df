package http

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/johnson-oragui/multi-tenant-license-service/internal/application"
	"github.com/johnson-oragui/multi-tenant-license-service/internal/contracts"
	"github.com/johnson-oragui/multi-tenant-license-service/internal/domain"
)

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, r, http.StatusOK, "ok", nil)
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ready(r.Context()); err != nil {
		h.logOperationError(r, "readyz", http.StatusServiceUnavailable, "NOT_READY", "store unavailable", err)
		writeError(w, r, http.StatusServiceUnavailable, "NOT_READY", "store unavailable")
		return
	}
	writeSuccess(w, r, http.StatusOK, "ready", nil)
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	var req contracts.BrandSignupRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeValidationError(w, r, "brand_signup", err)
		return
	}
	res, err := h.service.CreateBrand(r.Context(), req.Name)
	if err != nil {
		h.writeMappedError(w, r, "brand_signup", err)
		return
	}
	writeSuccess(w, r, http.StatusCreated, "brand created; store the api key, it is not shown again", contracts.BrandSignupResponse{
		ID:        res.Brand.ID.String(),
		Name:      res.Brand.Name,
		APIKey:    res.APIKey,
		CreatedAt: res.Brand.CreatedAt,
	})
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	brand, _ := brandFromContext(r.Context())
	var req contracts.CreateProductRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeValidationError(w, r, "create_product", err)
		return
	}
	product, err := h.service.CreateProduct(r.Context(), application.CreateProductInput{
		BrandID: brand.ID,
		Code:    req.Code,
		Name:    req.Name,
	})
	if err != nil {
		h.writeMappedError(w, r, "create_product", err)
		return
	}
	writeSuccess(w, r, http.StatusCreated, "product created", toProductResponse(product))
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	brand, _ := brandFromContext(r.Context())
	products, err := h.service.ListProducts(r.Context(), brand.ID)
	if err != nil {
		h.writeMappedError(w, r, "list_products", err)
		return
	}
	out := make([]contracts.ProductResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	writeSuccess(w, r, http.StatusOK, "", out)
}

func (h *Handler) provision(w http.ResponseWriter, r *http.Request) {
	brand, _ := brandFromContext(r.Context())
	var req contracts.ProvisionRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeValidationError(w, r, "provision_license", err)
		return
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		h.writeValidationError(w, r, "provision_license", err)
		return
	}
	res, err := h.service.Provision(r.Context(), application.ProvisionInput{
		BrandID:       brand.ID,
		ProductID:     productID,
		CustomerEmail: req.CustomerEmail,
		ExpiresAt:     req.ExpiresAt,
		SeatLimit:     req.SeatLimit,
	})
	if err != nil {
		h.writeMappedError(w, r, "provision_license", err)
		return
	}
	writeSuccess(w, r, http.StatusCreated, "license provisioned", contracts.ProvisionResponse{
		LicenseID:  res.LicenseID.String(),
		LicenseKey: res.LicenseKey,
		ProductID:  res.ProductID.String(),
		Status:     string(res.Status),
		ExpiresAt:  res.ExpiresAt,
		SeatLimit:  res.SeatLimit,
	})
}

func (h *Handler) validateLicense(w http.ResponseWriter, r *http.Request) {
	var req contracts.ActivateRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeValidationError(w, r, "validate_and_activate", err)
		return
	}
	res, err := h.service.ValidateAndActivate(r.Context(), application.ActivateInput{
		LicenseKey:         req.LicenseKey,
		ProductCode:        req.ProductCode,
		InstanceIdentifier: req.InstanceIdentifier,
	})
	if err != nil {
		h.writeMappedError(w, r, "validate_and_activate", err)
		return
	}
	if !res.Success {
		code := string(res.Rejection)
		h.logOperationError(r, "validate_and_activate", http.StatusForbidden, code, res.Message, nil)
		writeError(w, r, http.StatusForbidden, code, res.Message)
		return
	}

	statusCode := http.StatusOK
	if res.Status == application.ActivationStatusActivated {
		statusCode = http.StatusCreated
	}
	writeSuccess(w, r, statusCode, res.Message, contracts.ActivationResponse{
		ActivationID: res.ActivationID.String(),
		LicenseID:    res.LicenseID.String(),
		Status:       res.Status,
	})
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	var req contracts.DeactivateRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeValidationError(w, r, "deactivate", err)
		return
	}
	err := h.service.Deactivate(r.Context(), application.DeactivateInput{
		LicenseKey:         req.LicenseKey,
		InstanceIdentifier: req.InstanceIdentifier,
		ProductCode:        req.ProductCode,
	})
	if err != nil {
		h.writeMappedError(w, r, "deactivate", err)
		return
	}
	writeSuccess(w, r, http.StatusOK, "instance deactivated", nil)
}

func (h *Handler) licenseStatus(w http.ResponseWriter, r *http.Request) {
	var req contracts.LicenseStatusRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeValidationError(w, r, "license_status", err)
		return
	}
	res, err := h.service.GetStatus(r.Context(), req.LicenseKey)
	if err != nil {
		h.writeMappedError(w, r, "license_status", err)
		return
	}
	out := contracts.LicenseStatusResponse{
		LicenseKey:    res.LicenseKey,
		CustomerEmail: res.CustomerEmail,
		Valid:         res.Valid,
		Entitlements:  make([]contracts.EntitlementResponse, 0, len(res.Entitlements)),
	}
	for _, e := range res.Entitlements {
		out.Entitlements = append(out.Entitlements, contracts.EntitlementResponse{
			LicenseID:      e.LicenseID.String(),
			Product:        e.ProductCode,
			Status:         string(e.Status),
			ExpiresAt:      e.ExpiresAt,
			SeatLimit:      e.SeatLimit,
			ActiveSeats:    e.ActiveSeats,
			RemainingSeats: e.RemainingSeats,
			Valid:          e.Valid,
		})
	}
	writeSuccess(w, r, http.StatusOK, "", out)
}

func (h *Handler) suspend(w http.ResponseWriter, r *http.Request) {
	brand, _ := brandFromContext(r.Context())
	licenseID, err := licenseIDParam(r)
	if err != nil {
		h.writeMappedError(w, r, "suspend_license", err)
		return
	}
	var req contracts.SuspendRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeValidationError(w, r, "suspend_license", err)
		return
	}
	res, err := h.service.Suspend(r.Context(), application.SuspendInput{
		LicenseID:          licenseID,
		Actor:              application.BrandActor(brand.ID),
		Reason:             trimmedReason(req.Reason),
		DeactivateExisting: req.DeactivateExisting,
	})
	if err != nil {
		h.writeMappedError(w, r, "suspend_license", err)
		return
	}
	writeSuccess(w, r, http.StatusOK, transitionMessage(res, "license suspended"), toTransitionResponse(res))
}

func (h *Handler) reinstate(w http.ResponseWriter, r *http.Request) {
	brand, _ := brandFromContext(r.Context())
	licenseID, err := licenseIDParam(r)
	if err != nil {
		h.writeMappedError(w, r, "reinstate_license", err)
		return
	}
	res, err := h.service.Reinstate(r.Context(), application.ReinstateInput{
		LicenseID: licenseID,
		Actor:     application.BrandActor(brand.ID),
	})
	if err != nil {
		h.writeMappedError(w, r, "reinstate_license", err)
		return
	}
	writeSuccess(w, r, http.StatusOK, "license reinstated", toTransitionResponse(res))
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	brand, _ := brandFromContext(r.Context())
	licenseID, err := licenseIDParam(r)
	if err != nil {
		h.writeMappedError(w, r, "revoke_license", err)
		return
	}
	var req contracts.RevokeRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeValidationError(w, r, "revoke_license", err)
		return
	}
	res, err := h.service.Revoke(r.Context(), application.RevokeInput{
		LicenseID: licenseID,
		Actor:     application.BrandActor(brand.ID),
		Reason:    trimmedReason(req.Reason),
	})
	if err != nil {
		h.writeMappedError(w, r, "revoke_license", err)
		return
	}
	writeSuccess(w, r, http.StatusOK, transitionMessage(res, "license revoked"), toTransitionResponse(res))
}

func (h *Handler) listByEmail(w http.ResponseWriter, r *http.Request) {
	var req contracts.EmailListingRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeValidationError(w, r, "list_by_email", err)
		return
	}
	q := r.URL.Query()
	page, err := h.service.ListByCustomerEmail(r.Context(), application.ListByEmailInput{
		Email:  req.CustomerEmail,
		Limit:  parseIntDefault(q.Get("limit"), 0),
		Offset: parseIntDefault(q.Get("offset"), 0),
	})
	if err != nil {
		h.writeMappedError(w, r, "list_by_email", err)
		return
	}
	out := contracts.LicenseListResponse{
		Count:    page.Count,
		Limit:    page.Limit,
		Offset:   page.Offset,
		Next:     page.NextOffset,
		Previous: page.PreviousOffset,
		Results:  make([]contracts.LicenseListItemResponse, 0, len(page.Results)),
	}
	for _, item := range page.Results {
		out.Results = append(out.Results, contracts.LicenseListItemResponse{
			LicenseID:   item.LicenseID.String(),
			LicenseKey:  item.LicenseKey,
			Brand:       item.BrandName,
			Product:     item.ProductCode,
			Status:      string(item.Status),
			ExpiresAt:   item.ExpiresAt,
			IsActive:    item.IsActive,
			ActiveSeats: item.ActiveSeats,
		})
	}
	writeSuccess(w, r, http.StatusOK, "", out)
}

func (h *Handler) auditTrail(w http.ResponseWriter, r *http.Request) {
	brand, _ := brandFromContext(r.Context())
	licenseID, err := licenseIDParam(r)
	if err != nil {
		h.writeMappedError(w, r, "audit_trail", err)
		return
	}
	entries, err := h.service.AuditTrail(r.Context(), brand.ID, licenseID)
	if err != nil {
		h.writeMappedError(w, r, "audit_trail", err)
		return
	}
	out := make([]contracts.AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, contracts.AuditEntryResponse{
			ID:         e.ID.String(),
			ActorType:  string(e.ActorType),
			ActorID:    e.ActorID,
			Action:     e.Action,
			TargetType: e.TargetType,
			TargetID:   e.TargetID,
			Metadata:   e.Metadata,
			CreatedAt:  e.CreatedAt,
		})
	}
	writeSuccess(w, r, http.StatusOK, "", out)
}

func toProductResponse(p domain.Product) contracts.ProductResponse {
	return contracts.ProductResponse{ID: p.ID.String(), Code: p.Code, Name: p.Name, CreatedAt: p.CreatedAt}
}

func toTransitionResponse(res application.TransitionResult) contracts.TransitionResponse {
	return contracts.TransitionResponse{
		LicenseID:        res.LicenseID.String(),
		Status:           string(res.Status),
		Changed:          res.Changed,
		DeactivatedSeats: res.DeactivatedSeats,
	}
}

func transitionMessage(res application.TransitionResult, changed string) string {
	if res.Changed {
		return changed
	}
	return "no change"
}

func trimmedReason(reason *string) *string {
	if reason == nil {
		return nil
	}
	v := strings.TrimSpace(*reason)
	if v == "" {
		return nil
	}
	return &v
}
