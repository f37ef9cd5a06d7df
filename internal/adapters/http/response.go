package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/johnson-oragui/multi-tenant-license-service/internal/contracts"
	"github.com/johnson-oragui/multi-tenant-license-service/internal/domain"
)

func writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, payload any) {
	render.Status(r, statusCode)
	render.JSON(w, r, payload)
}

func writeSuccess(w http.ResponseWriter, r *http.Request, statusCode int, message string, data any) {
	writeJSON(w, r, statusCode, contracts.SuccessResponse{
		Status:  "success",
		Message: message,
		Data:    data,
	})
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	reqID := requestIDFromContext(r.Context())
	writeJSON(w, r, statusCode, contracts.ErrorResponse{
		Status:    "error",
		Code:      code,
		Message:   message,
		RequestID: reqID,
		Error: contracts.ErrorPayload{
			Code:      code,
			Message:   message,
			RequestID: reqID,
		},
	})
}

func mapDomainError(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error()
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing api key"
	case errors.Is(err, domain.ErrCrossTenant):
		return http.StatusForbidden, "CROSS_TENANT", "resource belongs to another brand"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "resource not found"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "INVALID_TRANSITION", err.Error()
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "CONFLICT", err.Error()
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED", "too many requests"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}

func (h *Handler) writeMappedError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status, code, msg := mapDomainError(err)
	h.logOperationError(r, operation, status, code, msg, err)
	writeError(w, r, status, code, msg)
}

func (h *Handler) writeValidationError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	msg := describeValidationError(err)
	h.logOperationError(r, operation, http.StatusBadRequest, "VALIDATION_ERROR", msg, err)
	writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", msg)
}

func (h *Handler) logOperationError(r *http.Request, operation string, statusCode int, code, message string, err error) {
	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("outcome", "failure"),
		zap.Int("status_code", statusCode),
		zap.String("error_code", code),
		zap.String("message", message),
		zap.String("request_id", requestIDFromContext(r.Context())),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if statusCode >= 500 {
		h.logger.Error("http operation failed", fields...)
		return
	}
	h.logger.Warn("http operation failed", fields...)
}
