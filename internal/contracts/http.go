package contracts

import "time"

type SuccessResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorResponse struct {
	Status    string       `json:"status"`
	Code      string       `json:"code,omitempty"`
	Message   string       `json:"message,omitempty"`
	RequestID string       `json:"request_id,omitempty"`
	Error     ErrorPayload `json:"error"`
}

type BrandSignupRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

type BrandSignupResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	APIKey    string    `json:"api_key"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateProductRequest struct {
	Code string `json:"code" validate:"required,max=64"`
	Name string `json:"name" validate:"required,max=255"`
}

type ProductResponse struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type ProvisionRequest struct {
	ProductID     string    `json:"product_id" validate:"required,uuid"`
	CustomerEmail string    `json:"customer_email" validate:"required,email,max=254"`
	ExpiresAt     time.Time `json:"expires_at" validate:"required"`
	SeatLimit     *int      `json:"seat_limit" validate:"omitempty,min=1"`
}

type ProvisionResponse struct {
	LicenseID  string    `json:"license_id"`
	LicenseKey string    `json:"license_key"`
	ProductID  string    `json:"product_id"`
	Status     string    `json:"status"`
	ExpiresAt  time.Time `json:"expires_at"`
	SeatLimit  *int      `json:"seat_limit"`
}

type ActivateRequest struct {
	LicenseKey         string `json:"license_key" validate:"required,max=64"`
	ProductCode        string `json:"product_code" validate:"required,max=64"`
	InstanceIdentifier string `json:"instance_identifier" validate:"required,max=255"`
}

type ActivationResponse struct {
	ActivationID string `json:"activation_id"`
	LicenseID    string `json:"license_id"`
	Status       string `json:"status"`
}

type DeactivateRequest struct {
	LicenseKey         string `json:"license_key" validate:"required,max=64"`
	InstanceIdentifier string `json:"instance_identifier" validate:"required,max=255"`
	ProductCode        string `json:"product_code,omitempty" validate:"omitempty,max=64"`
}

type LicenseStatusRequest struct {
	LicenseKey string `json:"license_key" validate:"required,max=64"`
}

type EntitlementResponse struct {
	LicenseID      string    `json:"license_id"`
	Product        string    `json:"product"`
	Status         string    `json:"status"`
	ExpiresAt      time.Time `json:"expires_at"`
	SeatLimit      *int      `json:"seat_limit"`
	ActiveSeats    int       `json:"active_seats"`
	RemainingSeats *int      `json:"remaining_seats"`
	Valid          bool      `json:"valid"`
}

type LicenseStatusResponse struct {
	LicenseKey    string                `json:"license_key"`
	CustomerEmail *string               `json:"customer_email"`
	Valid         bool                  `json:"valid"`
	Entitlements  []EntitlementResponse `json:"entitlements"`
}

type SuspendRequest struct {
	Reason             *string `json:"reason" validate:"omitempty,max=500"`
	DeactivateExisting bool    `json:"deactivate_existing"`
}

type RevokeRequest struct {
	Reason *string `json:"reason" validate:"omitempty,max=500"`
}

type TransitionResponse struct {
	LicenseID        string `json:"license_id"`
	Status           string `json:"status"`
	Changed          bool   `json:"changed"`
	DeactivatedSeats int    `json:"deactivated_seats"`
}

type EmailListingRequest struct {
	CustomerEmail string `json:"customer_email" validate:"required,email,max=254"`
}

type LicenseListItemResponse struct {
	LicenseID   string    `json:"license_id"`
	LicenseKey  string    `json:"license_key"`
	Brand       string    `json:"brand"`
	Product     string    `json:"product"`
	Status      string    `json:"status"`
	ExpiresAt   time.Time `json:"expires_at"`
	IsActive    bool      `json:"is_active"`
	ActiveSeats int       `json:"active_seats"`
}

type LicenseListResponse struct {
	Count    int64                     `json:"count"`
	Limit    int                       `json:"limit"`
	Offset   int                       `json:"offset"`
	Next     *int                      `json:"next"`
	Previous *int                      `json:"previous"`
	Results  []LicenseListItemResponse `json:"results"`
}

type AuditEntryResponse struct {
	ID         string         `json:"id"`
	ActorType  string         `json:"actor_type"`
	ActorID    *string        `json:"actor_id"`
	Action     string         `json:"action"`
	TargetType string         `json:"target_type"`
	TargetID   string         `json:"target_id"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"created_at"`
}
