package application

import (
	"time"

	"github.com/google/uuid"

	"github.com/johnson-oragui/multi-tenant-license-service/internal/domain"
)

const (
	ActivationStatusActive    = "active"
	ActivationStatusActivated = "activated"
)

// Actor identifies who triggered a state change for the audit trail.
type Actor struct {
	Type    domain.ActorType
	ID      *string
	BrandID uuid.UUID
}

func BrandActor(brandID uuid.UUID) Actor {
	id := brandID.String()
	return Actor{Type: domain.ActorTypeBrand, ID: &id, BrandID: brandID}
}

func SystemActor() Actor {
	return Actor{Type: domain.ActorTypeSystem}
}

type ActivateInput struct {
	LicenseKey         string
	ProductCode        string
	InstanceIdentifier string
}

// ActivationResult is returned for every activation attempt that reached a
// license. Success is false when a business rule rejected the attempt; the
// rejection is an expected outcome and is not reported as an error.
type ActivationResult struct {
	Success      bool
	ActivationID uuid.UUID
	LicenseID    uuid.UUID
	Status       string
	Rejection    domain.ActivationRejection
	Message      string
}

type DeactivateInput struct {
	LicenseKey         string
	InstanceIdentifier string
	// ProductCode narrows the lookup when the same instance is active on
	// several products under one key.
	ProductCode string
}

type SuspendInput struct {
	LicenseID          uuid.UUID
	Actor              Actor
	Reason             *string
	DeactivateExisting bool
}

type ReinstateInput struct {
	LicenseID uuid.UUID
	Actor     Actor
}

type RevokeInput struct {
	LicenseID uuid.UUID
	Actor     Actor
	Reason    *string
}

// TransitionResult reports the status after a lifecycle call. Changed is
// false for idempotent replays that wrote nothing.
type TransitionResult struct {
	LicenseID        uuid.UUID
	Status           domain.LicenseStatus
	Changed          bool
	DeactivatedSeats int
}

type ProvisionInput struct {
	BrandID       uuid.UUID
	ProductID     uuid.UUID
	CustomerEmail string
	ExpiresAt     time.Time
	SeatLimit     *int
}

type ProvisionResult struct {
	LicenseID  uuid.UUID
	LicenseKey string
	ProductID  uuid.UUID
	Status     domain.LicenseStatus
	ExpiresAt  time.Time
	SeatLimit  *int
}

type CreateBrandResult struct {
	Brand domain.Brand
	// APIKey is the plaintext credential. It is only ever returned here.
	APIKey string
}

type CreateProductInput struct {
	BrandID uuid.UUID
	Code    string
	Name    string
}

type Entitlement struct {
	LicenseID      uuid.UUID
	ProductCode    string
	Status         domain.LicenseStatus
	ExpiresAt      time.Time
	SeatLimit      *int
	ActiveSeats    int
	RemainingSeats *int
	Valid          bool
}

type LicenseStatusResult struct {
	LicenseKey string
	// CustomerEmail is nil once the key's customer record has been removed.
	CustomerEmail *string
	Valid         bool
	Entitlements  []Entitlement
}

type ListByEmailInput struct {
	Email  string
	Limit  int
	Offset int
}

type LicenseListItem struct {
	domain.LicenseListing
	IsActive bool
}

type LicenseListPage struct {
	Count          int64
	Limit          int
	Offset         int
	NextOffset     *int
	PreviousOffset *int
	Results        []LicenseListItem
}
