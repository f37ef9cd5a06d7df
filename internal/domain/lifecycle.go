package domain

import (
	"fmt"
	"time"
)

// IsExpired reports whether the license expiry is at or before now.
func (l License) IsExpired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}

// IsActive reports whether the license currently grants its product:
// status valid and expiry strictly in the future.
func (l License) IsActive(now time.Time) bool {
	return l.Status == LicenseStatusValid && !l.IsExpired(now)
}

// RemainingSeats returns nil for unlimited licenses.
func (l License) RemainingSeats(activeSeats int) *int {
	if l.SeatLimit == nil {
		return nil
	}
	remaining := *l.SeatLimit - activeSeats
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

// SeatsExhausted reports whether another activation would exceed the limit.
func (l License) SeatsExhausted(activeSeats int) bool {
	return l.SeatLimit != nil && activeSeats >= *l.SeatLimit
}

// CanTransitionTo encodes VALID <-> SUSPENDED and VALID|SUSPENDED -> CANCELLED.
// Nothing leaves CANCELLED.
func (s LicenseStatus) CanTransitionTo(next LicenseStatus) bool {
	switch s {
	case LicenseStatusValid:
		return next == LicenseStatusSuspended || next == LicenseStatusCancelled
	case LicenseStatusSuspended:
		return next == LicenseStatusValid || next == LicenseStatusCancelled
	default:
		return false
	}
}

// ActivationRejection is an expected, non-exceptional reason an activation
// attempt did not succeed.
type ActivationRejection string

const (
	RejectionRevoked           ActivationRejection = "LICENSE_REVOKED"
	RejectionSuspended         ActivationRejection = "LICENSE_SUSPENDED"
	RejectionExpired           ActivationRejection = "LICENSE_EXPIRED"
	RejectionSeatLimitExceeded ActivationRejection = "SEAT_LIMIT_EXCEEDED"
)

func (r ActivationRejection) Message() string {
	switch r {
	case RejectionRevoked:
		return "license has been revoked"
	case RejectionSuspended:
		return "license is suspended"
	case RejectionExpired:
		return "license has expired"
	case RejectionSeatLimitExceeded:
		return "activation limit reached for this license"
	default:
		return string(r)
	}
}

// CheckActivatable applies the status and expiry gates in order: cancelled,
// suspended, expired. It returns the empty rejection when activation may
// proceed to the seat check.
func (l License) CheckActivatable(now time.Time) ActivationRejection {
	switch {
	case l.Status == LicenseStatusCancelled:
		return RejectionRevoked
	case l.Status == LicenseStatusSuspended:
		return RejectionSuspended
	case l.IsExpired(now):
		return RejectionExpired
	default:
		return ""
	}
}

// TransitionError wraps ErrInvalidTransition with the attempted edge.
func TransitionError(from, to LicenseStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
