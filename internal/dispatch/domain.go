// Package dispatch assigns packages to a courier and vehicle and records the
// outcome of each delivery attempt.
package dispatch

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the state of one delivery attempt.
type Status string

const (
	StatusAssigned   Status = "ASSIGNED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Open reports whether the attempt is still running. A package carries at
// most one open assignment.
func (s Status) Open() bool {
	return s == StatusAssigned || s == StatusInProgress
}

// Assignment links a package to a courier and vehicle for one attempt.
type Assignment struct {
	ID            int64            `json:"id"`
	PackageID     int64            `json:"package_id"`
	CourierID     int64            `json:"courier_id"`
	VehicleID     int64            `json:"vehicle_id"`
	AssignedBy    *int64           `json:"assigned_by,omitempty"`
	Status        Status           `json:"status"`
	AssignedAt    time.Time        `json:"assigned_at"`
	DepartedAt    *time.Time       `json:"departed_at,omitempty"`
	ArrivedAt     *time.Time       `json:"arrived_at,omitempty"`
	DistanceKm    decimal.Decimal  `json:"distance_km"`
	FailureReason *string          `json:"failure_reason,omitempty"`
	SignatureRef  *string          `json:"signature_ref,omitempty"`
	PhotoRef      *string          `json:"photo_ref,omitempty"`
	Comment       *string          `json:"comment,omitempty"`
	Latitude      *decimal.Decimal `json:"latitude,omitempty"`
	Longitude     *decimal.Decimal `json:"longitude,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// AssignRequest opens a delivery attempt.
type AssignRequest struct {
	PackageID int64 `json:"package_id" validate:"required,gt=0"`
	CourierID int64 `json:"courier_id" validate:"required,gt=0"`
	VehicleID int64 `json:"vehicle_id" validate:"required,gt=0"`
}

// Proof is the evidence collected at hand-off.
type Proof struct {
	SignatureRef *string          `json:"signature_ref,omitempty" validate:"omitempty,max=255"`
	PhotoRef     *string          `json:"photo_ref,omitempty" validate:"omitempty,max=255"`
	Comment      *string          `json:"comment,omitempty" validate:"omitempty,max=1000"`
	Latitude     *decimal.Decimal `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude    *decimal.Decimal `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
}

// CompleteRequest closes an attempt successfully.
type CompleteRequest struct {
	Proof      Proof           `json:"proof"`
	DistanceKm decimal.Decimal `json:"distance_km" validate:"gte=0"`
}

// FailRequest closes an attempt unsuccessfully. ReturnToSender ends the
// package's journey instead of allowing another attempt.
type FailRequest struct {
	Reason         string `json:"reason" validate:"required,min=3,max=500"`
	ReturnToSender bool   `json:"return_to_sender"`
}
