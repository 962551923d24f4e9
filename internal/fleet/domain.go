// Package fleet manages couriers and the vehicles they drive.
package fleet

import (
	"time"

	"github.com/shopspring/decimal"
)

// CourierStatus is the availability of a courier.
type CourierStatus string

const (
	CourierAvailable  CourierStatus = "AVAILABLE"
	CourierDelivering CourierStatus = "DELIVERING"
	CourierResting    CourierStatus = "RESTING"
	CourierAbsent     CourierStatus = "ABSENT"
)

// IsValid reports whether the status is known.
func (s CourierStatus) IsValid() bool {
	switch s {
	case CourierAvailable, CourierDelivering, CourierResting, CourierAbsent:
		return true
	default:
		return false
	}
}

// Assignable reports whether a courier in this status may take a new
// assignment.
func (s CourierStatus) Assignable() bool {
	return s == CourierAvailable || s == CourierDelivering
}

// Courier is a delivery agent linked to a user account.
type Courier struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user_id"`
	BadgeNumber   string          `json:"badge_number"`
	FullName      string          `json:"full_name"`
	LicenseNumber string          `json:"license_number"`
	LicenseExpiry time.Time       `json:"license_expiry"`
	WorkPhone     string          `json:"work_phone"`
	Status        CourierStatus   `json:"status"`
	AverageRating decimal.Decimal `json:"average_rating"`
	DeliveryCount int             `json:"delivery_count"`
	CoverageArea  string          `json:"coverage_area"`
	HiredOn       time.Time       `json:"hired_on"`
	Active        bool            `json:"active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// VehicleType is the kind of vehicle.
type VehicleType string

const (
	VehicleMotorbike VehicleType = "MOTORBIKE"
	VehicleCar       VehicleType = "CAR"
	VehicleVan       VehicleType = "VAN"
	VehicleTruck     VehicleType = "TRUCK"
)

// VehicleStatus is the operational state of a vehicle.
type VehicleStatus string

const (
	VehicleAvailable    VehicleStatus = "AVAILABLE"
	VehicleInService    VehicleStatus = "IN_SERVICE"
	VehicleMaintenance  VehicleStatus = "MAINTENANCE"
	VehicleOutOfService VehicleStatus = "OUT_OF_SERVICE"
)

// IsValid reports whether the status is known.
func (s VehicleStatus) IsValid() bool {
	switch s {
	case VehicleAvailable, VehicleInService, VehicleMaintenance, VehicleOutOfService:
		return true
	default:
		return false
	}
}

// Usable reports whether a vehicle in this status may take an assignment.
func (s VehicleStatus) Usable() bool {
	return s == VehicleAvailable || s == VehicleInService
}

// Vehicle is a fleet vehicle.
type Vehicle struct {
	ID            int64           `json:"id"`
	PlateNumber   string          `json:"plate_number"`
	Type          VehicleType     `json:"type"`
	Brand         string          `json:"brand"`
	Model         string          `json:"model"`
	Year          int             `json:"year"`
	CapacityKg    decimal.Decimal `json:"capacity_kg"`
	VolumeM3      decimal.Decimal `json:"volume_m3"`
	Status        VehicleStatus   `json:"status"`
	InspectionDue *time.Time      `json:"inspection_due,omitempty"`
	InsuranceDue  *time.Time      `json:"insurance_due,omitempty"`
	CourierID     *int64          `json:"courier_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// CreateCourierRequest registers a courier.
type CreateCourierRequest struct {
	UserID        int64     `json:"user_id" validate:"required,gt=0"`
	BadgeNumber   string    `json:"badge_number" validate:"required,max=50"`
	FullName      string    `json:"full_name" validate:"required,max=200"`
	LicenseNumber string    `json:"license_number" validate:"required,max=50"`
	LicenseExpiry time.Time `json:"license_expiry" validate:"required"`
	WorkPhone     string    `json:"work_phone" validate:"required,max=20"`
	CoverageArea  string    `json:"coverage_area"`
	HiredOn       time.Time `json:"hired_on" validate:"required"`
}

// UpdateCourierRequest changes selected courier fields.
type UpdateCourierRequest struct {
	FullName      *string        `json:"full_name,omitempty" validate:"omitempty,min=1,max=200"`
	LicenseNumber *string        `json:"license_number,omitempty" validate:"omitempty,min=1,max=50"`
	LicenseExpiry *time.Time     `json:"license_expiry,omitempty"`
	WorkPhone     *string        `json:"work_phone,omitempty" validate:"omitempty,min=1,max=20"`
	CoverageArea  *string        `json:"coverage_area,omitempty"`
	Status        *CourierStatus `json:"status,omitempty" validate:"omitempty,oneof=AVAILABLE DELIVERING RESTING ABSENT"`
	Active        *bool          `json:"active,omitempty"`
}

// CreateVehicleRequest registers a vehicle.
type CreateVehicleRequest struct {
	PlateNumber   string          `json:"plate_number" validate:"required,max=20"`
	Type          VehicleType     `json:"type" validate:"required,oneof=MOTORBIKE CAR VAN TRUCK"`
	Brand         string          `json:"brand" validate:"required,max=50"`
	Model         string          `json:"model" validate:"required,max=50"`
	Year          int             `json:"year" validate:"required,gte=1950,lte=2100"`
	CapacityKg    decimal.Decimal `json:"capacity_kg" validate:"gt=0"`
	VolumeM3      decimal.Decimal `json:"volume_m3" validate:"gte=0"`
	InspectionDue *time.Time      `json:"inspection_due,omitempty"`
	InsuranceDue  *time.Time      `json:"insurance_due,omitempty"`
}

// UpdateVehicleRequest changes selected vehicle fields. CourierID of 0
// detaches the current courier.
type UpdateVehicleRequest struct {
	Status        *VehicleStatus `json:"status,omitempty" validate:"omitempty,oneof=AVAILABLE IN_SERVICE MAINTENANCE OUT_OF_SERVICE"`
	InspectionDue *time.Time     `json:"inspection_due,omitempty"`
	InsuranceDue  *time.Time     `json:"insurance_due,omitempty"`
	CourierID     *int64         `json:"courier_id,omitempty" validate:"omitempty,gte=0"`
}

// CourierFilter narrows courier listings.
type CourierFilter struct {
	Status     *CourierStatus
	ActiveOnly bool
	Limit      int
	Offset     int
}

// VehicleFilter narrows vehicle listings.
type VehicleFilter struct {
	Status *VehicleStatus
	Type   *VehicleType
	Limit  int
	Offset int
}
