package fleet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kid-livraison/parcel/internal/shared"
)

// Service manages couriers and vehicles.
type Service struct {
	store Store
}

// NewService constructs a fleet service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// CreateCourier registers a courier as AVAILABLE and active.
func (s *Service) CreateCourier(ctx context.Context, req CreateCourierRequest) (Courier, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return Courier{}, err
	}
	if !req.LicenseExpiry.After(req.HiredOn) {
		return Courier{}, fmt.Errorf("license_expiry must be after hired_on: %w", shared.ErrValidation)
	}
	id, err := s.store.CreateCourier(ctx, Courier{
		UserID:        req.UserID,
		BadgeNumber:   strings.ToUpper(strings.TrimSpace(req.BadgeNumber)),
		FullName:      strings.TrimSpace(req.FullName),
		LicenseNumber: strings.TrimSpace(req.LicenseNumber),
		LicenseExpiry: req.LicenseExpiry,
		WorkPhone:     strings.TrimSpace(req.WorkPhone),
		Status:        CourierAvailable,
		AverageRating: decimal.Zero,
		CoverageArea:  req.CoverageArea,
		HiredOn:       req.HiredOn,
		Active:        true,
	})
	if err != nil {
		return Courier{}, fmt.Errorf("create courier: %w", err)
	}
	return s.store.GetCourier(ctx, id)
}

// GetCourier returns a courier.
func (s *Service) GetCourier(ctx context.Context, id int64) (Courier, error) {
	return s.store.GetCourier(ctx, id)
}

// ListCouriers returns couriers matching filter.
func (s *Service) ListCouriers(ctx context.Context, filter CourierFilter) ([]Courier, int, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, 0, fmt.Errorf("unknown courier status %q: %w", *filter.Status, shared.ErrValidation)
	}
	return s.store.ListCouriers(ctx, filter)
}

// UpdateCourier applies the non-nil fields of req.
func (s *Service) UpdateCourier(ctx context.Context, id int64, req UpdateCourierRequest) (Courier, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return Courier{}, err
	}
	updates := make(map[string]interface{})
	if req.FullName != nil {
		updates["full_name"] = strings.TrimSpace(*req.FullName)
	}
	if req.LicenseNumber != nil {
		updates["license_number"] = strings.TrimSpace(*req.LicenseNumber)
	}
	if req.LicenseExpiry != nil {
		updates["license_expiry"] = *req.LicenseExpiry
	}
	if req.WorkPhone != nil {
		updates["work_phone"] = strings.TrimSpace(*req.WorkPhone)
	}
	if req.CoverageArea != nil {
		updates["coverage_area"] = *req.CoverageArea
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}
	if err := s.store.UpdateCourier(ctx, id, updates); err != nil {
		return Courier{}, err
	}
	return s.store.GetCourier(ctx, id)
}

// CreateVehicle registers a vehicle as AVAILABLE.
func (s *Service) CreateVehicle(ctx context.Context, req CreateVehicleRequest) (Vehicle, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return Vehicle{}, err
	}
	id, err := s.store.CreateVehicle(ctx, Vehicle{
		PlateNumber:   normalizePlate(req.PlateNumber),
		Type:          req.Type,
		Brand:         strings.TrimSpace(req.Brand),
		Model:         strings.TrimSpace(req.Model),
		Year:          req.Year,
		CapacityKg:    req.CapacityKg,
		VolumeM3:      req.VolumeM3,
		Status:        VehicleAvailable,
		InspectionDue: req.InspectionDue,
		InsuranceDue:  req.InsuranceDue,
	})
	if err != nil {
		return Vehicle{}, fmt.Errorf("create vehicle: %w", err)
	}
	return s.store.GetVehicle(ctx, id)
}

// GetVehicle returns a vehicle.
func (s *Service) GetVehicle(ctx context.Context, id int64) (Vehicle, error) {
	return s.store.GetVehicle(ctx, id)
}

// ListVehicles returns vehicles matching filter.
func (s *Service) ListVehicles(ctx context.Context, filter VehicleFilter) ([]Vehicle, int, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, 0, fmt.Errorf("unknown vehicle status %q: %w", *filter.Status, shared.ErrValidation)
	}
	return s.store.ListVehicles(ctx, filter)
}

// UpdateVehicle changes status, due dates or the attached courier.
func (s *Service) UpdateVehicle(ctx context.Context, id int64, req UpdateVehicleRequest) (Vehicle, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return Vehicle{}, err
	}
	updates := make(map[string]interface{})
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if req.InspectionDue != nil {
		updates["inspection_due"] = dateOnly(*req.InspectionDue)
	}
	if req.InsuranceDue != nil {
		updates["insurance_due"] = dateOnly(*req.InsuranceDue)
	}
	if req.CourierID != nil {
		if *req.CourierID == 0 {
			updates["courier_id"] = nil
		} else {
			c, err := s.store.GetCourier(ctx, *req.CourierID)
			if err != nil {
				return Vehicle{}, err
			}
			if !c.Active {
				return Vehicle{}, fmt.Errorf("courier %d is inactive: %w", c.ID, shared.ErrInvalidState)
			}
			updates["courier_id"] = c.ID
		}
	}
	if err := s.store.UpdateVehicle(ctx, id, updates); err != nil {
		return Vehicle{}, err
	}
	return s.store.GetVehicle(ctx, id)
}

func normalizePlate(plate string) string {
	return strings.ToUpper(strings.Join(strings.Fields(plate), " "))
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
