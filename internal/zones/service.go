package zones

import (
	"context"
	"fmt"
	"strings"

	"github.com/kid-livraison/parcel/internal/shared"
)

// Service manages the zone register.
type Service struct {
	store Store
}

// NewService constructs a Service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Create validates and stores an active zone.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Zone, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return Zone{}, err
	}
	districts := normalizeDistricts(req.Districts)
	if len(districts) == 0 {
		return Zone{}, fmt.Errorf("%w: districts must name at least one district", shared.ErrValidation)
	}
	delay := 1
	if req.DelayDays != nil {
		delay = *req.DelayDays
	}
	id, err := s.store.Create(ctx, Zone{
		Name:      strings.TrimSpace(req.Name),
		City:      strings.TrimSpace(req.City),
		Districts: districts,
		BaseRate:  req.BaseRate.Round(2),
		PerKmRate: req.PerKmRate.Round(2),
		DelayDays: delay,
		Active:    true,
	})
	if err != nil {
		return Zone{}, fmt.Errorf("create zone: %w", err)
	}
	return s.store.Get(ctx, id)
}

// Get returns a zone.
func (s *Service) Get(ctx context.Context, id int64) (Zone, error) {
	return s.store.Get(ctx, id)
}

// List returns zones matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Zone, int, error) {
	return s.store.List(ctx, filter)
}

// Update applies the non-nil fields of req.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (Zone, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return Zone{}, err
	}
	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.City != nil {
		updates["city"] = strings.TrimSpace(*req.City)
	}
	if req.Districts != nil {
		districts := normalizeDistricts(*req.Districts)
		if len(districts) == 0 {
			return Zone{}, fmt.Errorf("%w: districts must name at least one district", shared.ErrValidation)
		}
		updates["districts"] = districts
	}
	if req.BaseRate != nil {
		updates["base_rate"] = req.BaseRate.Round(2)
	}
	if req.PerKmRate != nil {
		updates["per_km_rate"] = req.PerKmRate.Round(2)
	}
	if req.DelayDays != nil {
		updates["delay_days"] = *req.DelayDays
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}
	if err := s.store.Update(ctx, id, updates); err != nil {
		return Zone{}, err
	}
	return s.store.Get(ctx, id)
}

// Deactivate takes a zone out of service. Deactivating an inactive zone is
// a no-op.
func (s *Service) Deactivate(ctx context.Context, id int64) (Zone, error) {
	if err := s.store.Update(ctx, id, map[string]interface{}{"active": false}); err != nil {
		return Zone{}, err
	}
	return s.store.Get(ctx, id)
}
