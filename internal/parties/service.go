package parties

import (
	"context"
	"fmt"
	"strings"

	"github.com/kid-livraison/parcel/internal/shared"
)

// Service manages one party register.
type Service struct {
	store Store
	role  Role
}

// NewService constructs a service for role.
func NewService(store Store, role Role) *Service {
	return &Service{store: store, role: role}
}

// Role returns the register this service manages.
func (s *Service) Role() Role {
	return s.role
}

// Create validates and stores a party.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Party, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return Party{}, err
	}
	id, err := s.store.Create(ctx, Party{
		Role:       s.role,
		Name:       strings.TrimSpace(req.Name),
		Phone:      strings.TrimSpace(req.Phone),
		Email:      req.Email,
		Address:    req.Address,
		City:       strings.TrimSpace(req.City),
		District:   req.District,
		PostalCode: req.PostalCode,
	})
	if err != nil {
		return Party{}, fmt.Errorf("create %s: %w", s.role, err)
	}
	return s.store.Get(ctx, id)
}

// Get returns a party.
func (s *Service) Get(ctx context.Context, id int64) (Party, error) {
	return s.store.Get(ctx, id)
}

// List returns parties matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Party, int, error) {
	return s.store.List(ctx, filter)
}

// Update applies the non-nil fields of req.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (Party, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return Party{}, err
	}
	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Phone != nil {
		updates["phone"] = strings.TrimSpace(*req.Phone)
	}
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if req.Address != nil {
		updates["address"] = *req.Address
	}
	if req.City != nil {
		updates["city"] = strings.TrimSpace(*req.City)
	}
	if req.District != nil {
		updates["district"] = *req.District
	}
	if req.PostalCode != nil {
		updates["postal_code"] = *req.PostalCode
	}
	if err := s.store.Update(ctx, id, updates); err != nil {
		return Party{}, err
	}
	return s.store.Get(ctx, id)
}
