package tariff

import (
	"context"
	"fmt"

	"github.com/kid-livraison/parcel/internal/shared"
)

// Service exposes quoting and tariff table administration.
type Service struct {
	store      Store
	calculator *Calculator
}

// NewService constructs a tariff service.
func NewService(store Store, calculator *Calculator) *Service {
	return &Service{store: store, calculator: calculator}
}

// Calculator returns the calculator used for quotes and invoices.
func (s *Service) Calculator() *Calculator {
	return s.calculator
}

// Quote prices a prospective package without persisting anything.
func (s *Service) Quote(ctx context.Context, in Input) (Breakdown, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return Breakdown{}, err
	}
	return s.calculator.Compute(ctx, in), nil
}

// Create validates and stores a new active tariff row.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Tariff, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return Tariff{}, err
	}
	if req.WeightMin.GreaterThan(req.WeightMax) {
		return Tariff{}, fmt.Errorf("%w: weight_min must not exceed weight_max", shared.ErrValidation)
	}
	if req.DistanceMin.GreaterThan(req.DistanceMax) {
		return Tariff{}, fmt.Errorf("%w: distance_min must not exceed distance_max", shared.ErrValidation)
	}
	if req.ValidTo != nil && dateOnly(*req.ValidTo).Before(dateOnly(req.ValidFrom)) {
		return Tariff{}, fmt.Errorf("%w: valid_to must not precede valid_from", shared.ErrValidation)
	}

	row := Tariff{
		WeightMin:    req.WeightMin,
		WeightMax:    req.WeightMax,
		DistanceMin:  req.DistanceMin,
		DistanceMax:  req.DistanceMax,
		Price:        req.Price.Round(2),
		ServiceClass: req.ServiceClass,
		Active:       true,
		ValidFrom:    dateOnly(req.ValidFrom),
	}
	if req.ValidTo != nil {
		to := dateOnly(*req.ValidTo)
		row.ValidTo = &to
	}
	id, err := s.store.Create(ctx, row)
	if err != nil {
		return Tariff{}, fmt.Errorf("create tariff: %w", err)
	}
	return s.store.Get(ctx, id)
}

// Get returns one tariff row.
func (s *Service) Get(ctx context.Context, id int64) (Tariff, error) {
	return s.store.Get(ctx, id)
}

// List returns tariff rows and their total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Tariff, int, error) {
	if filter.ServiceClass != nil && !filter.ServiceClass.IsValid() {
		return nil, 0, fmt.Errorf("%w: unknown service class %q", shared.ErrValidation, *filter.ServiceClass)
	}
	return s.store.List(ctx, filter)
}

// Deactivate removes a row from pricing. Issued invoices keep their amounts.
func (s *Service) Deactivate(ctx context.Context, id int64) (Tariff, error) {
	if err := s.store.SetActive(ctx, id, false); err != nil {
		return Tariff{}, err
	}
	return s.store.Get(ctx, id)
}
