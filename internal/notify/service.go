package notify

import (
	"context"
	"fmt"

	"github.com/kid-livraison/parcel/internal/shared"
)

// Lister reads notification rows.
type Lister interface {
	List(ctx context.Context, filter ListFilter) ([]Notification, int, error)
}

// Service exposes notification history.
type Service struct {
	store Lister
}

// NewService constructs a notification service.
func NewService(store Lister) *Service {
	return &Service{store: store}
}

// List returns notifications matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Notification, int, error) {
	if filter.Status != nil {
		switch *filter.Status {
		case StatusPending, StatusSent, StatusFailed:
		default:
			return nil, 0, fmt.Errorf("%w: unknown notification status %q", shared.ErrValidation, *filter.Status)
		}
	}
	return s.store.List(ctx, filter)
}
