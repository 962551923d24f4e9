package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kid-livraison/parcel/internal/fleet"
	"github.com/kid-livraison/parcel/internal/notify"
	"github.com/kid-livraison/parcel/internal/parcel"
	"github.com/kid-livraison/parcel/internal/shared"
)

// Deps groups the collaborators of Service.
type Deps struct {
	Store      Store
	Recipients parcel.Directory
	Notifier   *notify.Dispatcher
	Metrics    parcel.Recorder
	Logger     *slog.Logger
}

// Service runs the assignment workflow. Every operation writes the
// assignment, the package, the courier and any notification in one
// transaction.
type Service struct {
	store      Store
	recipients parcel.Directory
	notifier   *notify.Dispatcher
	metrics    parcel.Recorder
	logger     *slog.Logger
	now        func() time.Time
}

// NewService constructs a Service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      deps.Store,
		recipients: deps.Recipients,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Assign opens a delivery attempt for a package.
func (s *Service) Assign(ctx context.Context, req AssignRequest) (Assignment, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return Assignment{}, err
	}
	var out Assignment
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pkg, err := tx.GetPackageForUpdate(ctx, req.PackageID)
		if err != nil {
			return err
		}
		if pkg.Status.Terminal() {
			return fmt.Errorf("%w: package %s is %s", shared.ErrInvalidState, pkg.TrackingNumber, pkg.Status)
		}
		courier, err := tx.GetCourierForUpdate(ctx, req.CourierID)
		if err != nil {
			return err
		}
		if !courier.Active {
			return fmt.Errorf("%w: courier %s is inactive", shared.ErrInvalidState, courier.BadgeNumber)
		}
		if !courier.Status.Assignable() {
			return fmt.Errorf("%w: courier %s is %s", shared.ErrInvalidState, courier.BadgeNumber, courier.Status)
		}
		vehicle, err := tx.GetVehicle(ctx, req.VehicleID)
		if err != nil {
			return err
		}
		if !vehicle.Status.Usable() {
			return fmt.Errorf("%w: vehicle %s is %s", shared.ErrInvalidState, vehicle.PlateNumber, vehicle.Status)
		}
		open, err := tx.HasOpenAssignment(ctx, pkg.ID)
		if err != nil {
			return err
		}
		if open {
			return fmt.Errorf("package %s already has an open assignment: %w", pkg.TrackingNumber, shared.ErrConflict)
		}

		now := s.now()
		out = Assignment{
			PackageID:  pkg.ID,
			CourierID:  courier.ID,
			VehicleID:  vehicle.ID,
			AssignedBy: shared.ActorPtr(ctx),
			Status:     StatusAssigned,
			AssignedAt: now,
			DistanceKm: decimal.Zero,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		out.ID, err = tx.InsertAssignment(ctx, out)
		if err != nil {
			return fmt.Errorf("insert assignment: %w", err)
		}
		return tx.SetCourierStatus(ctx, courier.ID, fleet.CourierDelivering)
	})
	if err != nil {
		return Assignment{}, err
	}
	s.logger.Info("package assigned",
		slog.Int64("assignment_id", out.ID),
		slog.Int64("package_id", out.PackageID),
		slog.Int64("courier_id", out.CourierID))
	return out, nil
}

// Start records the courier's departure.
func (s *Service) Start(ctx context.Context, id int64) (Assignment, error) {
	var out Assignment
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		a, err := tx.GetAssignmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if a.Status != StatusAssigned {
			return fmt.Errorf("%w: assignment %d is %s", shared.ErrInvalidState, a.ID, a.Status)
		}
		now := s.now()
		if err := tx.UpdateAssignment(ctx, a.ID, map[string]interface{}{
			"status":      StatusInProgress,
			"departed_at": now,
		}); err != nil {
			return fmt.Errorf("update assignment: %w", err)
		}
		if _, err := s.advance(ctx, tx, a.PackageID, parcel.Step{Event: parcel.EventAssignmentStarted}, now); err != nil {
			return err
		}
		a.Status = StatusInProgress
		a.DepartedAt = &now
		out = a
		return nil
	})
	if err != nil {
		return Assignment{}, err
	}
	s.observe(parcel.EventAssignmentStarted, parcel.StatusOutForDelivery)
	return out, nil
}

// Complete closes an open attempt with proof of delivery, delivers the
// package and frees the courier.
func (s *Service) Complete(ctx context.Context, id int64, req CompleteRequest) (Assignment, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return Assignment{}, err
	}
	var (
		out     Assignment
		pending []int64
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		a, err := tx.GetAssignmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !a.Status.Open() {
			return fmt.Errorf("%w: assignment %d is %s", shared.ErrInvalidState, a.ID, a.Status)
		}
		now := s.now()
		distance := req.DistanceKm.Round(2)
		if err := tx.UpdateAssignment(ctx, a.ID, map[string]interface{}{
			"status":        StatusCompleted,
			"arrived_at":    now,
			"distance_km":   distance,
			"signature_ref": req.Proof.SignatureRef,
			"photo_ref":     req.Proof.PhotoRef,
			"comment":       req.Proof.Comment,
			"latitude":      req.Proof.Latitude,
			"longitude":     req.Proof.Longitude,
		}); err != nil {
			return fmt.Errorf("update assignment: %w", err)
		}
		pkg, err := s.advance(ctx, tx, a.PackageID, parcel.Step{
			Event:     parcel.EventAssignmentCompleted,
			Latitude:  req.Proof.Latitude,
			Longitude: req.Proof.Longitude,
		}, now)
		if err != nil {
			return err
		}
		if err := tx.RecordCourierDelivery(ctx, a.CourierID); err != nil {
			return fmt.Errorf("record courier delivery: %w", err)
		}
		if err := s.releaseCourier(ctx, tx, a.CourierID); err != nil {
			return err
		}
		recipient, err := s.recipients.Get(ctx, pkg.RecipientID)
		if err != nil {
			return fmt.Errorf("recipient: %w", err)
		}
		pending, err = insertNotifications(ctx, tx,
			notify.WithEmail(notify.DeliverySuccess(pkg.ID, pkg.TrackingNumber, recipient.Phone), recipient.Email))
		if err != nil {
			return err
		}

		a.Status = StatusCompleted
		a.ArrivedAt = &now
		a.DistanceKm = distance
		a.SignatureRef = req.Proof.SignatureRef
		a.PhotoRef = req.Proof.PhotoRef
		a.Comment = req.Proof.Comment
		a.Latitude = req.Proof.Latitude
		a.Longitude = req.Proof.Longitude
		out = a
		return nil
	})
	if err != nil {
		return Assignment{}, err
	}
	s.observe(parcel.EventAssignmentCompleted, parcel.StatusDelivered)
	s.notifier.Enqueue(ctx, pending...)
	return out, nil
}

// Fail closes an open attempt with a reason. The package goes back in
// transit for another attempt, or is returned when req asks for it. A
// package already closed by hand keeps its status; only the attempt is
// recorded as failed and the courier released.
func (s *Service) Fail(ctx context.Context, id int64, req FailRequest) (Assignment, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return Assignment{}, err
	}
	reason := strings.TrimSpace(req.Reason)
	event := parcel.EventAssignmentFailed
	if req.ReturnToSender {
		event = parcel.EventReturned
	}
	var (
		out     Assignment
		status  parcel.Status
		moved   bool
		pending []int64
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		a, err := tx.GetAssignmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !a.Status.Open() {
			return fmt.Errorf("%w: assignment %d is %s", shared.ErrInvalidState, a.ID, a.Status)
		}
		if err := tx.UpdateAssignment(ctx, a.ID, map[string]interface{}{
			"status":         StatusFailed,
			"failure_reason": reason,
		}); err != nil {
			return fmt.Errorf("update assignment: %w", err)
		}
		if err := s.releaseCourier(ctx, tx, a.CourierID); err != nil {
			return err
		}
		a.Status = StatusFailed
		a.FailureReason = &reason
		out = a

		pkg, err := tx.GetPackageForUpdate(ctx, a.PackageID)
		if err != nil {
			return err
		}
		if pkg.Status.Terminal() {
			status = pkg.Status
			return nil
		}
		pkg, err = parcel.Advance(ctx, tx, pkg, parcel.Step{
			Event:       event,
			Description: "delivery failed: " + reason,
			Tracking:    parcel.TrackingDeliveryFailed,
		}, s.now())
		if err != nil {
			return err
		}
		status, moved = pkg.Status, true

		recipient, err := s.recipients.Get(ctx, pkg.RecipientID)
		if err != nil {
			return fmt.Errorf("recipient: %w", err)
		}
		notice := notify.DeliveryFailed(pkg.ID, pkg.TrackingNumber, recipient.Phone, reason)
		if pkg.Status == parcel.StatusReturned {
			notice = notify.DeliveryReturned(pkg.ID, pkg.TrackingNumber, recipient.Phone, reason)
		}
		pending, err = insertNotifications(ctx, tx, notify.WithEmail(notice, recipient.Email))
		return err
	})
	if err != nil {
		return Assignment{}, err
	}
	if !moved {
		s.logger.Warn("assignment failed on a closed package",
			slog.Int64("assignment_id", out.ID),
			slog.Int64("package_id", out.PackageID),
			slog.String("package_status", string(status)))
		return out, nil
	}
	s.observe(event, status)
	s.notifier.Enqueue(ctx, pending...)
	return out, nil
}

// releaseCourier puts a DELIVERING courier back to AVAILABLE once no open
// assignment is left on them. Other statuses set meanwhile are kept.
func (s *Service) releaseCourier(ctx context.Context, tx TxRepository, courierID int64) error {
	courier, err := tx.GetCourierForUpdate(ctx, courierID)
	if err != nil {
		return err
	}
	if courier.Status != fleet.CourierDelivering {
		return nil
	}
	open, err := tx.CountOpenAssignmentsByCourier(ctx, courierID)
	if err != nil {
		return fmt.Errorf("count open assignments: %w", err)
	}
	if open > 0 {
		return nil
	}
	if err := tx.SetCourierStatus(ctx, courierID, fleet.CourierAvailable); err != nil {
		return fmt.Errorf("release courier: %w", err)
	}
	return nil
}

func insertNotifications(ctx context.Context, tx TxRepository, ns []notify.Notification) ([]int64, error) {
	ids := make([]int64, 0, len(ns))
	for _, n := range ns {
		id, err := tx.InsertNotification(ctx, n)
		if err != nil {
			return nil, fmt.Errorf("insert notification: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Service) advance(ctx context.Context, tx TxRepository, packageID int64, step parcel.Step, at time.Time) (parcel.Package, error) {
	pkg, err := tx.GetPackageForUpdate(ctx, packageID)
	if err != nil {
		return parcel.Package{}, err
	}
	return parcel.Advance(ctx, tx, pkg, step, at)
}

func (s *Service) observe(ev parcel.Event, status parcel.Status) {
	if s.metrics != nil {
		s.metrics.ObserveTransition(string(ev), string(status))
	}
}

// Get returns an assignment.
func (s *Service) Get(ctx context.Context, id int64) (Assignment, error) {
	return s.store.Get(ctx, id)
}

// ListByPackage returns every attempt made for a package.
func (s *Service) ListByPackage(ctx context.Context, packageID int64) ([]Assignment, error) {
	return s.store.ListByPackage(ctx, packageID)
}
