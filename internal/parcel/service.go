package parcel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kid-livraison/parcel/internal/billing"
	"github.com/kid-livraison/parcel/internal/notify"
	"github.com/kid-livraison/parcel/internal/numbering"
	"github.com/kid-livraison/parcel/internal/parties"
	"github.com/kid-livraison/parcel/internal/platform/db"
	"github.com/kid-livraison/parcel/internal/shared"
)

// MaxRegisterAttempts bounds registration retries after a unique violation
// on a generated number.
const MaxRegisterAttempts = 3

// Directory resolves parties. *parties.Service satisfies it.
type Directory interface {
	Get(ctx context.Context, id int64) (parties.Party, error)
}

// Recorder receives lifecycle counters.
type Recorder interface {
	PackageRegistered()
	ObserveTransition(event, status string)
}

// Deps groups the collaborators of Service.
type Deps struct {
	Store      Store
	Senders    Directory
	Recipients Directory
	Numbers    *numbering.Generator
	Invoices   *billing.Builder
	Notifier   *notify.Dispatcher
	Metrics    Recorder
	Logger     *slog.Logger
}

// Service registers packages and applies lifecycle events.
type Service struct {
	store      Store
	senders    Directory
	recipients Directory
	numbers    *numbering.Generator
	invoices   *billing.Builder
	notifier   *notify.Dispatcher
	metrics    Recorder
	logger     *slog.Logger
	now        func() time.Time
}

// NewService constructs a Service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	numbers := deps.Numbers
	if numbers == nil {
		numbers = numbering.New()
	}
	return &Service{
		store:      deps.Store,
		senders:    deps.Senders,
		recipients: deps.Recipients,
		numbers:    numbers,
		invoices:   deps.Invoices,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Register validates the intake form and, in one transaction, stores the
// package with its tracking number, invoice, first tracking entry and the
// two intake notifications. Notifications are queued after commit.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (Package, billing.Invoice, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return Package{}, billing.Invoice{}, err
	}
	sender, err := s.senders.Get(ctx, req.SenderID)
	if err != nil {
		return Package{}, billing.Invoice{}, fmt.Errorf("sender: %w", err)
	}
	recipient, err := s.recipients.Get(ctx, req.RecipientID)
	if err != nil {
		return Package{}, billing.Invoice{}, fmt.Errorf("recipient: %w", err)
	}

	var (
		pkg     Package
		inv     billing.Invoice
		pending []int64
	)
	for attempt := 1; ; attempt++ {
		pending = nil
		err = s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			pkg, inv, err = s.register(ctx, tx, req, recipient.City)
			if err != nil {
				return err
			}
			notices := append(
				notify.WithEmail(notify.RegistrationConfirmation(pkg.ID, pkg.TrackingNumber, sender.Phone), sender.Email),
				notify.WithEmail(notify.IncomingPackage(pkg.ID, pkg.TrackingNumber, recipient.Phone), recipient.Email)...)
			pending, err = insertNotifications(ctx, tx, notices)
			return err
		})
		if err == nil {
			break
		}
		if !db.IsUniqueViolation(err, "") {
			return Package{}, billing.Invoice{}, fmt.Errorf("register package: %w", err)
		}
		if attempt >= MaxRegisterAttempts {
			return Package{}, billing.Invoice{}, fmt.Errorf("register package after %d attempts: %w", attempt, shared.ErrConflict)
		}
		s.logger.Warn("registration hit a number collision, retrying",
			slog.Int("attempt", attempt), slog.Any("error", err))
	}

	if s.metrics != nil {
		s.metrics.PackageRegistered()
	}
	s.notifier.Enqueue(ctx, pending...)
	s.logger.Info("package registered",
		slog.Int64("package_id", pkg.ID),
		slog.String("tracking_number", pkg.TrackingNumber),
		slog.String("invoice_number", inv.InvoiceNumber),
		slog.String("price_source", string(inv.PriceSource)))
	return pkg, inv, nil
}

func (s *Service) register(ctx context.Context, tx TxRepository, req RegisterRequest, city string) (Package, billing.Invoice, error) {
	number, err := s.numbers.TrackingNumber(ctx, city, tx.TrackingNumberExists)
	if err != nil {
		return Package{}, billing.Invoice{}, fmt.Errorf("tracking number: %w", err)
	}
	now := s.now()
	pkg := Package{
		TrackingNumber:    number,
		SenderID:          req.SenderID,
		RecipientID:       req.RecipientID,
		RegisteredBy:      shared.ActorPtr(ctx),
		Weight:            req.Weight,
		Length:            req.Length,
		Width:             req.Width,
		Height:            req.Height,
		DeclaredValue:     req.DeclaredValue,
		Category:          req.Category,
		Status:            StatusPending,
		Priority:          req.Priority,
		Insured:           req.Insured,
		InsuredAmount:     decimal.Zero,
		ShippingFee:       decimal.Zero,
		Description:       strings.TrimSpace(req.Description),
		PlannedDeliveryAt: req.PlannedDeliveryAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if pkg.Insured {
		pkg.InsuredAmount = pkg.DeclaredValue
	}
	pkg.ID, err = tx.InsertPackage(ctx, pkg)
	if err != nil {
		return Package{}, billing.Invoice{}, fmt.Errorf("insert package: %w", err)
	}

	inv, err := s.invoices.Build(ctx, tx, billing.Subject{PackageID: pkg.ID, Tariff: pkg.TariffInput()})
	if err != nil {
		return Package{}, billing.Invoice{}, err
	}
	pkg.ShippingFee = inv.Total
	if err := tx.UpdatePackage(ctx, pkg.ID, map[string]interface{}{"shipping_fee": inv.Total}); err != nil {
		return Package{}, billing.Invoice{}, fmt.Errorf("set shipping fee: %w", err)
	}

	if _, err := tx.InsertTrackingEntry(ctx, TrackingEntry{
		PackageID:   pkg.ID,
		Status:      TrackingReceived,
		Description: "package received",
		ActorID:     shared.ActorPtr(ctx),
		CreatedAt:   now,
	}); err != nil {
		return Package{}, billing.Invoice{}, fmt.Errorf("insert tracking entry: %w", err)
	}
	return pkg, inv, nil
}

// MarkDelivered confirms a direct hand-off of a PENDING package. The code
// presented by the recipient must equal the tracking number.
func (s *Service) MarkDelivered(ctx context.Context, id int64, req DeliverRequest) (Package, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return Package{}, err
	}
	var (
		pkg     Package
		pending []int64
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetPackageForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusPending {
			return fmt.Errorf("%w: package %s is %s, expected %s",
				shared.ErrInvalidState, current.TrackingNumber, current.Status, StatusPending)
		}
		if strings.TrimSpace(req.Code) != current.TrackingNumber {
			return fmt.Errorf("package %s: %w", current.TrackingNumber, shared.ErrCodeMismatch)
		}
		pkg, err = Advance(ctx, tx, current, Step{Event: EventCodeConfirmed}, s.now())
		if err != nil {
			return err
		}
		recipient, err := s.recipients.Get(ctx, pkg.RecipientID)
		if err != nil {
			return fmt.Errorf("recipient: %w", err)
		}
		pending, err = insertNotifications(ctx, tx,
			notify.WithEmail(notify.DeliverySuccess(pkg.ID, pkg.TrackingNumber, recipient.Phone), recipient.Email))
		return err
	})
	if err != nil {
		return Package{}, err
	}
	s.observe(EventCodeConfirmed, pkg.Status)
	s.notifier.Enqueue(ctx, pending...)
	return pkg, nil
}

// ApplyEvent moves a package through the lifecycle by hand and records the
// step in its history. Final statuses notify the recipient.
func (s *Service) ApplyEvent(ctx context.Context, id int64, req EventRequest) (Package, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return Package{}, err
	}
	if !req.Event.Manual() {
		return Package{}, fmt.Errorf("%w: event %q cannot be applied directly", shared.ErrValidation, req.Event)
	}
	var (
		pkg     Package
		pending []int64
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetPackageForUpdate(ctx, id)
		if err != nil {
			return err
		}
		pkg, err = Advance(ctx, tx, current, Step{
			Event:       req.Event,
			Description: strings.TrimSpace(req.Description),
			Location:    req.Location,
			Latitude:    req.Latitude,
			Longitude:   req.Longitude,
		}, s.now())
		if err != nil {
			return err
		}
		if !pkg.Status.Terminal() {
			return nil
		}
		recipient, err := s.recipients.Get(ctx, pkg.RecipientID)
		if err != nil {
			return fmt.Errorf("recipient: %w", err)
		}
		pending, err = insertNotifications(ctx, tx, notify.WithEmail(
			notify.StatusChange(pkg.ID, pkg.TrackingNumber, recipient.Phone, pkg.Status.Label()), recipient.Email))
		return err
	})
	if err != nil {
		return Package{}, err
	}
	s.observe(req.Event, pkg.Status)
	s.notifier.Enqueue(ctx, pending...)
	return pkg, nil
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

func (s *Service) observe(ev Event, status Status) {
	if s.metrics != nil {
		s.metrics.ObserveTransition(string(ev), string(status))
	}
}

// Get returns a package.
func (s *Service) Get(ctx context.Context, id int64) (Package, error) {
	return s.store.Get(ctx, id)
}

// GetByTrackingNumber returns a package by tracking number.
func (s *Service) GetByTrackingNumber(ctx context.Context, number string) (Package, error) {
	number = strings.ToUpper(strings.TrimSpace(number))
	if number == "" {
		return Package{}, fmt.Errorf("%w: tracking number is required", shared.ErrValidation)
	}
	return s.store.GetByTrackingNumber(ctx, number)
}

// Track builds the public view of a package with its history.
func (s *Service) Track(ctx context.Context, number string) (PublicView, error) {
	pkg, err := s.GetByTrackingNumber(ctx, number)
	if err != nil {
		return PublicView{}, err
	}
	history, err := s.store.History(ctx, pkg.ID)
	if err != nil {
		return PublicView{}, err
	}
	for i := range history {
		history[i].ActorID = nil
	}
	return PublicView{
		TrackingNumber:    pkg.TrackingNumber,
		Status:            pkg.Status,
		StatusLabel:       pkg.Status.Label(),
		Priority:          pkg.Priority,
		PlannedDeliveryAt: pkg.PlannedDeliveryAt,
		DeliveredAt:       pkg.DeliveredAt,
		RegisteredAt:      pkg.CreatedAt,
		History:           history,
	}, nil
}

// List returns packages matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Package, int, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, *filter.Status)
	}
	if filter.Priority != nil && !filter.Priority.IsValid() {
		return nil, 0, fmt.Errorf("%w: unknown priority %q", shared.ErrValidation, *filter.Priority)
	}
	return s.store.List(ctx, filter)
}

// History returns the tracking entries of a package.
func (s *Service) History(ctx context.Context, id int64) ([]TrackingEntry, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load package: %w", err)
	}
	return s.store.History(ctx, id)
}
