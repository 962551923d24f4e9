package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kid-livraison/parcel/internal/shared"
)

// Service manages issued invoices. Issuance itself is done by Builder.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService constructs a billing service.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Get returns an invoice with its payments.
func (s *Service) Get(ctx context.Context, id int64) (Invoice, error) {
	return s.store.Get(ctx, id)
}

// GetByPackage returns the invoice issued for a package.
func (s *Service) GetByPackage(ctx context.Context, packageID int64) (Invoice, error) {
	return s.store.GetByPackage(ctx, packageID)
}

// List returns invoices and their total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Invoice, int, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, 0, fmt.Errorf("%w: unknown invoice status %q", shared.ErrValidation, *filter.Status)
	}
	return s.store.List(ctx, filter)
}

// RecordPayment adds a payment and moves the invoice to PARTIALLY_PAID or PAID.
// A request repeating an already used IdempotencyKey records nothing and
// returns the invoice as it stands.
func (s *Service) RecordPayment(ctx context.Context, id int64, req PaymentRequest) (Invoice, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return Invoice{}, err
	}
	amount := req.Amount.Round(2)

	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req.IdempotencyKey != "" {
			if err := tx.ClaimPaymentKey(ctx, id, req.IdempotencyKey); err != nil {
				return err
			}
		}
		if !inv.Status.CanPay() {
			return fmt.Errorf("%w: invoice %s is %s", shared.ErrInvalidState, inv.InvoiceNumber, inv.Status)
		}
		if amount.GreaterThan(inv.Balance()) {
			return fmt.Errorf("%w: payment %s exceeds balance %s", shared.ErrValidation, amount, inv.Balance())
		}

		paid := inv.AmountPaid.Add(amount)
		updates := map[string]interface{}{
			"amount_paid":    paid,
			"payment_method": req.Method,
			"status":         StatusPartiallyPaid,
		}
		if paid.Equal(inv.Total) {
			updates["status"] = StatusPaid
			updates["paid_at"] = s.now()
		}
		if err := tx.UpdateInvoice(ctx, id, updates); err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}
		_, err = tx.InsertPayment(ctx, Payment{
			InvoiceID:  id,
			Amount:     amount,
			Method:     req.Method,
			Reference:  req.Reference,
			RecordedBy: shared.ActorPtr(ctx),
		})
		return err
	})
	if err != nil && !errors.Is(err, shared.ErrDuplicateRequest) {
		return Invoice{}, err
	}
	return s.store.Get(ctx, id)
}

// Cancel voids an invoice that has not been fully paid.
func (s *Service) Cancel(ctx context.Context, id int64, req CancelRequest) (Invoice, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return Invoice{}, err
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !inv.Status.CanCancel() {
			return fmt.Errorf("%w: invoice %s is %s", shared.ErrInvalidState, inv.InvoiceNumber, inv.Status)
		}
		return tx.UpdateInvoice(ctx, id, map[string]interface{}{
			"status":        StatusCancelled,
			"cancelled_at":  s.now(),
			"cancel_reason": req.Reason,
		})
	})
	if err != nil {
		return Invoice{}, err
	}
	return s.store.Get(ctx, id)
}
