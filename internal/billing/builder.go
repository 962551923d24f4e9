package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kid-livraison/parcel/internal/numbering"
	"github.com/kid-livraison/parcel/internal/tariff"
)

// TxStore is the invoice surface available inside the registration
// transaction.
type TxStore interface {
	InvoiceNumberExists(ctx context.Context, number string) (bool, error)
	InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error)
}

// Pricer computes tariff breakdowns. *tariff.Calculator satisfies it.
type Pricer interface {
	Compute(ctx context.Context, in tariff.Input) tariff.Breakdown
}

// Builder issues the invoice of a newly registered package.
type Builder struct {
	numbers *numbering.Generator
	pricer  Pricer
	now     func() time.Time
}

// NewBuilder constructs a Builder.
func NewBuilder(numbers *numbering.Generator, pricer Pricer) *Builder {
	return &Builder{numbers: numbers, pricer: pricer, now: time.Now}
}

// Build numbers, prices and persists the invoice of subject through store.
// It is called exactly once per package, inside the registration
// transaction; nothing recomputes the amounts afterwards.
func (b *Builder) Build(ctx context.Context, store TxStore, subject Subject) (Invoice, error) {
	number, err := b.numbers.InvoiceNumber(ctx, store.InvoiceNumberExists)
	if err != nil {
		return Invoice{}, fmt.Errorf("invoice number: %w", err)
	}
	breakdown := b.pricer.Compute(ctx, subject.Tariff)
	inv := Issue(number, subject.PackageID, breakdown, b.now())
	saved, err := store.InsertInvoice(ctx, inv)
	if err != nil {
		return Invoice{}, fmt.Errorf("insert invoice: %w", err)
	}
	return saved, nil
}

// Issue derives an unpaid invoice from a breakdown.
func Issue(number string, packageID int64, bd tariff.Breakdown, at time.Time) Invoice {
	inv := Invoice{
		InvoiceNumber:      number,
		PackageID:          packageID,
		Base:               bd.Base,
		DistanceSurcharge:  bd.DistanceSurcharge,
		WeightSurcharge:    bd.WeightSurcharge,
		InsuranceSurcharge: bd.InsuranceSurcharge,
		ExpressSurcharge:   bd.ExpressSurcharge,
		AmountPaid:         decimal.Zero,
		Status:             StatusPending,
		TariffID:           bd.TariffID,
		PriceSource:        bd.Source,
		IssuedAt:           at,
	}
	inv.Total = inv.ComponentSum()
	return inv
}
