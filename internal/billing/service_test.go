package billing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kid-livraison/parcel/internal/numbering"
	"github.com/kid-livraison/parcel/internal/shared"
	"github.com/kid-livraison/parcel/internal/tariff"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type memoryRepo struct {
	invoices map[int64]Invoice
	payments []Payment
	keys     map[string]bool
	nextID   int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{invoices: make(map[int64]Invoice), keys: make(map[string]bool)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make(map[int64]Invoice, len(r.invoices))
	for k, v := range r.invoices {
		snapshot[k] = v
	}
	keys := make(map[string]bool, len(r.keys))
	for k := range r.keys {
		keys[k] = true
	}
	payments := len(r.payments)
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.invoices = snapshot
		r.keys = keys
		r.payments = r.payments[:payments]
		return err
	}
	return nil
}

func (r *memoryRepo) Get(_ context.Context, id int64) (Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return Invoice{}, fmt.Errorf("invoice %d: %w", id, shared.ErrNotFound)
	}
	for _, p := range r.payments {
		if p.InvoiceID == id {
			inv.Payments = append(inv.Payments, p)
		}
	}
	return inv, nil
}

func (r *memoryRepo) GetByPackage(ctx context.Context, packageID int64) (Invoice, error) {
	for id, inv := range r.invoices {
		if inv.PackageID == packageID {
			return r.Get(ctx, id)
		}
	}
	return Invoice{}, fmt.Errorf("invoice: %w", shared.ErrNotFound)
}

func (r *memoryRepo) List(_ context.Context, filter ListFilter) ([]Invoice, int, error) {
	var out []Invoice
	for _, inv := range r.invoices {
		if filter.Status != nil && inv.Status != *filter.Status {
			continue
		}
		out = append(out, inv)
	}
	return out, len(out), nil
}

// InvoiceNumberExists and InsertInvoice let memoryTx double as a Builder TxStore.
func (tx *memoryTx) InvoiceNumberExists(_ context.Context, number string) (bool, error) {
	for _, inv := range tx.repo.invoices {
		if inv.InvoiceNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) InsertInvoice(_ context.Context, inv Invoice) (Invoice, error) {
	tx.repo.nextID++
	inv.ID = tx.repo.nextID
	tx.repo.invoices[inv.ID] = inv
	return inv, nil
}

func (tx *memoryTx) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	return tx.repo.Get(ctx, id)
}

func (tx *memoryTx) UpdateInvoice(_ context.Context, id int64, updates map[string]interface{}) error {
	if _, err := mutableFields(updates); err != nil {
		return err
	}
	inv, ok := tx.repo.invoices[id]
	if !ok {
		return shared.ErrNotFound
	}
	for field, value := range updates {
		switch field {
		case "status":
			inv.Status = value.(InvoiceStatus)
		case "amount_paid":
			inv.AmountPaid = value.(decimal.Decimal)
		case "payment_method":
			m := value.(PaymentMethod)
			inv.PaymentMethod = &m
		case "paid_at":
			at := value.(time.Time)
			inv.PaidAt = &at
		case "cancelled_at":
			at := value.(time.Time)
			inv.CancelledAt = &at
		case "cancel_reason":
			reason := value.(string)
			inv.CancelReason = &reason
		}
	}
	tx.repo.invoices[id] = inv
	return nil
}

func (tx *memoryTx) InsertPayment(_ context.Context, p Payment) (int64, error) {
	p.ID = int64(len(tx.repo.payments) + 1)
	tx.repo.payments = append(tx.repo.payments, p)
	return p.ID, nil
}

func (tx *memoryTx) ClaimPaymentKey(_ context.Context, invoiceID int64, key string) error {
	scoped := paymentScope(invoiceID) + "/" + key
	if tx.repo.keys[scoped] {
		return shared.ErrDuplicateRequest
	}
	tx.repo.keys[scoped] = true
	return nil
}

type tableLookup struct {
	rows []tariff.Tariff
}

func (l *tableLookup) Candidates(context.Context, tariff.ServiceClass, decimal.Decimal, time.Time) ([]tariff.Tariff, error) {
	return l.rows, nil
}

func newBuilder(lookup tariff.Lookup) *Builder {
	calc := tariff.NewCalculator(lookup, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return NewBuilder(numbering.New(), calc)
}

func issue(t *testing.T, repo *memoryRepo, builder *Builder, packageID int64, in tariff.Input) Invoice {
	t.Helper()
	var inv Invoice
	err := repo.WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = builder.Build(ctx, tx.(*memoryTx), Subject{PackageID: packageID, Tariff: in})
		return err
	})
	require.NoError(t, err)
	return inv
}

func TestBuildIssuesPendingInvoice(t *testing.T) {
	repo := newMemoryRepo()
	lookup := &tableLookup{rows: []tariff.Tariff{{
		ID: 7, WeightMin: dec("0"), WeightMax: dec("5"), Price: dec("1000"),
		ServiceClass: tariff.ClassExpress, Active: true, ValidFrom: time.Now().AddDate(0, -1, 0),
	}}}

	inv := issue(t, repo, newBuilder(lookup), 1, tariff.Input{
		Weight: dec("2"), Priority: tariff.PriorityExpress, Insured: true, DeclaredValue: dec("100000"),
	})

	assert.Regexp(t, `^FACT[0-9A-F]{8}$`, inv.InvoiceNumber)
	assert.Equal(t, StatusPending, inv.Status)
	assert.True(t, inv.AmountPaid.IsZero())
	assert.True(t, dec("1000").Equal(inv.Base))
	assert.True(t, dec("200").Equal(inv.ExpressSurcharge))
	assert.True(t, dec("1000").Equal(inv.InsuranceSurcharge))
	assert.True(t, dec("2200").Equal(inv.Total))
	assert.True(t, inv.Total.Equal(inv.ComponentSum()))
	assert.Equal(t, tariff.SourceTable, inv.PriceSource)
	require.NotNil(t, inv.TariffID)
	assert.Equal(t, int64(7), *inv.TariffID)
}

func TestIssuedInvoiceSurvivesTariffChange(t *testing.T) {
	repo := newMemoryRepo()
	lookup := &tableLookup{rows: []tariff.Tariff{{
		ID: 1, WeightMin: dec("0"), WeightMax: dec("5"), Price: dec("1000"),
		ServiceClass: tariff.ClassStandard, Active: true, ValidFrom: time.Now().AddDate(0, -1, 0),
	}}}
	builder := newBuilder(lookup)
	issued := issue(t, repo, builder, 1, tariff.Input{Weight: dec("1"), Priority: tariff.PriorityNormal})

	lookup.rows[0].Price = dec("9999")
	second := issue(t, repo, builder, 2, tariff.Input{Weight: dec("1"), Priority: tariff.PriorityNormal})
	assert.True(t, dec("9999").Equal(second.Total))

	svc := NewService(repo)
	_, err := svc.RecordPayment(context.Background(), issued.ID, PaymentRequest{Amount: dec("100"), Method: MethodCash})
	require.NoError(t, err)

	stored, err := svc.Get(context.Background(), issued.ID)
	require.NoError(t, err)
	assert.True(t, dec("1000").Equal(stored.Total))
	assert.True(t, stored.Total.Equal(stored.ComponentSum()))
}

func TestAmountColumnsAreImmutable(t *testing.T) {
	for _, col := range []string{"total_amount", "base_amount", "express_surcharge", "insurance_surcharge", "invoice_number"} {
		_, err := mutableFields(map[string]interface{}{col: dec("1")})
		require.ErrorIs(t, err, ErrImmutableColumn, col)
	}
	fields, err := mutableFields(map[string]interface{}{"status": StatusPaid, "amount_paid": dec("1")})
	require.NoError(t, err)
	assert.Equal(t, []string{"amount_paid", "status"}, fields)
}

func seedInvoice(repo *memoryRepo, total string) int64 {
	inv := Issue("FACT00000001", 1, tariff.Breakdown{Base: dec(total), Source: tariff.SourceDefault}, time.Now())
	repo.nextID++
	inv.ID = repo.nextID
	repo.invoices[inv.ID] = inv
	return inv.ID
}

func TestPaymentProgression(t *testing.T) {
	repo := newMemoryRepo()
	id := seedInvoice(repo, "5000")
	svc := NewService(repo)
	ctx := shared.ContextWithActor(context.Background(), 42)

	inv, err := svc.RecordPayment(ctx, id, PaymentRequest{Amount: dec("2000"), Method: MethodMobileMoney})
	require.NoError(t, err)
	assert.Equal(t, StatusPartiallyPaid, inv.Status)
	assert.True(t, dec("3000").Equal(inv.Balance()))
	assert.Nil(t, inv.PaidAt)
	require.Len(t, inv.Payments, 1)
	require.NotNil(t, inv.Payments[0].RecordedBy)
	assert.Equal(t, int64(42), *inv.Payments[0].RecordedBy)

	_, err = svc.RecordPayment(ctx, id, PaymentRequest{Amount: dec("3500"), Method: MethodCash})
	require.ErrorIs(t, err, shared.ErrValidation, "overpayment")

	inv, err = svc.RecordPayment(ctx, id, PaymentRequest{Amount: dec("3000"), Method: MethodCash})
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, inv.Status)
	assert.NotNil(t, inv.PaidAt)
	assert.Len(t, inv.Payments, 2)

	_, err = svc.RecordPayment(ctx, id, PaymentRequest{Amount: dec("1"), Method: MethodCash})
	require.ErrorIs(t, err, shared.ErrInvalidState)

	_, err = svc.Cancel(ctx, id, CancelRequest{Reason: "customer request"})
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestPaymentValidation(t *testing.T) {
	repo := newMemoryRepo()
	id := seedInvoice(repo, "5000")
	svc := NewService(repo)

	_, err := svc.RecordPayment(context.Background(), id, PaymentRequest{Amount: dec("0"), Method: MethodCash})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.RecordPayment(context.Background(), id, PaymentRequest{Amount: dec("10"), Method: "CHEQUE"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.RecordPayment(context.Background(), 99, PaymentRequest{Amount: dec("10"), Method: MethodCash})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCancel(t *testing.T) {
	repo := newMemoryRepo()
	id := seedInvoice(repo, "5000")
	svc := NewService(repo)

	inv, err := svc.Cancel(context.Background(), id, CancelRequest{Reason: "duplicate"})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, inv.Status)
	require.NotNil(t, inv.CancelReason)
	assert.Equal(t, "duplicate", *inv.CancelReason)
	assert.True(t, dec("5000").Equal(inv.Total))

	_, err = svc.RecordPayment(context.Background(), id, PaymentRequest{Amount: dec("10"), Method: MethodCash})
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestPaymentRetryWithSameKeyIsRecordedOnce(t *testing.T) {
	repo := newMemoryRepo()
	id := seedInvoice(repo, "5000")
	other := seedInvoice(repo, "5000")
	svc := NewService(repo)
	ctx := context.Background()
	req := PaymentRequest{Amount: dec("1000"), Method: MethodCash, IdempotencyKey: "pay-1"}

	first, err := svc.RecordPayment(ctx, id, req)
	require.NoError(t, err)
	again, err := svc.RecordPayment(ctx, id, req)
	require.NoError(t, err)

	assert.True(t, first.AmountPaid.Equal(again.AmountPaid))
	assert.Len(t, again.Payments, 1)

	// Keys are scoped per invoice.
	inv, err := svc.RecordPayment(ctx, other, req)
	require.NoError(t, err)
	assert.Len(t, inv.Payments, 1)
}

func TestFailedPaymentReleasesKey(t *testing.T) {
	repo := newMemoryRepo()
	id := seedInvoice(repo, "5000")
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.RecordPayment(ctx, id, PaymentRequest{Amount: dec("9000"), Method: MethodCash, IdempotencyKey: "pay-2"})
	require.ErrorIs(t, err, shared.ErrValidation)

	inv, err := svc.RecordPayment(ctx, id, PaymentRequest{Amount: dec("5000"), Method: MethodCash, IdempotencyKey: "pay-2"})
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, inv.Status)
}
