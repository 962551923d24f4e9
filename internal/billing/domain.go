package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kid-livraison/parcel/internal/tariff"
)

// InvoiceStatus tracks settlement of an invoice.
type InvoiceStatus string

const (
	StatusPending       InvoiceStatus = "PENDING"
	StatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	StatusPaid          InvoiceStatus = "PAID"
	StatusCancelled     InvoiceStatus = "CANCELLED"
)

// IsValid reports whether the status is known.
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusPartiallyPaid, StatusPaid, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanPay reports whether payments may still be recorded.
func (s InvoiceStatus) CanPay() bool {
	return s == StatusPending || s == StatusPartiallyPaid
}

// CanCancel reports whether the invoice may be cancelled.
func (s InvoiceStatus) CanCancel() bool {
	return s == StatusPending || s == StatusPartiallyPaid
}

// PaymentMethod is how a payment was settled.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "CASH"
	MethodCard         PaymentMethod = "CARD"
	MethodMobileMoney  PaymentMethod = "MOBILE_MONEY"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
)

// Invoice is the billing record issued once per package. Amount fields are
// fixed at issuance.
type Invoice struct {
	ID                 int64           `json:"id"`
	InvoiceNumber      string          `json:"invoice_number"`
	PackageID          int64           `json:"package_id"`
	Base               decimal.Decimal `json:"base_amount"`
	DistanceSurcharge  decimal.Decimal `json:"distance_surcharge"`
	WeightSurcharge    decimal.Decimal `json:"weight_surcharge"`
	InsuranceSurcharge decimal.Decimal `json:"insurance_surcharge"`
	ExpressSurcharge   decimal.Decimal `json:"express_surcharge"`
	Total              decimal.Decimal `json:"total_amount"`
	AmountPaid         decimal.Decimal `json:"amount_paid"`
	Status             InvoiceStatus   `json:"status"`
	PaymentMethod      *PaymentMethod  `json:"payment_method,omitempty"`
	TariffID           *int64          `json:"tariff_id,omitempty"`
	PriceSource        tariff.Source   `json:"price_source"`
	IssuedAt           time.Time       `json:"issued_at"`
	PaidAt             *time.Time      `json:"paid_at,omitempty"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
	CancelReason       *string         `json:"cancel_reason,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	Payments           []Payment       `json:"payments,omitempty"`
}

// ComponentSum adds the five price components.
func (i Invoice) ComponentSum() decimal.Decimal {
	return decimal.Sum(i.Base, i.DistanceSurcharge, i.WeightSurcharge, i.InsuranceSurcharge, i.ExpressSurcharge)
}

// Balance is what remains to be paid.
func (i Invoice) Balance() decimal.Decimal {
	return i.Total.Sub(i.AmountPaid)
}

// Payment is one settlement recorded against an invoice.
type Payment struct {
	ID         int64           `json:"id"`
	InvoiceID  int64           `json:"invoice_id"`
	Amount     decimal.Decimal `json:"amount"`
	Method     PaymentMethod   `json:"method"`
	Reference  *string         `json:"reference,omitempty"`
	RecordedBy *int64          `json:"recorded_by,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Subject is the package being invoiced.
type Subject struct {
	PackageID int64
	Tariff    tariff.Input
}

// PaymentRequest records a payment.
type PaymentRequest struct {
	Amount    decimal.Decimal `json:"amount" validate:"gt=0"`
	Method    PaymentMethod   `json:"method" validate:"required,oneof=CASH CARD MOBILE_MONEY BANK_TRANSFER"`
	Reference *string         `json:"reference,omitempty" validate:"omitempty,max=100"`
	// IdempotencyKey comes from the Idempotency-Key header, not the body.
	IdempotencyKey string `json:"-" validate:"max=128"`
}

// CancelRequest cancels an unpaid invoice.
type CancelRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// ListFilter narrows invoice listings.
type ListFilter struct {
	Status    *InvoiceStatus
	PackageID *int64
	Limit     int
	Offset    int
}
