package tariff

import (
	"time"

	"github.com/shopspring/decimal"
)

// ServiceClass is the class of service a tariff row prices.
type ServiceClass string

const (
	ClassStandard ServiceClass = "STANDARD"
	ClassExpress  ServiceClass = "EXPRESS"
	ClassUrgent   ServiceClass = "URGENT"
)

// IsValid reports whether the class is known.
func (c ServiceClass) IsValid() bool {
	switch c {
	case ClassStandard, ClassExpress, ClassUrgent:
		return true
	default:
		return false
	}
}

// Priority is the delivery priority requested for a package.
type Priority string

const (
	PriorityNormal  Priority = "NORMAL"
	PriorityExpress Priority = "EXPRESS"
	PriorityUrgent  Priority = "URGENT"
)

// IsValid reports whether the priority is known.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityNormal, PriorityExpress, PriorityUrgent:
		return true
	default:
		return false
	}
}

// ServiceClass maps a priority onto the tariff rows that price it.
func (p Priority) ServiceClass() ServiceClass {
	switch p {
	case PriorityExpress:
		return ClassExpress
	case PriorityUrgent:
		return ClassUrgent
	default:
		return ClassStandard
	}
}

// surchargeRate is the share of the base price added for the priority.
func (p Priority) surchargeRate() decimal.Decimal {
	switch p {
	case PriorityExpress:
		return decimal.RequireFromString("0.20")
	case PriorityUrgent:
		return decimal.RequireFromString("0.50")
	default:
		return decimal.Zero
	}
}

// Tariff is one pricing row.
type Tariff struct {
	ID           int64           `json:"id"`
	WeightMin    decimal.Decimal `json:"weight_min"`
	WeightMax    decimal.Decimal `json:"weight_max"`
	DistanceMin  decimal.Decimal `json:"distance_min"`
	DistanceMax  decimal.Decimal `json:"distance_max"`
	Price        decimal.Decimal `json:"price"`
	ServiceClass ServiceClass    `json:"service_class"`
	Active       bool            `json:"active"`
	ValidFrom    time.Time       `json:"valid_from"`
	ValidTo      *time.Time      `json:"valid_to,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Eligible reports whether the row can price a package of the given weight
// and class on the given day.
func (t Tariff) Eligible(weight decimal.Decimal, class ServiceClass, today time.Time) bool {
	if !t.Active || t.ServiceClass != class {
		return false
	}
	if weight.LessThan(t.WeightMin) || weight.GreaterThan(t.WeightMax) {
		return false
	}
	day := dateOnly(today)
	if dateOnly(t.ValidFrom).After(day) {
		return false
	}
	return t.ValidTo == nil || !dateOnly(*t.ValidTo).Before(day)
}

func (t Tariff) weightSpan() decimal.Decimal {
	return t.WeightMax.Sub(t.WeightMin)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Source records where a breakdown's base price came from.
type Source string

const (
	// SourceTable means an eligible tariff row priced the package.
	SourceTable Source = "table"
	// SourceDefault means no row matched and the default base was used.
	SourceDefault Source = "default"
	// SourceFallback means the lookup failed and the default base was used.
	SourceFallback Source = "fallback"
)

// Input carries the package attributes a tariff depends on.
type Input struct {
	Weight        decimal.Decimal `json:"weight" validate:"gt=0"`
	Priority      Priority        `json:"priority" validate:"required,oneof=NORMAL EXPRESS URGENT"`
	Insured       bool            `json:"insured"`
	DeclaredValue decimal.Decimal `json:"declared_value" validate:"gte=0"`
}

// Breakdown is the five-component price of a package.
type Breakdown struct {
	Base               decimal.Decimal `json:"base"`
	DistanceSurcharge  decimal.Decimal `json:"distance_surcharge"`
	WeightSurcharge    decimal.Decimal `json:"weight_surcharge"`
	InsuranceSurcharge decimal.Decimal `json:"insurance_surcharge"`
	ExpressSurcharge   decimal.Decimal `json:"express_surcharge"`
	Source             Source          `json:"source"`
	TariffID           *int64          `json:"tariff_id,omitempty"`
}

// Total is the sum of the five components.
func (b Breakdown) Total() decimal.Decimal {
	return decimal.Sum(b.Base, b.DistanceSurcharge, b.WeightSurcharge, b.InsuranceSurcharge, b.ExpressSurcharge)
}

// CreateRequest is the admin payload for a new tariff row.
type CreateRequest struct {
	WeightMin    decimal.Decimal `json:"weight_min" validate:"gte=0"`
	WeightMax    decimal.Decimal `json:"weight_max" validate:"gt=0"`
	DistanceMin  decimal.Decimal `json:"distance_min" validate:"gte=0"`
	DistanceMax  decimal.Decimal `json:"distance_max" validate:"gte=0"`
	Price        decimal.Decimal `json:"price" validate:"gte=0"`
	ServiceClass ServiceClass    `json:"service_class" validate:"required,oneof=STANDARD EXPRESS URGENT"`
	ValidFrom    time.Time       `json:"valid_from" validate:"required"`
	ValidTo      *time.Time      `json:"valid_to,omitempty"`
}

// ListFilter narrows tariff listings.
type ListFilter struct {
	ServiceClass *ServiceClass
	ActiveOnly   bool
	Limit        int
	Offset       int
}
