// Package parcel registers packages and drives them through their delivery
// lifecycle, keeping the tracking history and invoice consistent with it.
package parcel

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kid-livraison/parcel/internal/billing"
	"github.com/kid-livraison/parcel/internal/tariff"
)

// Status is the lifecycle state of a package.
type Status string

const (
	StatusPending        Status = "PENDING"
	StatusInTransit      Status = "IN_TRANSIT"
	StatusOutForDelivery Status = "OUT_FOR_DELIVERY"
	StatusDelivered      Status = "DELIVERED"
	StatusReturned       Status = "RETURNED"
	StatusCancelled      Status = "CANCELLED"
)

// IsValid reports whether the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInTransit, StatusOutForDelivery,
		StatusDelivered, StatusReturned, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further event is accepted.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusReturned || s == StatusCancelled
}

// Label is the customer-facing name of the status.
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "En attente"
	case StatusInTransit:
		return "En transit"
	case StatusOutForDelivery:
		return "En cours de livraison"
	case StatusDelivered:
		return "Livré"
	case StatusReturned:
		return "Retourné"
	case StatusCancelled:
		return "Annulé"
	default:
		return string(s)
	}
}

// Category classifies the handling a package needs.
type Category string

const (
	CategoryDocument  Category = "DOCUMENT"
	CategoryStandard  Category = "STANDARD"
	CategoryFragile   Category = "FRAGILE"
	CategoryOversized Category = "OVERSIZED"
)

// TrackingStatus is the status snapshot written to a tracking entry.
type TrackingStatus string

const (
	TrackingReceived       TrackingStatus = "RECEIVED"
	TrackingPreparing      TrackingStatus = "PREPARING"
	TrackingInTransit      TrackingStatus = "IN_TRANSIT"
	TrackingOutForDelivery TrackingStatus = "OUT_FOR_DELIVERY"
	TrackingDelivered      TrackingStatus = "DELIVERED"
	TrackingDeliveryFailed TrackingStatus = "DELIVERY_FAILED"
	TrackingReturned       TrackingStatus = "RETURNED"
	TrackingCancelled      TrackingStatus = "CANCELLED"
)

// Package is a shipment tracked end to end. The tracking number is assigned
// once at registration and never changes.
type Package struct {
	ID                int64            `json:"id"`
	TrackingNumber    string           `json:"tracking_number"`
	SenderID          int64            `json:"sender_id"`
	RecipientID       int64            `json:"recipient_id"`
	RegisteredBy      *int64           `json:"registered_by,omitempty"`
	Weight            decimal.Decimal  `json:"weight"`
	Length            *decimal.Decimal `json:"length,omitempty"`
	Width             *decimal.Decimal `json:"width,omitempty"`
	Height            *decimal.Decimal `json:"height,omitempty"`
	DeclaredValue     decimal.Decimal  `json:"declared_value"`
	Category          Category         `json:"category"`
	Status            Status           `json:"status"`
	Priority          tariff.Priority  `json:"priority"`
	Insured           bool             `json:"insured"`
	InsuredAmount     decimal.Decimal  `json:"insured_amount"`
	ShippingFee       decimal.Decimal  `json:"shipping_fee"`
	Description       string           `json:"description"`
	PlannedDeliveryAt *time.Time       `json:"planned_delivery_at,omitempty"`
	DeliveredAt       *time.Time       `json:"delivered_at,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// TariffInput is the pricing view of the package.
func (p Package) TariffInput() tariff.Input {
	return tariff.Input{
		Weight:        p.Weight,
		Priority:      p.Priority,
		Insured:       p.Insured,
		DeclaredValue: p.DeclaredValue,
	}
}

// TrackingEntry is one append-only row of a package's history.
type TrackingEntry struct {
	ID          int64            `json:"id"`
	PackageID   int64            `json:"package_id"`
	Status      TrackingStatus   `json:"status"`
	Description string           `json:"description"`
	Location    *string          `json:"location,omitempty"`
	Latitude    *decimal.Decimal `json:"latitude,omitempty"`
	Longitude   *decimal.Decimal `json:"longitude,omitempty"`
	ActorID     *int64           `json:"actor_id,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Registration is the outcome of registering a package.
type Registration struct {
	Package Package         `json:"package"`
	Invoice billing.Invoice `json:"invoice"`
}

// RegisterRequest carries the intake form of a package.
type RegisterRequest struct {
	SenderID          int64            `json:"sender_id" validate:"required,gt=0"`
	RecipientID       int64            `json:"recipient_id" validate:"required,gt=0"`
	Weight            decimal.Decimal  `json:"weight" validate:"gt=0"`
	Length            *decimal.Decimal `json:"length,omitempty" validate:"omitempty,gt=0"`
	Width             *decimal.Decimal `json:"width,omitempty" validate:"omitempty,gt=0"`
	Height            *decimal.Decimal `json:"height,omitempty" validate:"omitempty,gt=0"`
	DeclaredValue     decimal.Decimal  `json:"declared_value" validate:"gte=0"`
	Category          Category         `json:"category" validate:"required,oneof=DOCUMENT STANDARD FRAGILE OVERSIZED"`
	Priority          tariff.Priority  `json:"priority" validate:"required,oneof=NORMAL EXPRESS URGENT"`
	Insured           bool             `json:"insured"`
	Description       string           `json:"description" validate:"max=1000"`
	PlannedDeliveryAt *time.Time       `json:"planned_delivery_at,omitempty"`
}

// DeliverRequest confirms a hand-off with the code shown to the recipient.
type DeliverRequest struct {
	Code string `json:"code" validate:"required"`
}

// EventRequest applies a lifecycle event by hand.
type EventRequest struct {
	Event       Event            `json:"event" validate:"required"`
	Description string           `json:"description" validate:"max=500"`
	Location    *string          `json:"location,omitempty" validate:"omitempty,max=200"`
	Latitude    *decimal.Decimal `json:"latitude,omitempty"`
	Longitude   *decimal.Decimal `json:"longitude,omitempty"`
}

// ListFilter narrows package listings.
type ListFilter struct {
	Status   *Status
	Priority *tariff.Priority
	Search   string
	Limit    int
	Offset   int
}

// PublicView is what the tracking lookup exposes to anyone holding the
// tracking number.
type PublicView struct {
	TrackingNumber    string          `json:"tracking_number"`
	Status            Status          `json:"status"`
	StatusLabel       string          `json:"status_label"`
	Priority          tariff.Priority `json:"priority"`
	PlannedDeliveryAt *time.Time      `json:"planned_delivery_at,omitempty"`
	DeliveredAt       *time.Time      `json:"delivered_at,omitempty"`
	RegisteredAt      time.Time       `json:"registered_at"`
	History           []TrackingEntry `json:"history"`
}
