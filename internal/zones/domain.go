// Package zones administers the delivery zones the network serves: the
// districts a zone covers, its reference rates and the usual delay.
package zones

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Zone is a delivery area of a city.
type Zone struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	City      string          `json:"city"`
	Districts []string        `json:"districts"`
	BaseRate  decimal.Decimal `json:"base_rate"`
	PerKmRate decimal.Decimal `json:"per_km_rate"`
	DelayDays int             `json:"delay_days"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Covers reports whether district belongs to the zone, ignoring case and
// surrounding spaces.
func (z Zone) Covers(district string) bool {
	district = strings.TrimSpace(district)
	for _, d := range z.Districts {
		if strings.EqualFold(d, district) {
			return true
		}
	}
	return false
}

// CreateRequest registers a zone. DelayDays defaults to one day.
type CreateRequest struct {
	Name      string          `json:"name" validate:"required,max=100"`
	City      string          `json:"city" validate:"required,max=100"`
	Districts []string        `json:"districts" validate:"required,min=1,dive,required,max=100"`
	BaseRate  decimal.Decimal `json:"base_rate" validate:"gte=0"`
	PerKmRate decimal.Decimal `json:"per_km_rate" validate:"gte=0"`
	DelayDays *int            `json:"delay_days,omitempty" validate:"omitempty,gte=0,lte=60"`
}

// UpdateRequest changes selected fields of a zone.
type UpdateRequest struct {
	Name      *string          `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	City      *string          `json:"city,omitempty" validate:"omitempty,min=1,max=100"`
	Districts *[]string        `json:"districts,omitempty" validate:"omitempty,min=1,dive,required,max=100"`
	BaseRate  *decimal.Decimal `json:"base_rate,omitempty" validate:"omitempty,gte=0"`
	PerKmRate *decimal.Decimal `json:"per_km_rate,omitempty" validate:"omitempty,gte=0"`
	DelayDays *int             `json:"delay_days,omitempty" validate:"omitempty,gte=0,lte=60"`
	Active    *bool            `json:"active,omitempty"`
}

// ListFilter narrows zone listings.
type ListFilter struct {
	City       string
	District   string
	ActiveOnly bool
	Limit      int
	Offset     int
}

// normalizeDistricts trims names and drops blanks and case-insensitive
// duplicates, keeping the first spelling.
func normalizeDistricts(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, d := range in {
		d = strings.TrimSpace(d)
		key := strings.ToLower(d)
		if d == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	return out
}
