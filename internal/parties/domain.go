// Package parties manages the senders and recipients packages travel between.
package parties

import "time"

// Role distinguishes the two party registers. Both share one shape.
type Role string

const (
	RoleSender    Role = "sender"
	RoleRecipient Role = "recipient"
)

func (r Role) table() string {
	if r == RoleRecipient {
		return "recipients"
	}
	return "senders"
}

// Party is a sender or recipient of packages.
type Party struct {
	ID         int64     `json:"id"`
	Role       Role      `json:"role"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone"`
	Email      *string   `json:"email,omitempty"`
	Address    string    `json:"address"`
	City       string    `json:"city"`
	District   *string   `json:"district,omitempty"`
	PostalCode *string   `json:"postal_code,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CreateRequest registers a party.
type CreateRequest struct {
	Name       string  `json:"name" validate:"required,max=200"`
	Phone      string  `json:"phone" validate:"required,min=6,max=20"`
	Email      *string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Address    string  `json:"address" validate:"required"`
	City       string  `json:"city" validate:"required,max=100"`
	District   *string `json:"district,omitempty" validate:"omitempty,max=100"`
	PostalCode *string `json:"postal_code,omitempty" validate:"omitempty,max=20"`
}

// UpdateRequest changes selected fields of a party.
type UpdateRequest struct {
	Name       *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Phone      *string `json:"phone,omitempty" validate:"omitempty,min=6,max=20"`
	Email      *string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Address    *string `json:"address,omitempty" validate:"omitempty,min=1"`
	City       *string `json:"city,omitempty" validate:"omitempty,min=1,max=100"`
	District   *string `json:"district,omitempty" validate:"omitempty,max=100"`
	PostalCode *string `json:"postal_code,omitempty" validate:"omitempty,max=20"`
}

// ListFilter narrows party listings.
type ListFilter struct {
	Search string
	City   string
	Limit  int
	Offset int
}
