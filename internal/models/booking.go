package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Booking struct {
	ID                 string          `json:"id"`
	ServiceID          string          `json:"service_id"`
	CustomerID         string          `json:"customer_id"`
	ProviderID         string          `json:"provider_id"`
	Date               string          `json:"date"`       // YYYY-MM-DD
	StartTime          string          `json:"start_time"` // HH:MM
	EndTime            string          `json:"end_time,omitempty"`
	DurationMinutes    int             `json:"duration_minutes,omitempty"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	Status             BookingStatus   `json:"status"`
	PaymentStatus      PaymentStatus   `json:"payment_status"`
	PaymentMethod      PaymentMethod   `json:"payment_method"`
	Notes              string          `json:"notes,omitempty"`
	CancellationReason string          `json:"cancellation_reason,omitempty"`
	Urgent             bool            `json:"urgent"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`

	// Display joins, filled on read.
	ServiceTitle string `json:"service_title,omitempty"`
	ServiceImage string `json:"service_image,omitempty"`
	CustomerName string `json:"customer_name,omitempty"`
	ProviderName string `json:"provider_name,omitempty"`
}

// CounterpartName returns the name of the other party from the viewer's role.
func (b *Booking) CounterpartName(viewer Role) string {
	if viewer == RoleProvider {
		return b.CustomerName
	}
	return b.ProviderName
}

// Involves reports whether userID is the customer or the provider of the booking.
func (b *Booking) Involves(userID string) bool {
	return userID != "" && (b.CustomerID == userID || b.ProviderID == userID)
}

// BookingFilter narrows ListBookings. Zero values mean "no filter".
type BookingFilter struct {
	CustomerID string
	ProviderID string
	Status     BookingStatus
	From       string // YYYY-MM-DD inclusive
	To         string // YYYY-MM-DD inclusive
	Limit      int
	Offset     int
}
