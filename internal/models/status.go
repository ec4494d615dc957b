package models

import "fmt"

type BookingStatus string

const (
	StatusPending    BookingStatus = "pending"
	StatusConfirmed  BookingStatus = "confirmed"
	StatusInProgress BookingStatus = "in_progress"
	StatusCompleted  BookingStatus = "completed"
	StatusCancelled  BookingStatus = "cancelled"
	StatusDisputed   BookingStatus = "disputed"
)

// BookingStatuses lists every status in lifecycle order.
var BookingStatuses = []BookingStatus{
	StatusPending,
	StatusConfirmed,
	StatusInProgress,
	StatusCompleted,
	StatusCancelled,
	StatusDisputed,
}

func ParseBookingStatus(s string) (BookingStatus, error) {
	switch st := BookingStatus(s); st {
	case StatusPending, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusDisputed:
		return st, nil
	default:
		return "", fmt.Errorf("%w: booking status %q", ErrInvalidStatus, s)
	}
}

// bookingTransitions is the only source of truth for status writes.
var bookingTransitions = map[BookingStatus]map[BookingStatus]bool{
	StatusPending:    {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed:  {StatusInProgress: true, StatusCompleted: true, StatusCancelled: true},
	StatusInProgress: {StatusCompleted: true},
	StatusCompleted:  {StatusDisputed: true},
	StatusCancelled:  {},
	StatusDisputed:   {},
}

func CanTransition(from, to BookingStatus) bool {
	m, ok := bookingTransitions[from]
	if !ok {
		return false
	}
	return m[to]
}

// IsTerminal reports whether no further status write is possible.
func (s BookingStatus) IsTerminal() bool {
	return len(bookingTransitions[s]) == 0
}

// transitionRoles lists who may move a booking into the target status.
var transitionRoles = map[BookingStatus][]Role{
	StatusConfirmed:  {RoleProvider, RoleAdmin},
	StatusInProgress: {RoleProvider, RoleAdmin},
	StatusCompleted:  {RoleProvider, RoleAdmin},
	StatusCancelled:  {RoleCustomer, RoleProvider, RoleAdmin},
	StatusDisputed:   {RoleCustomer, RoleAdmin},
}

func RoleMayTransition(role Role, to BookingStatus) bool {
	for _, r := range transitionRoles[to] {
		if r == role {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch st := PaymentStatus(s); st {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return st, nil
	default:
		return "", fmt.Errorf("%w: payment status %q", ErrInvalidStatus, s)
	}
}

type PaymentMethod string

const (
	PaymentCard       PaymentMethod = "card"
	PaymentCash       PaymentMethod = "cash"
	PaymentEWallet    PaymentMethod = "e_wallet"
	PaymentEasyWallet PaymentMethod = "easy_wallet"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(s); m {
	case PaymentCard, PaymentCash, PaymentEWallet, PaymentEasyWallet:
		return m, nil
	default:
		return "", fmt.Errorf("%w: payment method %q", ErrValidation, s)
	}
}

// RequiresWalletVerification is true for methods settled outside the card flow.
func (m PaymentMethod) RequiresWalletVerification() bool {
	return m == PaymentEWallet || m == PaymentEasyWallet
}
