package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type WalletStatus string

const (
	WalletPending   WalletStatus = "pending"
	WalletSubmitted WalletStatus = "submitted"
	WalletVerified  WalletStatus = "verified"
	WalletRejected  WalletStatus = "rejected"
)

func ParseWalletStatus(s string) (WalletStatus, error) {
	switch st := WalletStatus(s); st {
	case WalletPending, WalletSubmitted, WalletVerified, WalletRejected:
		return st, nil
	default:
		return "", fmt.Errorf("%w: wallet status %q", ErrInvalidStatus, s)
	}
}

type ProofType string

const (
	ProofReceipt    ProofType = "receipt"
	ProofScreenshot ProofType = "screenshot"
	ProofReference  ProofType = "reference"
)

type WalletVerification struct {
	ID                  string          `json:"id"`
	BookingID           string          `json:"booking_id"`
	CustomerID          string          `json:"customer_id"`
	ProviderID          string          `json:"provider_id"`
	Amount              decimal.Decimal `json:"amount"`
	Method              PaymentMethod   `json:"method"`
	ReferenceNumber     string          `json:"reference_number"`
	CustomerPhone       string          `json:"customer_phone"`
	ProviderPhone       string          `json:"provider_phone"`
	ProofType           ProofType       `json:"proof_type"`
	ProofURL            string          `json:"proof_url,omitempty"`
	Status              WalletStatus    `json:"status"`
	CustomerConfirmedAt *time.Time      `json:"customer_confirmed_at,omitempty"`
	ProviderConfirmedAt *time.Time      `json:"provider_confirmed_at,omitempty"`
	AdminConfirmedAt    *time.Time      `json:"admin_confirmed_at,omitempty"`
	SubmittedAt         *time.Time      `json:"submitted_at,omitempty"`
	VerifiedAt          *time.Time      `json:"verified_at,omitempty"`
	RejectionReason     string          `json:"rejection_reason,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Confirm records the confirmation of the given role. It reports false when
// the role had already confirmed.
func (w *WalletVerification) Confirm(role Role, at time.Time) bool {
	var slot **time.Time
	switch role {
	case RoleCustomer:
		slot = &w.CustomerConfirmedAt
	case RoleProvider:
		slot = &w.ProviderConfirmedAt
	case RoleAdmin:
		slot = &w.AdminConfirmedAt
	default:
		return false
	}
	if *slot != nil {
		return false
	}
	t := at
	*slot = &t
	return true
}

// FullyConfirmed is true once customer, provider and admin have all confirmed.
func (w *WalletVerification) FullyConfirmed() bool {
	return w.CustomerConfirmedAt != nil && w.ProviderConfirmedAt != nil && w.AdminConfirmedAt != nil
}

type WalletFilter struct {
	CustomerID string
	ProviderID string
	Status     WalletStatus
}
