package models

import (
	"fmt"
	"time"
)

type DisputeStatus string

const (
	DisputeOpen        DisputeStatus = "open"
	DisputeUnderReview DisputeStatus = "under_review"
	DisputeResolved    DisputeStatus = "resolved"
	DisputeDeclined    DisputeStatus = "declined"
)

// legacyDisputeStatus maps the older pending/in_review/resolved/rejected
// vocabulary onto the canonical one. Reverse lookups use the same table.
var legacyDisputeStatus = map[string]DisputeStatus{
	"pending":   DisputeOpen,
	"in_review": DisputeUnderReview,
	"resolved":  DisputeResolved,
	"rejected":  DisputeDeclined,
}

// ParseDisputeStatus accepts both the canonical and the legacy vocabulary.
func ParseDisputeStatus(s string) (DisputeStatus, error) {
	switch st := DisputeStatus(s); st {
	case DisputeOpen, DisputeUnderReview, DisputeResolved, DisputeDeclined:
		return st, nil
	}
	if st, ok := legacyDisputeStatus[s]; ok {
		return st, nil
	}
	return "", fmt.Errorf("%w: dispute status %q", ErrInvalidStatus, s)
}

// Legacy returns the status in the pending/in_review/resolved/rejected vocabulary.
func (s DisputeStatus) Legacy() string {
	for legacy, canonical := range legacyDisputeStatus {
		if canonical == s {
			return legacy
		}
	}
	return string(s)
}

var disputeTransitions = map[DisputeStatus]map[DisputeStatus]bool{
	DisputeOpen:        {DisputeUnderReview: true, DisputeResolved: true, DisputeDeclined: true},
	DisputeUnderReview: {DisputeResolved: true, DisputeDeclined: true},
	DisputeResolved:    {},
	DisputeDeclined:    {},
}

func CanTransitionDispute(from, to DisputeStatus) bool {
	return disputeTransitions[from][to]
}

func (s DisputeStatus) IsTerminal() bool {
	return s == DisputeResolved || s == DisputeDeclined
}

type Dispute struct {
	ID           string        `json:"id"`
	BookingID    string        `json:"booking_id"`
	CustomerID   string        `json:"customer_id"`
	ProviderID   string        `json:"provider_id"`
	Reason       string        `json:"reason"`
	Description  string        `json:"description"`
	Status       DisputeStatus `json:"status"`
	EvidenceURLs []string      `json:"evidence_urls"`
	Resolution   string        `json:"resolution,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// DisputeScope selects which side of the dispute a user is listed by.
type DisputeScope string

const (
	ScopeCustomer DisputeScope = "customer"
	ScopeProvider DisputeScope = "provider"
)
