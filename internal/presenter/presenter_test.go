package presenter

import (
	"testing"

	"marketplace/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestAllowedActionsTable(t *testing.T) {
	tests := []struct {
		status   models.BookingStatus
		cancel   bool
		complete bool
		dispute  bool
	}{
		{models.StatusPending, true, false, false},
		{models.StatusConfirmed, true, true, false},
		{models.StatusInProgress, false, true, false},
		{models.StatusCompleted, false, false, true},
		{models.StatusCancelled, false, false, false},
		{models.StatusDisputed, false, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.cancel, Allows(tt.status, ActionCancel))
			assert.Equal(t, tt.complete, Allows(tt.status, ActionComplete))
			assert.Equal(t, tt.dispute, Allows(tt.status, ActionDispute))

			var want []Action
			if tt.cancel {
				want = append(want, ActionCancel)
			}
			if tt.complete {
				want = append(want, ActionComplete)
			}
			if tt.dispute {
				want = append(want, ActionDispute)
			}
			assert.ElementsMatch(t, want, AllowedActions(tt.status))
		})
	}
}

// Every offered action must also pass the write guard.
func TestActionsAgreeWithTransitionTable(t *testing.T) {
	for _, s := range models.BookingStatuses {
		for _, a := range AllowedActions(s) {
			assert.True(t, models.CanTransition(s, a.Target()), "%s offers %s", s, a)
		}
	}
}

func TestAllowedActionsIsCopy(t *testing.T) {
	got := AllowedActions(models.StatusConfirmed)
	got[0] = ActionDispute
	assert.Equal(t, []Action{ActionCancel, ActionComplete}, AllowedActions(models.StatusConfirmed))
}

func TestLabelsAndIcons(t *testing.T) {
	assert.Equal(t, "In progress", Label(models.StatusInProgress))
	assert.Equal(t, "badge-check", Icon(models.StatusCompleted))
	assert.Equal(t, "alert-triangle", Icon(models.StatusDisputed))
	assert.Equal(t, "weird", Label(models.BookingStatus("weird")))
	assert.Equal(t, "help-circle", Icon(models.BookingStatus("weird")))
	assert.Empty(t, AllowedActions(models.BookingStatus("weird")))

	assert.Equal(t, "Paid", PaymentLabel(models.PaymentPaid))
	assert.Equal(t, "Payment pending", PaymentLabel(models.PaymentPending))
}

func TestForBookingFiltersByRole(t *testing.T) {
	b := &models.Booking{Status: models.StatusConfirmed, PaymentStatus: models.PaymentPending, CustomerName: "Carla", ProviderName: "Pedro"}

	customer := ForBooking(b, models.RoleCustomer)
	assert.Equal(t, []Action{ActionCancel}, customer.AllowedActions)
	assert.Equal(t, "Pedro", customer.Counterpart)

	provider := ForBooking(b, models.RoleProvider)
	assert.Equal(t, []Action{ActionCancel, ActionComplete}, provider.AllowedActions)
	assert.Equal(t, "Carla", provider.Counterpart)
	assert.Equal(t, "Confirmed", provider.StatusLabel)
	assert.Equal(t, "Payment pending", provider.PaymentLabel)

	completed := &models.Booking{Status: models.StatusCompleted}
	assert.Equal(t, []Action{ActionDispute}, ForBooking(completed, models.RoleCustomer).AllowedActions)
	assert.Empty(t, ForBooking(completed, models.RoleProvider).AllowedActions)
}
