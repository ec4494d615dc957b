// Package presenter derives what a client shows for a booking: label, icon
// and the actions the current status offers.
package presenter

import "marketplace/internal/models"

type Action string

const (
	ActionCancel   Action = "cancel"
	ActionComplete Action = "complete"
	ActionDispute  Action = "dispute"
)

// Actions lists every action in display order.
var Actions = []Action{ActionCancel, ActionComplete, ActionDispute}

// Target is the booking status an action writes.
func (a Action) Target() models.BookingStatus {
	switch a {
	case ActionCancel:
		return models.StatusCancelled
	case ActionComplete:
		return models.StatusCompleted
	case ActionDispute:
		return models.StatusDisputed
	default:
		return ""
	}
}

type statusView struct {
	label   string
	icon    string
	actions []Action
}

var statusViews = map[models.BookingStatus]statusView{
	models.StatusPending:    {"Pending", "clock", []Action{ActionCancel}},
	models.StatusConfirmed:  {"Confirmed", "check-circle", []Action{ActionCancel, ActionComplete}},
	models.StatusInProgress: {"In progress", "loader", []Action{ActionComplete}},
	models.StatusCompleted:  {"Completed", "badge-check", []Action{ActionDispute}},
	models.StatusCancelled:  {"Cancelled", "x-circle", nil},
	models.StatusDisputed:   {"Disputed", "alert-triangle", nil},
}

var paymentLabels = map[models.PaymentStatus]string{
	models.PaymentPending:  "Payment pending",
	models.PaymentPaid:     "Paid",
	models.PaymentFailed:   "Payment failed",
	models.PaymentRefunded: "Refunded",
}

func Label(s models.BookingStatus) string {
	if v, ok := statusViews[s]; ok {
		return v.label
	}
	return string(s)
}

func Icon(s models.BookingStatus) string {
	if v, ok := statusViews[s]; ok {
		return v.icon
	}
	return "help-circle"
}

// AllowedActions returns a fresh slice; unknown statuses allow nothing.
func AllowedActions(s models.BookingStatus) []Action {
	v := statusViews[s]
	return append([]Action{}, v.actions...)
}

func Allows(s models.BookingStatus, a Action) bool {
	for _, allowed := range statusViews[s].actions {
		if allowed == a {
			return true
		}
	}
	return false
}

func PaymentLabel(s models.PaymentStatus) string {
	if l, ok := paymentLabels[s]; ok {
		return l
	}
	return string(s)
}

// View is the presentation block attached to API booking responses.
type View struct {
	StatusLabel    string   `json:"status_label"`
	StatusIcon     string   `json:"status_icon"`
	PaymentLabel   string   `json:"payment_label"`
	AllowedActions []Action `json:"allowed_actions"`
	Counterpart    string   `json:"counterpart_name,omitempty"`
}

// ForBooking builds the view as seen by the given role. Actions the role may
// not perform are left out.
func ForBooking(b *models.Booking, viewer models.Role) View {
	actions := make([]Action, 0, 2)
	for _, a := range statusViews[b.Status].actions {
		if models.RoleMayTransition(viewer, a.Target()) {
			actions = append(actions, a)
		}
	}
	return View{
		StatusLabel:    Label(b.Status),
		StatusIcon:     Icon(b.Status),
		PaymentLabel:   PaymentLabel(b.PaymentStatus),
		AllowedActions: actions,
		Counterpart:    b.CounterpartName(viewer),
	}
}
