package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"marketplace/internal/export"
	"marketplace/internal/models"
	"marketplace/internal/presenter"
	"marketplace/internal/realtime"
	"marketplace/internal/router"
	"marketplace/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const (
	maxBodyBytes = 1 << 20
	exportLimit  = 10000
)

// Handlers serves the /api/v1 surface.
type Handlers struct {
	Bookings *service.BookingService
	Disputes *service.DisputeService
	Wallets  *service.WalletService
	Profiles *service.ProfileService
	Auth     Authenticator
	Hub      *realtime.Hub
	Logger   *zerolog.Logger

	validate *validator.Validate
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeServiceError(w, r, h.Logger, err)
}

// decode reads a JSON body into dst and runs struct validation on it.
func (h *Handlers) decode(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid JSON body: %v", models.ErrValidation, err)
	}
	if err := h.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s", models.ErrValidation, describe(err))
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

type bookingResponse struct {
	*models.Booking
	View presenter.View `json:"view"`
}

func present(b *models.Booking, s *models.Session) bookingResponse {
	return bookingResponse{Booking: b, View: presenter.ForBooking(b, s.Role)}
}

// Bookings

type createBookingBody struct {
	ServiceID       string `json:"service_id" validate:"required,max=64"`
	Date            string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime       string `json:"start_time" validate:"required,datetime=15:04"`
	EndTime         string `json:"end_time" validate:"omitempty,datetime=15:04"`
	DurationMinutes int    `json:"duration_minutes" validate:"gte=0,lte=1440"`
	PaymentMethod   string `json:"payment_method" validate:"omitempty,oneof=card cash e_wallet easy_wallet"`
	Notes           string `json:"notes" validate:"max=1000"`
	Urgent          bool   `json:"urgent"`
}

type statusBody struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed in_progress completed cancelled disputed"`
	Notes  string `json:"notes" validate:"max=1000"`
}

type cancelBody struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handlers) ListBookings(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	q := r.URL.Query()
	filter := models.BookingFilter{
		CustomerID: q.Get("customer_id"),
		ProviderID: q.Get("provider_id"),
		Status:     models.BookingStatus(q.Get("status")),
		From:       q.Get("from"),
		To:         q.Get("to"),
	}
	list, err := h.Bookings.ListBookings(r.Context(), s, filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]bookingResponse, 0, len(list))
	for _, b := range list {
		out = append(out, present(b, s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": out})
}

func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	var body createBookingBody
	if err := h.decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.Bookings.CreateBooking(r.Context(), s, service.CreateBookingRequest{
		ServiceID:       body.ServiceID,
		Date:            body.Date,
		StartTime:       body.StartTime,
		EndTime:         body.EndTime,
		DurationMinutes: body.DurationMinutes,
		PaymentMethod:   models.PaymentMethod(body.PaymentMethod),
		Notes:           body.Notes,
		Urgent:          body.Urgent,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, present(b, s))
}

func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	b, err := h.Bookings.GetBooking(r.Context(), s, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, present(b, s))
}

func (h *Handlers) SetBookingStatus(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	var body statusBody
	if err := h.decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.Bookings.SetStatus(r.Context(), s, chi.URLParam(r, "id"), models.BookingStatus(body.Status), body.Notes)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, present(b, s))
}

func (h *Handlers) CancelBooking(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	var body cancelBody
	if err := h.decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.Bookings.CancelBooking(r.Context(), s, chi.URLParam(r, "id"), body.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, present(b, s))
}

func (h *Handlers) CompleteBooking(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	b, err := h.Bookings.CompleteBooking(r.Context(), s, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, present(b, s))
}

// ExportBookings streams all bookings in the date range as XLSX.
func (h *Handlers) ExportBookings(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	list, err := h.Bookings.ListBookings(r.Context(), s, models.BookingFilter{From: from, To: to, Limit: exportLimit})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(from, to)))
	if err := export.WriteBookings(w, list); err != nil {
		h.Logger.Error().Err(err).Msg("export failed")
	}
}

// Disputes

type createDisputeBody struct {
	BookingID      string   `json:"booking_id" validate:"required,max=64"`
	Reason         string   `json:"reason" validate:"required,max=200"`
	Description    string   `json:"description" validate:"max=4000"`
	EvidenceURLs   []string `json:"evidence_urls" validate:"max=10,dive,url"`
	IdempotencyKey string   `json:"idempotency_key" validate:"max=128"`
}

type updateDisputeBody struct {
	Status     string `json:"status" validate:"required"`
	Resolution string `json:"resolution" validate:"max=4000"`
}

func (h *Handlers) ListDisputes(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	list, err := h.Disputes.ListDisputesForUser(r.Context(), s, models.DisputeScope(r.URL.Query().Get("scope")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []*models.Dispute{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"disputes": list})
}

func (h *Handlers) CreateDispute(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	var body createDisputeBody
	if err := h.decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" {
		key = body.IdempotencyKey
	}
	d, err := h.Disputes.CreateDispute(r.Context(), s, service.CreateDisputeRequest{
		BookingID:      body.BookingID,
		Reason:         body.Reason,
		Description:    body.Description,
		EvidenceURLs:   body.EvidenceURLs,
		IdempotencyKey: key,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *Handlers) UpdateDispute(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	var body updateDisputeBody
	if err := h.decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	d, err := h.Disputes.UpdateDisputeStatus(r.Context(), s, chi.URLParam(r, "id"), body.Status, body.Resolution)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Wallet verifications

type submitWalletBody struct {
	BookingID       string `json:"booking_id" validate:"required,max=64"`
	ReferenceNumber string `json:"reference_number" validate:"required,max=100"`
	CustomerPhone   string `json:"customer_phone" validate:"max=32"`
	ProviderPhone   string `json:"provider_phone" validate:"max=32"`
	ProofType       string `json:"proof_type" validate:"required,oneof=receipt screenshot reference"`
	ProofURL        string `json:"proof_url" validate:"omitempty,url"`
}

type rejectWalletBody struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *Handlers) ListWallet(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	list, err := h.Wallets.List(r.Context(), s, models.WalletStatus(r.URL.Query().Get("status")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []*models.WalletVerification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"wallet_verifications": list})
}

func (h *Handlers) SubmitWallet(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	var body submitWalletBody
	if err := h.decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	v, err := h.Wallets.Submit(r.Context(), s, service.SubmitWalletRequest{
		BookingID:       body.BookingID,
		ReferenceNumber: body.ReferenceNumber,
		CustomerPhone:   body.CustomerPhone,
		ProviderPhone:   body.ProviderPhone,
		ProofType:       models.ProofType(body.ProofType),
		ProofURL:        body.ProofURL,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *Handlers) ConfirmWallet(w http.ResponseWriter, r *http.Request) {
	v, err := h.Wallets.Confirm(r.Context(), SessionFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handlers) RejectWallet(w http.ResponseWriter, r *http.Request) {
	var body rejectWalletBody
	if err := h.decode(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	v, err := h.Wallets.Reject(r.Context(), SessionFromContext(r.Context()), chi.URLParam(r, "id"), body.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Session and navigation

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	p, err := h.Profiles.Me(r.Context(), s)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profile": p, "session": s})
}

func (h *Handlers) ListProfiles(w http.ResponseWriter, r *http.Request) {
	list, err := h.Profiles.ListByRole(r.Context(), SessionFromContext(r.Context()), models.Role(r.URL.Query().Get("role")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []*models.Profile{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": list})
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	if err := h.Auth.Revoke(r.Context(), s.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Navigation resolves a client route. Requests without a valid token are
// treated as unauthenticated; state=loading renders the loading view.
func (h *Handlers) Navigation(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	state := models.SessionUnauthenticated
	switch {
	case r.URL.Query().Get("state") == string(models.SessionLoading):
		state = models.SessionLoading
	case s != nil:
		state = models.SessionAuthenticated
	}
	p := r.URL.Query().Get("path")
	if p == "" {
		p = "/"
	}
	writeJSON(w, http.StatusOK, router.Resolve(state, s, p))
}

func (h *Handlers) Realtime(w http.ResponseWriter, r *http.Request) {
	if err := h.Hub.Serve(w, r, SessionFromContext(r.Context())); err != nil {
		h.Logger.Warn().Err(err).Msg("websocket upgrade failed")
	}
}
