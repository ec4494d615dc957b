package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"marketplace/internal/domain"
	"marketplace/internal/events"
	"marketplace/internal/metrics"
	"marketplace/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type BookingService struct {
	repo     domain.BookingRepository
	services domain.ServiceRepository
	notifier
}

func NewBookingService(
	repo domain.BookingRepository,
	services domain.ServiceRepository,
	profiles domain.ProfileRepository,
	eventBus domain.EventPublisher,
	queue domain.NotificationQueue,
	logger *zerolog.Logger,
) *BookingService {
	return &BookingService{
		repo:     repo,
		services: services,
		notifier: notifier{events: eventBus, queue: queue, profiles: profiles, logger: logger},
	}
}

// CreateBookingRequest is what a customer submits to book a service.
type CreateBookingRequest struct {
	ServiceID       string
	Date            string
	StartTime       string
	EndTime         string
	DurationMinutes int
	PaymentMethod   models.PaymentMethod
	Notes           string
	Urgent          bool
}

func (s *BookingService) CreateBooking(ctx context.Context, session *models.Session, req CreateBookingRequest) (*models.Booking, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	if session.Role != models.RoleCustomer {
		return nil, fmt.Errorf("%w: only customers book services", models.ErrForbidden)
	}
	if _, err := time.Parse(models.DateLayout, req.Date); err != nil {
		return nil, validationf("date %q must be YYYY-MM-DD", req.Date)
	}
	if _, err := time.Parse(models.TimeLayout, req.StartTime); err != nil {
		return nil, validationf("start time %q must be HH:MM", req.StartTime)
	}
	if req.EndTime != "" {
		if _, err := time.Parse(models.TimeLayout, req.EndTime); err != nil {
			return nil, validationf("end time %q must be HH:MM", req.EndTime)
		}
	}
	method := req.PaymentMethod
	if method == "" {
		method = models.PaymentCash
	}
	if _, err := models.ParsePaymentMethod(string(method)); err != nil {
		return nil, err
	}

	svc, err := s.services.GetService(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}
	if !svc.IsActive {
		return nil, validationf("service %s is not available", svc.ID)
	}
	if svc.ProviderID == session.UserID {
		return nil, validationf("cannot book your own service")
	}

	now := time.Now().UTC()
	booking := &models.Booking{
		ID:              uuid.NewString(),
		ServiceID:       svc.ID,
		CustomerID:      session.UserID,
		ProviderID:      svc.ProviderID,
		Date:            req.Date,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		DurationMinutes: req.DurationMinutes,
		TotalAmount:     svc.Price,
		Status:          models.StatusPending,
		PaymentStatus:   models.PaymentPending,
		PaymentMethod:   method,
		Notes:           strings.TrimSpace(req.Notes),
		Urgent:          req.Urgent,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.CreateBooking(ctx, booking); err != nil {
		return nil, err
	}

	s.publish(events.EventBookingCreated, bookingChange(booking, events.OpInsert, "", session))
	s.tell(ctx, "booking_created", session.UserID,
		fmt.Sprintf("New booking for %s on %s at %s", svc.Title, booking.Date, booking.StartTime),
		booking.ProviderID)

	return s.repo.GetBooking(ctx, booking.ID)
}

// GetBooking returns the booking if the session may see it. Bookings of other
// users are reported as not found.
func (s *BookingService) GetBooking(ctx context.Context, session *models.Session, id string) (*models.Booking, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canSee(session, b.CustomerID, b.ProviderID) {
		return nil, fmt.Errorf("%w: booking %s", models.ErrNotFound, id)
	}
	return b, nil
}

func (s *BookingService) ListBookings(ctx context.Context, session *models.Session, filter models.BookingFilter) ([]*models.Booking, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	if filter.Status != "" {
		if _, err := models.ParseBookingStatus(string(filter.Status)); err != nil {
			return nil, err
		}
	}
	for _, d := range []string{filter.From, filter.To} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(models.DateLayout, d); err != nil {
			return nil, validationf("date %q must be YYYY-MM-DD", d)
		}
	}
	filter.CustomerID, filter.ProviderID = ownerFilter(session, filter.CustomerID, filter.ProviderID)
	return s.repo.ListBookings(ctx, filter)
}

// SetStatus is the single entry point for booking status writes. The move is
// checked against the caller's role and the transition table using the
// current stored status; the write itself is last-write-wins.
func (s *BookingService) SetStatus(ctx context.Context, session *models.Session, id string, status models.BookingStatus, notes string) (*models.Booking, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	if _, err := models.ParseBookingStatus(string(status)); err != nil {
		return nil, err
	}
	// Customers reach disputed only by filing a dispute.
	if status == models.StatusDisputed && session.Role == models.RoleCustomer {
		return nil, fmt.Errorf("%w: file a dispute instead", models.ErrForbidden)
	}

	b, err := s.GetBooking(ctx, session, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, session, b, status, notes)
}

func (s *BookingService) transition(ctx context.Context, session *models.Session, b *models.Booking, to models.BookingStatus, notes string) (*models.Booking, error) {
	if !models.RoleMayTransition(session.Role, to) {
		return nil, fmt.Errorf("%w: %s may not set %s", models.ErrForbidden, session.Role, to)
	}
	from := b.Status
	if !models.CanTransition(from, to) {
		metrics.IncTransitionRejected()
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, from, to)
	}

	notes = strings.TrimSpace(notes)
	if err := s.repo.SetBookingStatus(ctx, b.ID, to, notes); err != nil {
		return nil, err
	}
	metrics.IncTransition(string(from), string(to))

	updated, err := s.repo.GetBooking(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("booking_id", b.ID).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("actor_id", session.UserID).
		Msg("Booking status changed")

	s.publish(events.EventBookingStatus, bookingChange(updated, events.OpUpdate, from, session))
	s.tell(ctx, "booking_"+string(to), session.UserID, statusText(updated, notes),
		updated.CustomerID, updated.ProviderID)
	return updated, nil
}

func (s *BookingService) CancelBooking(ctx context.Context, session *models.Session, id, reason string) (*models.Booking, error) {
	return s.SetStatus(ctx, session, id, models.StatusCancelled, reason)
}

func (s *BookingService) ConfirmBooking(ctx context.Context, session *models.Session, id string) (*models.Booking, error) {
	return s.SetStatus(ctx, session, id, models.StatusConfirmed, "")
}

func (s *BookingService) StartBooking(ctx context.Context, session *models.Session, id string) (*models.Booking, error) {
	return s.SetStatus(ctx, session, id, models.StatusInProgress, "")
}

func (s *BookingService) CompleteBooking(ctx context.Context, session *models.Session, id string) (*models.Booking, error) {
	return s.SetStatus(ctx, session, id, models.StatusCompleted, "")
}

// markPaid records a verified wallet payment. Payment is independent of
// the booking status.
func (s *BookingService) markPaid(ctx context.Context, session *models.Session, id string) error {
	if err := s.repo.SetPaymentStatus(ctx, id, models.PaymentPaid); err != nil {
		return err
	}
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return err
	}
	s.publish(events.EventBookingPayment, bookingChange(b, events.OpUpdate, "", session))
	return nil
}

func bookingChange(b *models.Booking, op string, prev models.BookingStatus, session *models.Session) events.ChangePayload {
	return events.ChangePayload{
		Table:      events.TableBookings,
		Op:         op,
		RecordID:   b.ID,
		BookingID:  b.ID,
		CustomerID: b.CustomerID,
		ProviderID: b.ProviderID,
		Status:     string(b.Status),
		PrevStatus: string(prev),
		ActorID:    session.UserID,
		ActorRole:  string(session.Role),
		At:         b.UpdatedAt,
	}
}

func statusText(b *models.Booking, notes string) string {
	title := b.ServiceTitle
	if title == "" {
		title = "your booking"
	}
	text := fmt.Sprintf("Booking %s on %s at %s is now %s", title, b.Date, b.StartTime, strings.ReplaceAll(string(b.Status), "_", " "))
	if b.Status == models.StatusCancelled && notes != "" {
		text += ": " + notes
	}
	return text
}
