package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"marketplace/internal/domain"
	"marketplace/internal/events"
	"marketplace/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WalletService runs the three-party confirmation of e-wallet payments.
type WalletService struct {
	repo     domain.WalletRepository
	bookings *BookingService
	notifier
}

func NewWalletService(
	repo domain.WalletRepository,
	bookings *BookingService,
	profiles domain.ProfileRepository,
	eventBus domain.EventPublisher,
	queue domain.NotificationQueue,
	logger *zerolog.Logger,
) *WalletService {
	return &WalletService{
		repo:     repo,
		bookings: bookings,
		notifier: notifier{events: eventBus, queue: queue, profiles: profiles, logger: logger},
	}
}

type SubmitWalletRequest struct {
	BookingID       string
	ReferenceNumber string
	CustomerPhone   string
	ProviderPhone   string
	ProofType       models.ProofType
	ProofURL        string
}

func (s *WalletService) Submit(ctx context.Context, session *models.Session, req SubmitWalletRequest) (*models.WalletVerification, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	if session.Role != models.RoleCustomer {
		return nil, fmt.Errorf("%w: only the booking's customer submits payment proof", models.ErrForbidden)
	}
	if strings.TrimSpace(req.ReferenceNumber) == "" {
		return nil, validationf("reference number is required")
	}
	switch req.ProofType {
	case models.ProofReceipt, models.ProofScreenshot, models.ProofReference:
	default:
		return nil, validationf("proof type %q is not supported", req.ProofType)
	}

	b, err := s.bookings.GetBooking(ctx, session, req.BookingID)
	if err != nil {
		return nil, err
	}
	if !b.PaymentMethod.RequiresWalletVerification() {
		return nil, validationf("booking is paid by %s, no wallet verification needed", b.PaymentMethod)
	}
	if b.PaymentStatus == models.PaymentPaid {
		return nil, fmt.Errorf("%w: booking is already paid", models.ErrInvalidTransition)
	}

	now := time.Now().UTC()
	w := &models.WalletVerification{
		ID:              uuid.NewString(),
		BookingID:       b.ID,
		CustomerID:      b.CustomerID,
		ProviderID:      b.ProviderID,
		Amount:          b.TotalAmount,
		Method:          b.PaymentMethod,
		ReferenceNumber: strings.TrimSpace(req.ReferenceNumber),
		CustomerPhone:   req.CustomerPhone,
		ProviderPhone:   req.ProviderPhone,
		ProofType:       req.ProofType,
		ProofURL:        req.ProofURL,
		Status:          models.WalletSubmitted,
		SubmittedAt:     &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	w.Confirm(models.RoleCustomer, now)

	if err := s.repo.CreateWalletVerification(ctx, w); err != nil {
		return nil, err
	}
	s.publish(events.EventWalletSubmitted, walletChange(w, events.OpInsert, "", session))
	s.tell(ctx, "wallet_submitted", session.UserID,
		fmt.Sprintf("Payment proof %s submitted for the booking on %s", w.ReferenceNumber, b.Date),
		w.ProviderID)
	return w, nil
}

func (s *WalletService) Get(ctx context.Context, session *models.Session, id string) (*models.WalletVerification, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	w, err := s.repo.GetWalletVerification(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canSee(session, w.CustomerID, w.ProviderID) {
		return nil, fmt.Errorf("%w: wallet verification %s", models.ErrNotFound, id)
	}
	return w, nil
}

// Confirm records the caller's confirmation. The request becomes verified and
// the booking paid once customer, provider and admin have all confirmed.
func (s *WalletService) Confirm(ctx context.Context, session *models.Session, id string) (*models.WalletVerification, error) {
	w, err := s.Get(ctx, session, id)
	if err != nil {
		return nil, err
	}
	if err := confirmable(w, session.Role); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ok, err := s.repo.ConfirmWallet(ctx, w.ID, session.Role, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost a race with another write; report what the row says now.
		if w, err = s.repo.GetWalletVerification(ctx, id); err != nil {
			return nil, err
		}
		if err := confirmable(w, session.Role); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s already confirmed", models.ErrDuplicateRequest, session.Role)
	}
	verified, err := s.repo.MarkWalletVerified(ctx, w.ID, now)
	if err != nil {
		return nil, err
	}

	prev := w.Status
	if w, err = s.repo.GetWalletVerification(ctx, id); err != nil {
		return nil, err
	}
	s.publish(events.EventWalletUpdated, walletChange(w, events.OpUpdate, prev, session))

	if verified {
		if err := s.bookings.markPaid(ctx, session, w.BookingID); err != nil {
			s.logger.Error().Err(err).Str("wallet_id", w.ID).Str("booking_id", w.BookingID).Msg("Verified payment but booking not marked paid")
		}
		s.tell(ctx, "wallet_verified", "", fmt.Sprintf("Payment %s verified", w.ReferenceNumber), w.CustomerID, w.ProviderID)
	}
	return w, nil
}

func confirmable(w *models.WalletVerification, role models.Role) error {
	if w.Status != models.WalletSubmitted {
		return fmt.Errorf("%w: verification is %s", models.ErrInvalidTransition, w.Status)
	}
	var at *time.Time
	switch role {
	case models.RoleCustomer:
		at = w.CustomerConfirmedAt
	case models.RoleProvider:
		at = w.ProviderConfirmedAt
	case models.RoleAdmin:
		at = w.AdminConfirmedAt
	default:
		return fmt.Errorf("%w: %s may not confirm payments", models.ErrForbidden, role)
	}
	if at != nil {
		return fmt.Errorf("%w: %s already confirmed", models.ErrDuplicateRequest, role)
	}
	return nil
}

func (s *WalletService) Reject(ctx context.Context, session *models.Session, id, reason string) (*models.WalletVerification, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	if session.Role != models.RoleProvider && session.Role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: %s may not reject payments", models.ErrForbidden, session.Role)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationf("rejection reason is required")
	}
	w, err := s.Get(ctx, session, id)
	if err != nil {
		return nil, err
	}
	if w.Status != models.WalletSubmitted && w.Status != models.WalletPending {
		return nil, fmt.Errorf("%w: verification is %s", models.ErrInvalidTransition, w.Status)
	}
	prev := w.Status
	ok, err := s.repo.RejectWallet(ctx, w.ID, reason)
	if err != nil {
		return nil, err
	}
	if w, err = s.repo.GetWalletVerification(ctx, id); err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: verification is %s", models.ErrInvalidTransition, w.Status)
	}
	s.publish(events.EventWalletUpdated, walletChange(w, events.OpUpdate, prev, session))
	s.tell(ctx, "wallet_rejected", session.UserID, "Payment proof rejected: "+reason, w.CustomerID, w.ProviderID)
	return w, nil
}

func (s *WalletService) List(ctx context.Context, session *models.Session, status models.WalletStatus) ([]*models.WalletVerification, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	if status != "" {
		if _, err := models.ParseWalletStatus(string(status)); err != nil {
			return nil, err
		}
	}
	filter := models.WalletFilter{Status: status}
	filter.CustomerID, filter.ProviderID = ownerFilter(session, "", "")
	return s.repo.ListWalletVerifications(ctx, filter)
}

func walletChange(w *models.WalletVerification, op string, prev models.WalletStatus, session *models.Session) events.ChangePayload {
	return events.ChangePayload{
		Table:      events.TableWallet,
		Op:         op,
		RecordID:   w.ID,
		BookingID:  w.BookingID,
		CustomerID: w.CustomerID,
		ProviderID: w.ProviderID,
		Status:     string(w.Status),
		PrevStatus: string(prev),
		ActorID:    session.UserID,
		ActorRole:  string(session.Role),
		At:         w.UpdatedAt,
	}
}
