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

type DisputeService struct {
	repo     domain.DisputeRepository
	bookings *BookingService
	idem     domain.IdempotencyRepository
	notifier
}

func NewDisputeService(
	repo domain.DisputeRepository,
	bookings *BookingService,
	idem domain.IdempotencyRepository,
	profiles domain.ProfileRepository,
	eventBus domain.EventPublisher,
	queue domain.NotificationQueue,
	logger *zerolog.Logger,
) *DisputeService {
	return &DisputeService{
		repo:     repo,
		bookings: bookings,
		idem:     idem,
		notifier: notifier{events: eventBus, queue: queue, profiles: profiles, logger: logger},
	}
}

type CreateDisputeRequest struct {
	BookingID      string
	Reason         string
	Description    string
	EvidenceURLs   []string
	IdempotencyKey string
}

// CreateDispute files a dispute on a completed booking and then moves the
// booking to disputed. The two writes are separate; a failed booking write
// leaves the dispute in place and is only logged.
func (s *DisputeService) CreateDispute(ctx context.Context, session *models.Session, req CreateDisputeRequest) (*models.Dispute, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	if session.Role != models.RoleCustomer {
		return nil, fmt.Errorf("%w: only the booking's customer may open a dispute", models.ErrForbidden)
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, validationf("reason is required")
	}

	b, err := s.bookings.GetBooking(ctx, session, req.BookingID)
	if err != nil {
		return nil, err
	}
	if b.CustomerID != session.UserID {
		return nil, fmt.Errorf("%w: only the booking's customer may open a dispute", models.ErrForbidden)
	}
	if b.Status != models.StatusCompleted {
		return nil, fmt.Errorf("%w: booking is %s, disputes need a completed booking", models.ErrInvalidTransition, b.Status)
	}

	var claimed string
	if req.IdempotencyKey != "" && s.idem != nil {
		key := "dispute:" + session.UserID + ":" + req.IdempotencyKey
		ok, err := s.idem.Claim(ctx, key, models.IdempotencyKeyTTL*time.Second)
		if err != nil {
			return nil, fmt.Errorf("claim idempotency key: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: dispute already submitted", models.ErrDuplicateRequest)
		}
		claimed = key
	}

	now := time.Now().UTC()
	d := &models.Dispute{
		ID:           uuid.NewString(),
		BookingID:    b.ID,
		CustomerID:   b.CustomerID,
		ProviderID:   b.ProviderID,
		Reason:       reason,
		Description:  strings.TrimSpace(req.Description),
		Status:       models.DisputeOpen,
		EvidenceURLs: req.EvidenceURLs,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateDispute(ctx, d); err != nil {
		// Nothing was stored, so a retry with the same key must be allowed.
		if claimed != "" {
			if rerr := s.idem.Release(ctx, claimed); rerr != nil {
				s.logger.Warn().Err(rerr).Str("key", claimed).Msg("Failed to release idempotency key")
			}
		}
		return nil, err
	}
	metrics.IncDisputeCreated()
	s.publish(events.EventDisputeCreated, disputeChange(d, events.OpInsert, "", session))
	s.tell(ctx, "dispute_created", session.UserID,
		fmt.Sprintf("A dispute was opened for the booking on %s: %s", b.Date, reason),
		append([]string{d.ProviderID}, adminIDs(ctx, s.profiles)...)...)

	if _, err := s.bookings.transition(ctx, session, b, models.StatusDisputed, ""); err != nil {
		s.logger.Error().Err(err).
			Str("dispute_id", d.ID).
			Str("booking_id", b.ID).
			Msg("Dispute created but booking status not updated")
	}

	return s.repo.GetDispute(ctx, d.ID)
}

func (s *DisputeService) GetDispute(ctx context.Context, session *models.Session, id string) (*models.Dispute, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	d, err := s.repo.GetDispute(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canSee(session, d.CustomerID, d.ProviderID) {
		return nil, fmt.Errorf("%w: dispute %s", models.ErrNotFound, id)
	}
	return d, nil
}

// ListDisputesForUser lists the caller's disputes on the given side. An empty
// scope means the caller's own role. Admins see all disputes.
func (s *DisputeService) ListDisputesForUser(ctx context.Context, session *models.Session, scope models.DisputeScope) ([]*models.Dispute, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	if session.IsAdmin() {
		return s.repo.ListDisputes(ctx, "", "")
	}
	if scope == "" {
		scope = models.DisputeScope(session.Role)
	}
	switch scope {
	case models.ScopeCustomer:
		return s.repo.ListDisputes(ctx, session.UserID, "")
	case models.ScopeProvider:
		return s.repo.ListDisputes(ctx, "", session.UserID)
	default:
		return nil, validationf("scope %q must be customer or provider", scope)
	}
}

// UpdateDisputeStatus accepts the status in either the current or the legacy
// vocabulary. Only admins and the dispute's provider may change it.
func (s *DisputeService) UpdateDisputeStatus(ctx context.Context, session *models.Session, id, rawStatus, resolution string) (*models.Dispute, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	status, err := models.ParseDisputeStatus(rawStatus)
	if err != nil {
		return nil, err
	}
	if session.Role != models.RoleAdmin && session.Role != models.RoleProvider {
		return nil, fmt.Errorf("%w: %s may not update disputes", models.ErrForbidden, session.Role)
	}

	d, err := s.GetDispute(ctx, session, id)
	if err != nil {
		return nil, err
	}
	prev := d.Status
	if !models.CanTransitionDispute(prev, status) {
		return nil, fmt.Errorf("%w: dispute %s -> %s", models.ErrInvalidTransition, prev, status)
	}

	if err := s.repo.UpdateDisputeStatus(ctx, id, status, strings.TrimSpace(resolution)); err != nil {
		return nil, err
	}
	updated, err := s.repo.GetDispute(ctx, id)
	if err != nil {
		return nil, err
	}

	s.publish(events.EventDisputeUpdated, disputeChange(updated, events.OpUpdate, prev, session))
	text := fmt.Sprintf("Your dispute is now %s", strings.ReplaceAll(string(status), "_", " "))
	if updated.Resolution != "" && status.IsTerminal() {
		text += ": " + updated.Resolution
	}
	s.tell(ctx, "dispute_"+string(status), session.UserID, text, updated.CustomerID, updated.ProviderID)
	return updated, nil
}

func disputeChange(d *models.Dispute, op string, prev models.DisputeStatus, session *models.Session) events.ChangePayload {
	return events.ChangePayload{
		Table:      events.TableDisputes,
		Op:         op,
		RecordID:   d.ID,
		BookingID:  d.BookingID,
		CustomerID: d.CustomerID,
		ProviderID: d.ProviderID,
		Status:     string(d.Status),
		PrevStatus: string(prev),
		ActorID:    session.UserID,
		ActorRole:  string(session.Role),
		At:         d.UpdatedAt,
	}
}
