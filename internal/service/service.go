// Package service holds the role-aware operations behind the HTTP API.
// Every operation takes the caller's session explicitly.
package service

import (
	"context"
	"fmt"
	"time"

	"marketplace/internal/domain"
	"marketplace/internal/events"
	"marketplace/internal/models"

	"github.com/rs/zerolog"
)

func requireSession(s *models.Session) error {
	if s == nil || s.UserID == "" {
		return models.ErrUnauthenticated
	}
	return nil
}

// canSee reports whether the session may read a record owned by the given parties.
func canSee(s *models.Session, customerID, providerID string) bool {
	switch s.Role {
	case models.RoleAdmin:
		return true
	case models.RoleCustomer:
		return customerID == s.UserID
	case models.RoleProvider:
		return providerID == s.UserID
	default:
		return false
	}
}

// ownerFilter restricts list queries to the caller's side; admins keep what they asked for.
func ownerFilter(s *models.Session, customerID, providerID string) (string, string) {
	switch s.Role {
	case models.RoleCustomer:
		return s.UserID, ""
	case models.RoleProvider:
		return "", s.UserID
	default:
		return customerID, providerID
	}
}

// notifier turns changes into best-effort bus events and queued notifications.
// Failures are logged and never fail the write that caused them.
type notifier struct {
	events   domain.EventPublisher
	queue    domain.NotificationQueue
	profiles domain.ProfileRepository
	logger   *zerolog.Logger
}

func (n *notifier) publish(eventType string, change events.ChangePayload) {
	if n.events == nil {
		return
	}
	if change.At.IsZero() {
		change.At = time.Now().UTC()
	}
	if err := n.events.PublishChange(eventType, change); err != nil {
		n.logger.Error().Err(err).
			Str("event_type", eventType).
			Str("table", change.Table).
			Str("record_id", change.RecordID).
			Msg("publish event error")
	}
}

// tell enqueues text for every recipient except the actor.
func (n *notifier) tell(ctx context.Context, kind, actorID, text string, recipients ...string) {
	if n.queue == nil {
		return
	}
	seen := make(map[string]bool, len(recipients))
	for _, id := range recipients {
		if id == "" || id == actorID || seen[id] {
			continue
		}
		seen[id] = true

		var chatID int64
		if n.profiles != nil {
			p, err := n.profiles.GetProfile(ctx, id)
			if err != nil {
				n.logger.Warn().Err(err).Str("recipient_id", id).Str("kind", kind).Msg("Notification recipient lookup failed")
				continue
			}
			chatID = p.TelegramChatID
		}
		if chatID == 0 {
			n.logger.Debug().Str("recipient_id", id).Str("kind", kind).Msg("Recipient has no telegram chat, skipping")
			continue
		}

		task := &models.NotificationTask{Kind: kind, RecipientID: id, ChatID: chatID, Text: text}
		if err := n.queue.Enqueue(ctx, task); err != nil {
			n.logger.Error().Err(err).Str("recipient_id", id).Str("kind", kind).Msg("notification enqueue error")
		}
	}
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", models.ErrValidation, fmt.Sprintf(format, args...))
}
