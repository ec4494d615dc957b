package domain

import (
	"context"
	"time"

	"marketplace/internal/events"
	"marketplace/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type BookingRepository interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error)
	SetBookingStatus(ctx context.Context, id string, status models.BookingStatus, notes string) error
	SetPaymentStatus(ctx context.Context, id string, status models.PaymentStatus) error
}

type ServiceRepository interface {
	GetService(ctx context.Context, id string) (*models.Service, error)
}

type ProfileRepository interface {
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	ListProfilesByRole(ctx context.Context, role models.Role) ([]*models.Profile, error)
}

type DisputeRepository interface {
	CreateDispute(ctx context.Context, dispute *models.Dispute) error
	GetDispute(ctx context.Context, id string) (*models.Dispute, error)
	ListDisputes(ctx context.Context, customerID, providerID string) ([]*models.Dispute, error)
	UpdateDisputeStatus(ctx context.Context, id string, status models.DisputeStatus, resolution string) error
}

type WalletRepository interface {
	CreateWalletVerification(ctx context.Context, w *models.WalletVerification) error
	GetWalletVerification(ctx context.Context, id string) (*models.WalletVerification, error)
	ListWalletVerifications(ctx context.Context, filter models.WalletFilter) ([]*models.WalletVerification, error)
	// The writes below are conditional on the stored row and report whether
	// they applied.
	ConfirmWallet(ctx context.Context, id string, role models.Role, at time.Time) (bool, error)
	MarkWalletVerified(ctx context.Context, id string, at time.Time) (bool, error)
	RejectWallet(ctx context.Context, id, reason string) (bool, error)
}

type NotificationRepository interface {
	CreateNotificationTask(ctx context.Context, task *models.NotificationTask) error
	GetNotificationTask(ctx context.Context, id int64) (*models.NotificationTask, error)
	GetPendingNotificationTasks(ctx context.Context, limit int) ([]models.NotificationTask, error)
	UpdateNotificationTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// SessionRepository keeps issued sessions so tokens can be revoked.
// GetSession returns nil, nil for an unknown id.
type SessionRepository interface {
	SaveSession(ctx context.Context, session *models.Session, ttl time.Duration) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// IdempotencyRepository claims a key once per ttl. Claim reports false when
// the key was already taken. Release frees a key whose write did not happen.
type IdempotencyRepository interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type EventPublisher interface {
	PublishChange(eventType string, change events.ChangePayload) error
}

// NotificationQueue accepts outgoing notifications for asynchronous delivery.
type NotificationQueue interface {
	Enqueue(ctx context.Context, task *models.NotificationTask) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}
