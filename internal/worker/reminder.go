package worker

import (
	"context"
	"fmt"
	"time"

	"marketplace/internal/domain"
	"marketplace/internal/models"

	"github.com/rs/zerolog"
)

const (
	reminderKind     = "booking_reminder"
	reminderPageSize = 200
)

// ReminderScheduler sends day-before reminders for confirmed bookings through
// the notification queue once a day at a fixed local time.
type ReminderScheduler struct {
	bookings domain.BookingRepository
	profiles domain.ProfileRepository
	queue    domain.NotificationQueue
	hour     int
	minute   int
	logger   *zerolog.Logger
	now      func() time.Time
	pageSize int
}

// NewReminderScheduler parses at as HH:MM.
func NewReminderScheduler(
	bookings domain.BookingRepository,
	profiles domain.ProfileRepository,
	queue domain.NotificationQueue,
	at string,
	logger *zerolog.Logger,
) (*ReminderScheduler, error) {
	t, err := time.Parse(models.TimeLayout, at)
	if err != nil {
		return nil, fmt.Errorf("%w: reminder time %q must be HH:MM", models.ErrValidation, at)
	}
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &ReminderScheduler{
		bookings: bookings,
		profiles: profiles,
		queue:    queue,
		hour:     t.Hour(),
		minute:   t.Minute(),
		logger:   logger,
		pageSize: reminderPageSize,
		now:      time.Now,
	}, nil
}

// Start blocks until ctx is done.
func (r *ReminderScheduler) Start(ctx context.Context) {
	timer := time.NewTimer(r.untilNext())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			tomorrow := r.now().AddDate(0, 0, 1)
			if n, err := r.SendReminders(ctx, tomorrow); err != nil {
				r.logger.Error().Err(err).Msg("reminder: list bookings error")
			} else {
				r.logger.Info().Int("sent", n).Str("date", tomorrow.Format(models.DateLayout)).Msg("Reminders queued")
			}
			timer.Reset(r.untilNext())
		}
	}
}

func (r *ReminderScheduler) untilNext() time.Duration {
	now := r.now()
	next := time.Date(now.Year(), now.Month(), now.Day(), r.hour, r.minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

// SendReminders queues a reminder to both sides of every confirmed booking on
// day and returns how many were queued. Profiles without a chat are skipped.
func (r *ReminderScheduler) SendReminders(ctx context.Context, day time.Time) (int, error) {
	date := day.Format(models.DateLayout)
	sent := 0
	for offset := 0; ; offset += r.pageSize {
		page, err := r.bookings.ListBookings(ctx, models.BookingFilter{
			Status: models.StatusConfirmed,
			From:   date,
			To:     date,
			Limit:  r.pageSize,
			Offset: offset,
		})
		if err != nil {
			return sent, err
		}
		sent += r.remind(ctx, page)
		if len(page) < r.pageSize {
			return sent, nil
		}
	}
}

func (r *ReminderScheduler) remind(ctx context.Context, list []*models.Booking) int {
	sent := 0
	for _, b := range list {
		for _, id := range []string{b.CustomerID, b.ProviderID} {
			p, err := r.profiles.GetProfile(ctx, id)
			if err != nil {
				r.logger.Warn().Err(err).Str("recipient_id", id).Str("booking_id", b.ID).Msg("reminder: load profile error")
				continue
			}
			if p.TelegramChatID == 0 {
				continue
			}
			task := &models.NotificationTask{
				Kind:        reminderKind,
				RecipientID: id,
				ChatID:      p.TelegramChatID,
				Text:        reminderText(b),
			}
			if err := r.queue.Enqueue(ctx, task); err != nil {
				r.logger.Error().Err(err).Str("recipient_id", id).Str("booking_id", b.ID).Msg("reminder: enqueue error")
				continue
			}
			sent++
		}
	}
	return sent
}

func reminderText(b *models.Booking) string {
	title := b.ServiceTitle
	if title == "" {
		title = "your booking"
	}
	return fmt.Sprintf("Reminder: %s is tomorrow, %s at %s", title, b.Date, b.StartTime)
}
