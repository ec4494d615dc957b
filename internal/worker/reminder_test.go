package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"marketplace/internal/models"

	"github.com/shopspring/decimal"
)

type queueRecorder struct {
	tasks []*models.NotificationTask
}

func (q *queueRecorder) Enqueue(_ context.Context, task *models.NotificationTask) error {
	q.tasks = append(q.tasks, task)
	return nil
}

func TestSendReminders(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, p := range []*models.Profile{
		{ID: "c1", FullName: "Anna", Role: models.RoleCustomer, TelegramChatID: 101},
		{ID: "p1", FullName: "CleanCo", Role: models.RoleProvider},
	} {
		if err := db.UpsertProfile(ctx, p); err != nil {
			t.Fatalf("profile: %v", err)
		}
	}
	if err := db.CreateService(ctx, &models.Service{ID: "s1", ProviderID: "p1", Title: "Deep cleaning", IsActive: true}); err != nil {
		t.Fatalf("service: %v", err)
	}
	seed := func(id, date string, status models.BookingStatus) {
		err := db.CreateBooking(ctx, &models.Booking{
			ID: id, ServiceID: "s1", CustomerID: "c1", ProviderID: "p1",
			Date: date, StartTime: "10:00", TotalAmount: decimal.Zero,
			Status: status, PaymentStatus: models.PaymentPending, PaymentMethod: models.PaymentCash,
		})
		if err != nil {
			t.Fatalf("booking %s: %v", id, err)
		}
	}
	seed("b1", "2026-05-11", models.StatusConfirmed)
	seed("b2", "2026-05-11", models.StatusPending)
	seed("b3", "2026-05-12", models.StatusConfirmed)

	q := &queueRecorder{}
	r, err := NewReminderScheduler(db, db, q, "09:00", nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	sent, err := r.SendReminders(ctx, time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	// Only the customer of b1 has a chat.
	if sent != 1 || len(q.tasks) != 1 {
		t.Fatalf("expected one reminder, got %d (%d tasks)", sent, len(q.tasks))
	}
	task := q.tasks[0]
	if task.Kind != reminderKind || task.ChatID != 101 || task.RecipientID != "c1" {
		t.Fatalf("unexpected task %+v", task)
	}
	if task.Text != "Reminder: Deep cleaning is tomorrow, 2026-05-11 at 10:00" {
		t.Fatalf("unexpected text %q", task.Text)
	}
}

func TestSendRemindersPages(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, p := range []*models.Profile{
		{ID: "c1", FullName: "Anna", Role: models.RoleCustomer, TelegramChatID: 101},
		{ID: "p1", FullName: "CleanCo", Role: models.RoleProvider},
	} {
		if err := db.UpsertProfile(ctx, p); err != nil {
			t.Fatalf("profile: %v", err)
		}
	}
	if err := db.CreateService(ctx, &models.Service{ID: "s1", ProviderID: "p1", Title: "Deep cleaning", IsActive: true}); err != nil {
		t.Fatalf("service: %v", err)
	}
	for i := 0; i < 5; i++ {
		err := db.CreateBooking(ctx, &models.Booking{
			ID: fmt.Sprintf("b%d", i), ServiceID: "s1", CustomerID: "c1", ProviderID: "p1",
			Date: "2026-05-11", StartTime: fmt.Sprintf("1%d:00", i), TotalAmount: decimal.Zero,
			Status: models.StatusConfirmed, PaymentStatus: models.PaymentPending, PaymentMethod: models.PaymentCash,
		})
		if err != nil {
			t.Fatalf("booking %d: %v", i, err)
		}
	}

	q := &queueRecorder{}
	r, err := NewReminderScheduler(db, db, q, "09:00", nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	r.pageSize = 2

	sent, err := r.SendReminders(ctx, time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if sent != 5 {
		t.Fatalf("expected 5 reminders across pages, got %d", sent)
	}
	seen := make(map[string]bool)
	for _, task := range q.tasks {
		seen[task.Text] = true
	}
	if len(seen) != 5 {
		t.Fatalf("expected 5 distinct reminders, got %d", len(seen))
	}
}

func TestReminderSchedule(t *testing.T) {
	if _, err := NewReminderScheduler(nil, nil, nil, "9am", nil); err == nil {
		t.Fatalf("expected error for bad reminder time")
	}

	r, err := NewReminderScheduler(nil, nil, nil, "09:30", nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	r.now = func() time.Time { return time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC) }
	if got := r.untilNext(); got != 90*time.Minute {
		t.Fatalf("before reminder time: got %v", got)
	}
	r.now = func() time.Time { return time.Date(2026, 5, 10, 10, 0, 0, 0, time.UTC) }
	if got := r.untilNext(); got != 23*time.Hour+30*time.Minute {
		t.Fatalf("after reminder time: got %v", got)
	}
}
