package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"marketplace/internal/database"
	"marketplace/internal/events"
	"marketplace/internal/models"
	"marketplace/internal/repository"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type recordingQueue struct {
	mu    sync.Mutex
	tasks []models.NotificationTask
}

func (q *recordingQueue) Enqueue(_ context.Context, task *models.NotificationTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, *task)
	return nil
}

func (q *recordingQueue) recipients(kind string) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	var ids []string
	for _, t := range q.tasks {
		if t.Kind == kind {
			ids = append(ids, t.RecipientID)
		}
	}
	return ids
}

type fixture struct {
	db       *database.DB
	queue    *recordingQueue
	bookings *BookingService
	disputes *DisputeService
	wallets  *WalletService
	profiles *ProfileService

	mu      sync.Mutex
	changes []events.ChangePayload
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "service.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, p := range []*models.Profile{
		{ID: "c1", FullName: "Anna", Role: models.RoleCustomer, TelegramChatID: 101},
		{ID: "c2", FullName: "Boris", Role: models.RoleCustomer, TelegramChatID: 102},
		{ID: "p1", FullName: "CleanCo", Role: models.RoleProvider, TelegramChatID: 201},
		{ID: "p2", FullName: "FixIt", Role: models.RoleProvider},
		{ID: "a1", FullName: "Admin", Role: models.RoleAdmin, TelegramChatID: 301},
	} {
		require.NoError(t, db.UpsertProfile(ctx, p))
	}
	require.NoError(t, db.CreateService(ctx, &models.Service{
		ID: "s1", ProviderID: "p1", Title: "Deep cleaning", Price: decimal.RequireFromString("49.90"), IsActive: true,
	}))
	require.NoError(t, db.CreateService(ctx, &models.Service{
		ID: "s-off", ProviderID: "p1", Title: "Retired", Price: decimal.RequireFromString("10"), IsActive: false,
	}))

	f := &fixture{db: db, queue: &recordingQueue{}}
	bus := events.NewEventBus()
	bus.Subscribe(events.EventAnyChange, func(e *events.Event) error {
		c, err := e.Change()
		if err != nil {
			return err
		}
		f.mu.Lock()
		f.changes = append(f.changes, c)
		f.mu.Unlock()
		return nil
	})

	f.bookings = NewBookingService(db, db, db, bus, f.queue, &logger)
	f.disputes = NewDisputeService(db, f.bookings, repository.NewMemorySessionRepository(), db, bus, f.queue, &logger)
	f.wallets = NewWalletService(db, f.bookings, db, bus, f.queue, &logger)
	return f
}

func (f *fixture) recorded() []events.ChangePayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]events.ChangePayload(nil), f.changes...)
}

var (
	customer  = &models.Session{ID: "sc1", UserID: "c1", Role: models.RoleCustomer}
	customer2 = &models.Session{ID: "sc2", UserID: "c2", Role: models.RoleCustomer}
	provider  = &models.Session{ID: "sp1", UserID: "p1", Role: models.RoleProvider}
	provider2 = &models.Session{ID: "sp2", UserID: "p2", Role: models.RoleProvider}
	admin     = &models.Session{ID: "sa1", UserID: "a1", Role: models.RoleAdmin}
)

// book creates a pending booking of s1 by c1 and moves it to status through
// the normal transitions.
func (f *fixture) book(t *testing.T, status models.BookingStatus, method models.PaymentMethod) *models.Booking {
	t.Helper()
	ctx := context.Background()
	b, err := f.bookings.CreateBooking(ctx, customer, CreateBookingRequest{
		ServiceID: "s1", Date: "2026-05-10", StartTime: "10:00", PaymentMethod: method,
	})
	require.NoError(t, err)

	path := map[models.BookingStatus][]models.BookingStatus{
		models.StatusPending:    nil,
		models.StatusConfirmed:  {models.StatusConfirmed},
		models.StatusInProgress: {models.StatusConfirmed, models.StatusInProgress},
		models.StatusCompleted:  {models.StatusConfirmed, models.StatusCompleted},
		models.StatusCancelled:  {models.StatusCancelled},
	}[status]
	for _, next := range path {
		b, err = f.bookings.SetStatus(ctx, provider, b.ID, next, "")
		require.NoError(t, err)
	}
	return b
}
