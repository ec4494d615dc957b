package service

import (
	"context"
	"sync"
	"testing"

	"marketplace/internal/domain"
	"marketplace/internal/events"
	"marketplace/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.bookings.CreateBooking(ctx, customer, CreateBookingRequest{
		ServiceID: "s1", Date: "2026-05-10", StartTime: "10:00", Notes: " ring twice ",
	})
	require.NoError(t, err)
	assert.Equal(t, "p1", b.ProviderID)
	assert.Equal(t, "c1", b.CustomerID)
	assert.Equal(t, models.StatusPending, b.Status)
	assert.Equal(t, models.PaymentPending, b.PaymentStatus)
	assert.Equal(t, models.PaymentCash, b.PaymentMethod)
	assert.Equal(t, "49.9", b.TotalAmount.String())
	assert.Equal(t, "ring twice", b.Notes)
	assert.Equal(t, "Deep cleaning", b.ServiceTitle)

	assert.Equal(t, []string{"p1"}, f.queue.recipients("booking_created"))
	changes := f.recorded()
	require.Len(t, changes, 1)
	assert.Equal(t, events.TableBookings, changes[0].Table)
	assert.Equal(t, events.OpInsert, changes[0].Op)
	assert.Equal(t, b.ID, changes[0].RecordID)
}

func TestCreateBookingRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	valid := CreateBookingRequest{ServiceID: "s1", Date: "2026-05-10", StartTime: "10:00"}

	_, err := f.bookings.CreateBooking(ctx, provider, valid)
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = f.bookings.CreateBooking(ctx, nil, valid)
	assert.ErrorIs(t, err, models.ErrUnauthenticated)

	bad := valid
	bad.Date = "10.05.2026"
	_, err = f.bookings.CreateBooking(ctx, customer, bad)
	assert.ErrorIs(t, err, models.ErrValidation)

	bad = valid
	bad.StartTime = "25:00"
	_, err = f.bookings.CreateBooking(ctx, customer, bad)
	assert.ErrorIs(t, err, models.ErrValidation)

	bad = valid
	bad.ServiceID = "s-off"
	_, err = f.bookings.CreateBooking(ctx, customer, bad)
	assert.ErrorIs(t, err, models.ErrValidation)

	bad = valid
	bad.ServiceID = "missing"
	_, err = f.bookings.CreateBooking(ctx, customer, bad)
	assert.ErrorIs(t, err, models.ErrNotFound)

	bad = valid
	bad.PaymentMethod = "bitcoin"
	_, err = f.bookings.CreateBooking(ctx, customer, bad)
	assert.Error(t, err)
}

func TestGetBookingScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t, models.StatusPending, "")

	for _, s := range []*models.Session{customer, provider, admin} {
		got, err := f.bookings.GetBooking(ctx, s, b.ID)
		require.NoError(t, err, s.UserID)
		assert.Equal(t, b.ID, got.ID)
	}
	for _, s := range []*models.Session{customer2, provider2} {
		_, err := f.bookings.GetBooking(ctx, s, b.ID)
		assert.ErrorIs(t, err, models.ErrNotFound, s.UserID)
	}
}

func TestListBookingsScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.book(t, models.StatusPending, "")
	f.book(t, models.StatusConfirmed, "")

	list, err := f.bookings.ListBookings(ctx, customer, models.BookingFilter{CustomerID: "c2"})
	require.NoError(t, err)
	assert.Len(t, list, 2, "customer filter is forced to the caller")

	list, err = f.bookings.ListBookings(ctx, customer2, models.BookingFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = f.bookings.ListBookings(ctx, provider, models.BookingFilter{Status: models.StatusConfirmed})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.StatusConfirmed, list[0].Status)

	list, err = f.bookings.ListBookings(ctx, admin, models.BookingFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = f.bookings.ListBookings(ctx, admin, models.BookingFilter{Status: "bogus"})
	assert.ErrorIs(t, err, models.ErrInvalidStatus)
	_, err = f.bookings.ListBookings(ctx, admin, models.BookingFilter{From: "yesterday"})
	assert.ErrorIs(t, err, models.ErrValidation)
}

// Pending booking with pending payment is cancelled; payment stays pending.
func TestCancelKeepsPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t, models.StatusPending, "")

	got, err := f.bookings.CancelBooking(ctx, customer, b.ID, "changed plans")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.Equal(t, models.PaymentPending, got.PaymentStatus)
	assert.Equal(t, "changed plans", got.CancellationReason)

	reloaded, err := f.bookings.GetBooking(ctx, admin, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, reloaded.Status)
	assert.Equal(t, "changed plans", reloaded.CancellationReason)

	assert.Equal(t, []string{"p1"}, f.queue.recipients("booking_cancelled"))
	last := f.recorded()[len(f.recorded())-1]
	assert.Equal(t, string(models.StatusPending), last.PrevStatus)
	assert.Equal(t, string(models.StatusCancelled), last.Status)
	assert.Equal(t, "c1", last.ActorID)
}

func TestSetStatusGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t, models.StatusPending, "")

	_, err := f.bookings.CompleteBooking(ctx, provider, b.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition, "pending cannot jump to completed")

	_, err = f.bookings.ConfirmBooking(ctx, customer, b.ID)
	assert.ErrorIs(t, err, models.ErrForbidden, "customers do not confirm")

	_, err = f.bookings.SetStatus(ctx, customer, b.ID, models.StatusDisputed, "")
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = f.bookings.SetStatus(ctx, provider, b.ID, "archived", "")
	assert.ErrorIs(t, err, models.ErrInvalidStatus)

	_, err = f.bookings.ConfirmBooking(ctx, provider2, b.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.bookings.CancelBooking(ctx, customer, "missing", "")
	assert.ErrorIs(t, err, models.ErrNotFound)

	got, err := f.bookings.GetBooking(ctx, admin, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestProviderProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t, models.StatusConfirmed, "")

	got, err := f.bookings.StartBooking(ctx, provider, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, got.Status)

	_, err = f.bookings.CancelBooking(ctx, customer, b.ID, "too late")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	got, err = f.bookings.CompleteBooking(ctx, admin, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.ElementsMatch(t, []string{"c1", "p1"}, f.queue.recipients("booking_completed"))
}

// The second identical write fails the guard instead of rewriting the row.
func TestDoubleSubmitRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t, models.StatusPending, "")

	_, err := f.bookings.CancelBooking(ctx, customer, b.ID, "first")
	require.NoError(t, err)
	_, err = f.bookings.CancelBooking(ctx, customer, b.ID, "second")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	got, err := f.bookings.GetBooking(ctx, customer, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.CancellationReason)
}

// racingBookings lets the first two reads finish before either caller moves
// on, so both writers pass the guard against the same stored status. Writes
// are recorded in the order they land.
type racingBookings struct {
	domain.BookingRepository
	mu      sync.Mutex
	reads   int
	release chan struct{}
	landed  []models.BookingStatus
}

func (r *racingBookings) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	b, err := r.BookingRepository.GetBooking(ctx, id)
	r.mu.Lock()
	if r.reads >= 2 {
		r.mu.Unlock()
		return b, err
	}
	r.reads++
	if r.reads == 2 {
		close(r.release)
	}
	r.mu.Unlock()
	<-r.release
	return b, err
}

func (r *racingBookings) SetBookingStatus(ctx context.Context, id string, status models.BookingStatus, notes string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.BookingRepository.SetBookingStatus(ctx, id, status, notes); err != nil {
		return err
	}
	r.landed = append(r.landed, status)
	return nil
}

// Provider confirms while the customer cancels. Both read pending, both pass
// the guard, neither gets a conflict error and the later write is what stays.
func TestConcurrentWritersNoConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.book(t, models.StatusPending, "")

	logger := zerolog.Nop()
	repo := &racingBookings{BookingRepository: f.db, release: make(chan struct{})}
	bookings := NewBookingService(repo, f.db, f.db, events.NewEventBus(), f.queue, &logger)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = bookings.ConfirmBooking(ctx, provider, b.ID)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = bookings.CancelBooking(ctx, customer, b.ID, "changed plans")
	}()
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Len(t, repo.landed, 2)

	got, err := f.bookings.GetBooking(ctx, admin, b.ID)
	require.NoError(t, err)
	assert.Equal(t, repo.landed[1], got.Status)
}
