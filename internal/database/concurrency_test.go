package database

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"marketplace/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Two writers race on the same booking. Neither gets a conflict error and
// the row ends in whichever status landed last. The landing order is recorded
// under the same lock as the write.
func TestConcurrentStatusWritesLastWriteWins(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	writes := []models.BookingStatus{models.StatusConfirmed, models.StatusCancelled}

	for round := 0; round < 20; round++ {
		id := fmt.Sprintf("b%d", round)
		seedBooking(t, db, id, models.StatusPending, "2026-03-01", "09:00")

		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			order []models.BookingStatus
		)
		errs := make([]error, len(writes))
		for i, status := range writes {
			wg.Add(1)
			go func(i int, status models.BookingStatus) {
				defer wg.Done()
				mu.Lock()
				defer mu.Unlock()
				errs[i] = db.SetBookingStatus(ctx, id, status, "")
				if errs[i] == nil {
					order = append(order, status)
				}
			}(i, status)
		}
		wg.Wait()

		for _, err := range errs {
			require.NoError(t, err)
		}
		require.Len(t, order, 2)

		b, err := db.GetBooking(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, order[len(order)-1], b.Status, "round %d", round)
	}
}

func TestSequentialStatusWritesLastWriteWins(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedBooking(t, db, "b1", models.StatusPending, "2026-03-01", "09:00")

	require.NoError(t, db.SetBookingStatus(ctx, "b1", models.StatusConfirmed, ""))
	require.NoError(t, db.SetBookingStatus(ctx, "b1", models.StatusCancelled, "admin override"))

	b, err := db.GetBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, b.Status)
	assert.Equal(t, "admin override", b.CancellationReason)
}
