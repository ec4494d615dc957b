package database

import (
	"context"
	"testing"
	"time"

	"marketplace/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDispute(id, customer, provider string) *models.Dispute {
	ts := time.Now().UTC()
	return &models.Dispute{
		ID:          id,
		BookingID:   "b-" + id,
		CustomerID:  customer,
		ProviderID:  provider,
		Reason:      "service not rendered",
		Description: "nobody came",
		Status:      models.DisputeOpen,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
}

func TestDisputeCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	d := newDispute("d1", "c1", "p1")
	d.EvidenceURLs = []string{"https://files/1.jpg", "https://files/2.jpg"}
	require.NoError(t, db.CreateDispute(ctx, d))
	require.NoError(t, db.CreateDispute(ctx, newDispute("d2", "c2", "p1")))

	got, err := db.GetDispute(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.DisputeOpen, got.Status)
	assert.Equal(t, "b-d1", got.BookingID)
	assert.Equal(t, []string{"https://files/1.jpg", "https://files/2.jpg"}, got.EvidenceURLs)

	noEvidence, err := db.GetDispute(ctx, "d2")
	require.NoError(t, err)
	assert.NotNil(t, noEvidence.EvidenceURLs)
	assert.Empty(t, noEvidence.EvidenceURLs)

	byCustomer, err := db.ListDisputes(ctx, "c1", "")
	require.NoError(t, err)
	assert.Len(t, byCustomer, 1)

	byProvider, err := db.ListDisputes(ctx, "", "p1")
	require.NoError(t, err)
	assert.Len(t, byProvider, 2)

	all, err := db.ListDisputes(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, db.UpdateDisputeStatus(ctx, "d1", models.DisputeResolved, "refund issued"))
	require.NoError(t, db.UpdateDisputeStatus(ctx, "d2", models.DisputeUnderReview, ""))

	got, err = db.GetDispute(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.DisputeResolved, got.Status)
	assert.Equal(t, "refund issued", got.Resolution)

	_, err = db.GetDispute(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, db.UpdateDisputeStatus(ctx, "missing", models.DisputeDeclined, ""), models.ErrNotFound)
}
