package database

import (
	"context"
	"encoding/json"
	"fmt"

	"marketplace/internal/models"
)

const disputeColumns = `id, booking_id, customer_id, provider_id, reason, description, status,
	evidence_urls, resolution, created_at, updated_at`

func scanDispute(row rowScanner) (*models.Dispute, error) {
	var (
		d        models.Dispute
		evidence string
	)
	err := row.Scan(
		&d.ID, &d.BookingID, &d.CustomerID, &d.ProviderID, &d.Reason, &d.Description, &d.Status,
		&evidence, &d.Resolution, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(evidence), &d.EvidenceURLs); err != nil {
		return nil, fmt.Errorf("failed to decode evidence urls of dispute %s: %w", d.ID, err)
	}
	if d.EvidenceURLs == nil {
		d.EvidenceURLs = []string{}
	}
	return &d, nil
}

func (db *DB) CreateDispute(ctx context.Context, d *models.Dispute) error {
	evidence := d.EvidenceURLs
	if evidence == nil {
		evidence = []string{}
	}
	raw, err := json.Marshal(evidence)
	if err != nil {
		return fmt.Errorf("failed to encode evidence urls: %w", err)
	}

	query := `INSERT INTO disputes (` + disputeColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = db.ExecContext(ctx, query,
		d.ID, d.BookingID, d.CustomerID, d.ProviderID, d.Reason, d.Description, d.Status,
		string(raw), d.Resolution, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create dispute: %w", err)
	}
	return nil
}

func (db *DB) GetDispute(ctx context.Context, id string) (*models.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE id = ?`
	d, err := scanDispute(db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "dispute", id)
	}
	return d, nil
}

// ListDisputes filters by customer or provider id; empty ids list everything.
func (db *DB) ListDisputes(ctx context.Context, customerID, providerID string) ([]*models.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes`
	var args []any
	switch {
	case customerID != "":
		query += ` WHERE customer_id = ?`
		args = append(args, customerID)
	case providerID != "":
		query += ` WHERE provider_id = ?`
		args = append(args, providerID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, models.DefaultListLimit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list disputes: %w", err)
	}
	defer rows.Close()

	var disputes []*models.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dispute: %w", err)
		}
		disputes = append(disputes, d)
	}
	return disputes, rows.Err()
}

// UpdateDisputeStatus overwrites status and, when given, the resolution text.
func (db *DB) UpdateDisputeStatus(ctx context.Context, id string, status models.DisputeStatus, resolution string) error {
	query := `UPDATE disputes SET
				status = ?,
				resolution = CASE WHEN ? <> '' THEN ? ELSE resolution END,
				updated_at = ?
			WHERE id = ?`
	res, err := db.ExecContext(ctx, query, status, resolution, resolution, now(), id)
	if err != nil {
		return fmt.Errorf("failed to update dispute status: %w", err)
	}
	return mustAffect(res, "dispute", id)
}
