package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"marketplace/internal/models"
)

const walletColumns = `id, booking_id, customer_id, provider_id, amount, method, reference_number,
	customer_phone, provider_phone, proof_type, proof_url, status,
	customer_confirmed_at, provider_confirmed_at, admin_confirmed_at, submitted_at, verified_at,
	rejection_reason, created_at, updated_at`

func scanWallet(row rowScanner) (*models.WalletVerification, error) {
	var w models.WalletVerification
	err := row.Scan(
		&w.ID, &w.BookingID, &w.CustomerID, &w.ProviderID, &w.Amount, &w.Method, &w.ReferenceNumber,
		&w.CustomerPhone, &w.ProviderPhone, &w.ProofType, &w.ProofURL, &w.Status,
		&w.CustomerConfirmedAt, &w.ProviderConfirmedAt, &w.AdminConfirmedAt, &w.SubmittedAt, &w.VerifiedAt,
		&w.RejectionReason, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (db *DB) CreateWalletVerification(ctx context.Context, w *models.WalletVerification) error {
	query := `INSERT INTO wallet_verification_requests (` + walletColumns + `)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		w.ID, w.BookingID, w.CustomerID, w.ProviderID, w.Amount, w.Method, w.ReferenceNumber,
		w.CustomerPhone, w.ProviderPhone, w.ProofType, w.ProofURL, w.Status,
		w.CustomerConfirmedAt, w.ProviderConfirmedAt, w.AdminConfirmedAt, w.SubmittedAt, w.VerifiedAt,
		w.RejectionReason, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create wallet verification: %w", err)
	}
	return nil
}

func (db *DB) GetWalletVerification(ctx context.Context, id string) (*models.WalletVerification, error) {
	query := `SELECT ` + walletColumns + ` FROM wallet_verification_requests WHERE id = ?`
	w, err := scanWallet(db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "wallet verification", id)
	}
	return w, nil
}

func (db *DB) ListWalletVerifications(ctx context.Context, f models.WalletFilter) ([]*models.WalletVerification, error) {
	var (
		where []string
		args  []any
	)
	if f.CustomerID != "" {
		where = append(where, "customer_id = ?")
		args = append(args, f.CustomerID)
	}
	if f.ProviderID != "" {
		where = append(where, "provider_id = ?")
		args = append(args, f.ProviderID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}

	query := `SELECT ` + walletColumns + ` FROM wallet_verification_requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, models.DefaultListLimit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet verifications: %w", err)
	}
	defer rows.Close()

	var list []*models.WalletVerification
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wallet verification: %w", err)
		}
		list = append(list, w)
	}
	return list, rows.Err()
}

var confirmColumns = map[models.Role]string{
	models.RoleCustomer: "customer_confirmed_at",
	models.RoleProvider: "provider_confirmed_at",
	models.RoleAdmin:    "admin_confirmed_at",
}

// ConfirmWallet sets only the role's confirmation column, and only while the
// request is submitted and that role has not confirmed yet. It reports whether
// the row changed.
func (db *DB) ConfirmWallet(ctx context.Context, id string, role models.Role, at time.Time) (bool, error) {
	col, ok := confirmColumns[role]
	if !ok {
		return false, fmt.Errorf("%w: role %q cannot confirm payments", models.ErrValidation, role)
	}
	query := `UPDATE wallet_verification_requests SET ` + col + ` = ?, updated_at = ?
			WHERE id = ? AND status = ? AND ` + col + ` IS NULL`
	res, err := db.ExecContext(ctx, query, at, now(), id, models.WalletSubmitted)
	if err != nil {
		return false, fmt.Errorf("failed to confirm wallet verification: %w", err)
	}
	return affected(res)
}

// MarkWalletVerified flips a submitted request to verified once all three
// confirmations are stored. Only one caller ever sees true.
func (db *DB) MarkWalletVerified(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `UPDATE wallet_verification_requests SET status = ?, verified_at = ?, updated_at = ?
			WHERE id = ? AND status = ?
			  AND customer_confirmed_at IS NOT NULL
			  AND provider_confirmed_at IS NOT NULL
			  AND admin_confirmed_at IS NOT NULL`
	res, err := db.ExecContext(ctx, query, models.WalletVerified, at, now(), id, models.WalletSubmitted)
	if err != nil {
		return false, fmt.Errorf("failed to verify wallet verification: %w", err)
	}
	return affected(res)
}

// RejectWallet rejects a request that is still pending or submitted.
func (db *DB) RejectWallet(ctx context.Context, id, reason string) (bool, error) {
	query := `UPDATE wallet_verification_requests SET status = ?, rejection_reason = ?, updated_at = ?
			WHERE id = ? AND status IN (?, ?)`
	res, err := db.ExecContext(ctx, query,
		models.WalletRejected, reason, now(), id, models.WalletPending, models.WalletSubmitted)
	if err != nil {
		return false, fmt.Errorf("failed to reject wallet verification: %w", err)
	}
	return affected(res)
}
