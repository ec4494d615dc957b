package database

import (
	"context"
	"fmt"
	"strings"

	"marketplace/internal/models"
)

const bookingColumns = `b.id, b.service_id, b.customer_id, b.provider_id, b.date, b.start_time,
	b.end_time, b.duration_minutes, b.total_amount, b.status, b.payment_status, b.payment_method,
	b.notes, b.cancellation_reason, b.urgent, b.created_at, b.updated_at,
	COALESCE(s.title, ''), COALESCE(s.image_url, ''), COALESCE(c.full_name, ''), COALESCE(p.full_name, '')`

const bookingJoins = `FROM bookings b
	LEFT JOIN services s ON s.id = b.service_id
	LEFT JOIN profiles c ON c.id = b.customer_id
	LEFT JOIN profiles p ON p.id = b.provider_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	err := row.Scan(
		&b.ID, &b.ServiceID, &b.CustomerID, &b.ProviderID, &b.Date, &b.StartTime,
		&b.EndTime, &b.DurationMinutes, &b.TotalAmount, &b.Status, &b.PaymentStatus, &b.PaymentMethod,
		&b.Notes, &b.CancellationReason, &b.Urgent, &b.CreatedAt, &b.UpdatedAt,
		&b.ServiceTitle, &b.ServiceImage, &b.CustomerName, &b.ProviderName,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBooking inserts the booking. ID and timestamps must be set by the caller.
func (db *DB) CreateBooking(ctx context.Context, b *models.Booking) error {
	query := `INSERT INTO bookings (
				id, service_id, customer_id, provider_id, date, start_time, end_time,
				duration_minutes, total_amount, status, payment_status, payment_method,
				notes, cancellation_reason, urgent, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		b.ID, b.ServiceID, b.CustomerID, b.ProviderID, b.Date, b.StartTime, b.EndTime,
		b.DurationMinutes, b.TotalAmount, b.Status, b.PaymentStatus, b.PaymentMethod,
		b.Notes, b.CancellationReason, b.Urgent, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// GetBooking returns the booking with display joins or ErrNotFound.
func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` ` + bookingJoins + ` WHERE b.id = ?`
	b, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "booking", id)
	}
	return b, nil
}

// ListBookings applies the filter and orders by date, then start time, newest first.
func (db *DB) ListBookings(ctx context.Context, f models.BookingFilter) ([]*models.Booking, error) {
	var (
		where []string
		args  []any
	)
	if f.CustomerID != "" {
		where = append(where, "b.customer_id = ?")
		args = append(args, f.CustomerID)
	}
	if f.ProviderID != "" {
		where = append(where, "b.provider_id = ?")
		args = append(args, f.ProviderID)
	}
	if f.Status != "" {
		where = append(where, "b.status = ?")
		args = append(args, f.Status)
	}
	if f.From != "" {
		where = append(where, "b.date >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		where = append(where, "b.date <= ?")
		args = append(args, f.To)
	}

	query := `SELECT ` + bookingColumns + ` ` + bookingJoins
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY b.date DESC, b.start_time DESC, b.created_at DESC, b.id LIMIT ? OFFSET ?`

	limit := f.Limit
	if limit <= 0 {
		limit = models.DefaultListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

// SetBookingStatus overwrites the status. The write is unconditional: the
// last writer wins. For cancellations notes become the cancellation reason,
// otherwise non-empty notes replace the booking notes. Payment status is
// never touched here.
func (db *DB) SetBookingStatus(ctx context.Context, id string, status models.BookingStatus, notes string) error {
	query := `UPDATE bookings SET
				status = ?,
				cancellation_reason = CASE WHEN ? = 'cancelled' THEN ? ELSE cancellation_reason END,
				notes = CASE WHEN ? <> 'cancelled' AND ? <> '' THEN ? ELSE notes END,
				updated_at = ?
			WHERE id = ?`
	res, err := db.ExecContext(ctx, query,
		status,
		status, notes,
		status, notes, notes,
		now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	return mustAffect(res, "booking", id)
}

// SetPaymentStatus overwrites the payment axis only.
func (db *DB) SetPaymentStatus(ctx context.Context, id string, status models.PaymentStatus) error {
	query := `UPDATE bookings SET payment_status = ?, updated_at = ? WHERE id = ?`
	res, err := db.ExecContext(ctx, query, status, now(), id)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	return mustAffect(res, "booking", id)
}
