package database

import (
	"context"
	"fmt"

	"marketplace/internal/models"
)

// UpsertProfile creates the profile or refreshes its mutable fields.
func (db *DB) UpsertProfile(ctx context.Context, p *models.Profile) error {
	query := `INSERT INTO profiles (id, full_name, role, phone, telegram_chat_id, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                  full_name = excluded.full_name,
                  role = excluded.role,
                  phone = excluded.phone,
                  telegram_chat_id = excluded.telegram_chat_id,
                  updated_at = excluded.updated_at`
	ts := now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = ts
	}
	p.UpdatedAt = ts
	_, err := db.ExecContext(ctx, query, p.ID, p.FullName, p.Role, p.Phone, p.TelegramChatID, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func (db *DB) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	query := `SELECT id, full_name, role, phone, telegram_chat_id, created_at, updated_at FROM profiles WHERE id = ?`
	var p models.Profile
	err := db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.FullName, &p.Role, &p.Phone, &p.TelegramChatID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "profile", id)
	}
	return &p, nil
}

// ListProfilesByRole is used to fan out admin notifications.
func (db *DB) ListProfilesByRole(ctx context.Context, role models.Role) ([]*models.Profile, error) {
	query := `SELECT id, full_name, role, phone, telegram_chat_id, created_at, updated_at
              FROM profiles WHERE role = ? ORDER BY created_at ASC`
	rows, err := db.QueryContext(ctx, query, role)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*models.Profile
	for rows.Next() {
		var p models.Profile
		if err := rows.Scan(&p.ID, &p.FullName, &p.Role, &p.Phone, &p.TelegramChatID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, &p)
	}
	return profiles, rows.Err()
}
