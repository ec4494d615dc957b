package database

import (
	"context"
	"fmt"

	"marketplace/internal/models"
)

func (db *DB) CreateService(ctx context.Context, s *models.Service) error {
	query := `INSERT INTO services (id, provider_id, title, image_url, price, is_active, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	ts := now()
	s.CreatedAt = ts
	s.UpdatedAt = ts
	_, err := db.ExecContext(ctx, query, s.ID, s.ProviderID, s.Title, s.ImageURL, s.Price, s.IsActive, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	return nil
}

func (db *DB) GetService(ctx context.Context, id string) (*models.Service, error) {
	query := `SELECT id, provider_id, title, image_url, price, is_active, created_at, updated_at FROM services WHERE id = ?`
	var s models.Service
	err := db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.ProviderID, &s.Title, &s.ImageURL, &s.Price, &s.IsActive, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "service", id)
	}
	return &s, nil
}

// UpsertService creates the listing or refreshes its title, image, price and
// availability. The owning provider never changes.
func (db *DB) UpsertService(ctx context.Context, s *models.Service) error {
	query := `INSERT INTO services (id, provider_id, title, image_url, price, is_active, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                  title = excluded.title,
                  image_url = excluded.image_url,
                  price = excluded.price,
                  is_active = excluded.is_active,
                  updated_at = excluded.updated_at`
	ts := now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = ts
	}
	s.UpdatedAt = ts
	_, err := db.ExecContext(ctx, query, s.ID, s.ProviderID, s.Title, s.ImageURL, s.Price, s.IsActive, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert service: %w", err)
	}
	return nil
}
