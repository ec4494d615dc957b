package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"marketplace/internal/database"
	"marketplace/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type catalogFile struct {
	Profiles []struct {
		ID             string `yaml:"id"`
		FullName       string `yaml:"full_name"`
		Role           string `yaml:"role"`
		Phone          string `yaml:"phone"`
		TelegramChatID int64  `yaml:"telegram_chat_id"`
	} `yaml:"profiles"`
	Services []struct {
		ID         string `yaml:"id"`
		ProviderID string `yaml:"provider_id"`
		Title      string `yaml:"title"`
		ImageURL   string `yaml:"image_url"`
		Price      string `yaml:"price"`
		Active     *bool  `yaml:"active"`
	} `yaml:"services"`
}

// seedCatalog upserts profiles and services from CATALOG_PATH
// (configs/catalog.yaml by default). A missing file is not an error.
func seedCatalog(ctx context.Context, db *database.DB, logger *zerolog.Logger) error {
	path := os.Getenv("CATALOG_PATH")
	if path == "" {
		path = "configs/catalog.yaml"
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info().Str("catalog_path", path).Msg("no catalog file, skipping seed")
		return nil
	}
	if err != nil {
		logger.Error().Err(err).Str("catalog_path", path).Msg("read catalog")
		return err
	}

	var catalog catalogFile
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		logger.Error().Err(err).Str("catalog_path", path).Msg("parse catalog")
		return err
	}

	for _, p := range catalog.Profiles {
		role, err := models.ParseRole(p.Role)
		if err != nil {
			return fmt.Errorf("catalog profile %s: %w", p.ID, err)
		}
		if err := db.UpsertProfile(ctx, &models.Profile{
			ID:             p.ID,
			FullName:       p.FullName,
			Role:           role,
			Phone:          p.Phone,
			TelegramChatID: p.TelegramChatID,
		}); err != nil {
			return err
		}
	}

	for _, s := range catalog.Services {
		price, err := decimal.NewFromString(s.Price)
		if err != nil {
			return fmt.Errorf("catalog service %s: price %q: %w", s.ID, s.Price, err)
		}
		active := s.Active == nil || *s.Active
		if err := db.UpsertService(ctx, &models.Service{
			ID:         s.ID,
			ProviderID: s.ProviderID,
			Title:      s.Title,
			ImageURL:   s.ImageURL,
			Price:      price,
			IsActive:   active,
		}); err != nil {
			return err
		}
	}

	logger.Info().
		Int("profiles", len(catalog.Profiles)).
		Int("services", len(catalog.Services)).
		Msg("catalog seeded")
	return nil
}
