package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Profile struct {
	ID             string    `json:"id"`
	FullName       string    `json:"full_name"`
	Role           Role      `json:"role"`
	Phone          string    `json:"phone,omitempty"`
	TelegramChatID int64     `json:"telegram_chat_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Service is a provider's listing that customers book.
type Service struct {
	ID         string          `json:"id"`
	ProviderID string          `json:"provider_id"`
	Title      string          `json:"title"`
	ImageURL   string          `json:"image_url,omitempty"`
	Price      decimal.Decimal `json:"price"`
	IsActive   bool            `json:"is_active"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
