package models

import "time"

// NotificationTask is a queued delivery persisted in notification_queue.
type NotificationTask struct {
	ID          int64      `json:"id"`
	Kind        string     `json:"kind"`
	RecipientID string     `json:"recipient_id"`
	ChatID      int64      `json:"chat_id"`
	Text        string     `json:"text"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	LastError   *string    `json:"last_error"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	NextRetryAt *time.Time `json:"next_retry_at"`
}

const (
	TaskStatusPending   = "pending"
	TaskStatusRetry     = "retry"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
)
