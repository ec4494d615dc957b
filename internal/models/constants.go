package models

const (
	// DateLayout is the storage and wire format of booking dates.
	DateLayout = "2006-01-02"

	// TimeLayout is the storage and wire format of booking start/end times.
	TimeLayout = "15:04"

	// DefaultSessionTTL is the session lifetime, seconds
	DefaultSessionTTL = 24 * 60 * 60

	// IdempotencyKeyTTL is how long a submitted idempotency key blocks repeats, seconds
	IdempotencyKeyTTL = 10 * 60

	// DefaultListLimit caps list queries when the caller gives no limit
	DefaultListLimit = 200

	// NotificationQueueSize is the capacity of the in-memory notification queue
	NotificationQueueSize = 128
)
