package constants

import "time"

// Gin context keys and headers
const (
	ContextKeyUser      = "user"
	ContextKeyRequestID = "request_id"
	HeaderAuthorization = "Authorization"
	HeaderRequestID     = "X-Request-ID"
)

// Response envelope keys
const (
	ResponseError = "error"
	FieldMessage  = "message"
)

// Notification timing
const (
	NotificationReadTimeout    = 10 * time.Second
	NotificationMinPollPeriod  = 30 * time.Second
	NotificationMaxPollPeriod  = 120 * time.Second
	NotificationTrackIdle      = 30 * time.Minute
	NotificationOverdueIDShift = 1000
	SLAWarningWindow           = 15 * time.Minute
)

// TimestampLayout is how timestamps are stored: text columns readable by both drivers.
const TimestampLayout = time.RFC3339

// TxDeadlockRetries bounds attempts for multi-row writes that can lose a lock conflict.
const TxDeadlockRetries = 3
