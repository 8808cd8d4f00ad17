package models

import (
	"time"
)

// Webhook types recorded in the activity log.
const (
	WebhookTypeRecordings  = "recordings"
	WebhookTypeTranscripts = "transcripts"
)

// Webhook log outcome.
const (
	WebhookStatusSuccess = "success"
	WebhookStatusWarning = "warning"
	WebhookStatusError   = "error"
)

// WebhookLogEntry is one immutable record of a webhook processing attempt.
type WebhookLogEntry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	WebhookType string    `json:"webhook_type"`
	SiteURL     string    `json:"site_url"`
	MeetingID   string    `json:"meeting_id"`
	RecordingID string    `json:"recording_id,omitempty"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Error       string    `json:"error,omitempty"`
	Trace       []string  `json:"trace,omitempty"`
}
