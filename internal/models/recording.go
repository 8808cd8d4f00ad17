package models

import (
	"time"
)

// Transcript lifecycle.
const (
	TranscriptStatusPending     = "pending"
	TranscriptStatusAvailable   = "available"
	TranscriptStatusUnavailable = "unavailable"
)

// Approval filter values for listing recordings.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalDenied   = "denied"
)

// Recording is one meeting recording ingested from the platform (platform → blob store).
// ID is the platform-assigned recording id and is the idempotency key.
type Recording struct {
	ID                    string     `json:"id"`
	MeetingID             string     `json:"meeting_id"`
	HostEmail             string     `json:"host_email"`
	SiteURL               string     `json:"site_url"`
	Topic                 string     `json:"topic"`
	CreateTime            time.Time  `json:"create_time"`
	MediaURL              string     `json:"media_url,omitempty"`
	MediaKey              string     `json:"media_key,omitempty"`
	ContentType           string     `json:"content_type,omitempty"`
	FileSize              int64      `json:"file_size"`
	TranscriptText        string     `json:"transcript_text,omitempty"`
	TranscriptURL         string     `json:"transcript_url,omitempty"`
	TranscriptKey         string     `json:"transcript_key,omitempty"`
	TranscriptStatus      string     `json:"transcript_status"`
	TranscriptRetryCount  int        `json:"transcript_retry_count"`
	NextTranscriptRetryAt *time.Time `json:"next_transcript_retry_at,omitempty"`
	Approved              bool       `json:"approved"`
	Denied                bool       `json:"denied"`
	ApprovedAt            *time.Time `json:"approved_at,omitempty"`
	DeniedAt              *time.Time `json:"denied_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// HasTranscript reports whether transcript text has been stored.
func (r *Recording) HasTranscript() bool { return r.TranscriptText != "" }

// ApprovalState returns pending, approved or denied.
func (r *Recording) ApprovalState() string {
	switch {
	case r.Approved:
		return ApprovalApproved
	case r.Denied:
		return ApprovalDenied
	default:
		return ApprovalPending
	}
}
