package models

import (
	"encoding/json"
	"time"
)

// Live-update event types.
const (
	EventConnected             = "connected"
	EventPing                  = "ping"
	EventRecordingCreated      = "recording_created"
	EventTranscriptUpdated     = "transcript_updated"
	EventTranscriptUnavailable = "transcript_unavailable"
	EventRecordingApproved     = "recording_approved"
	EventRecordingDenied       = "recording_denied"
)

// Event is the frame pushed to live-update subscribers.
type Event struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent marshals data into an Event stamped with the current time.
func NewEvent(eventType string, data interface{}) Event {
	ev := Event{Type: eventType, Timestamp: time.Now().UTC()}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			ev.Data = raw
		}
	}
	return ev
}
