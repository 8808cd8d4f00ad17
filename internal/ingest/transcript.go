package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/Netsync-Automation/PracticeTools-sub004/internal/apperrors"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/models"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/platform"
	"github.com/Netsync-Automation/PracticeTools-sub004/pkg/storage"
)

// TranscriptResult reports a transcript attempt. Done means no further retries will be
// scheduled: the transcript is stored or the attempt cap was reached.
type TranscriptResult struct {
	Done       bool          `json:"done"`
	Available  bool          `json:"available"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	Attempts   int           `json:"attempts"`
}

// FetchTranscript tries once to fetch and store the transcript of rec. A missing link
// or a platform failure counts as one attempt; the record is rescheduled after the
// retry interval until the cap, then marked unavailable. rec is updated in place.
// An error is returned only when no attempt could be made (no token) or bookkeeping failed.
func (w *Worker) FetchTranscript(ctx context.Context, rec *models.Recording) (TranscriptResult, error) {
	if rec.HasTranscript() {
		return TranscriptResult{Done: true, Available: true, Attempts: rec.TranscriptRetryCount}, nil
	}
	if rec.TranscriptStatus == models.TranscriptStatusUnavailable {
		return TranscriptResult{Done: true, Attempts: rec.TranscriptRetryCount}, nil
	}
	token, err := w.deps.Tokens.GetValidToken(ctx, rec.SiteURL)
	if err != nil {
		return TranscriptResult{Attempts: rec.TranscriptRetryCount}, fmt.Errorf("transcript %s: %w", rec.ID, err)
	}
	return w.fetchTranscript(ctx, rec, token, nil)
}

// fetchTranscript uses details when the caller already holds fresh metadata.
func (w *Worker) fetchTranscript(ctx context.Context, rec *models.Recording, token string, details *platform.RecordingDetails) (TranscriptResult, error) {
	log := w.logger.With(zap.String("recording_id", rec.ID))

	if details == nil {
		d, err := w.deps.Platform.GetRecording(ctx, token, rec.ID, rec.HostEmail)
		if err != nil {
			if apperrors.IsAuth(err) {
				w.deps.Tokens.Invalidate(rec.SiteURL)
			}
			log.Warn("transcript metadata fetch failed", zap.Error(err))
			return w.recordMiss(ctx, rec, err)
		}
		details = d
	}

	link := details.TranscriptLink()
	if link == "" {
		return w.recordMiss(ctx, rec, nil)
	}

	text, url, key, err := w.storeTranscript(ctx, rec.ID, link)
	if err != nil {
		log.Warn("transcript store failed", zap.Error(err))
		return w.recordMiss(ctx, rec, &apperrors.ArtifactError{RecordingID: rec.ID, Artifact: "transcript", Reason: "download or store failed", Err: err})
	}
	if err := w.saveTranscript(ctx, rec.ID, text, url, key); err != nil {
		return TranscriptResult{Attempts: rec.TranscriptRetryCount}, fmt.Errorf("save transcript %s: %w", rec.ID, err)
	}
	rec.TranscriptText, rec.TranscriptURL, rec.TranscriptKey = text, url, key
	rec.TranscriptStatus = models.TranscriptStatusAvailable
	rec.NextTranscriptRetryAt = nil

	log.Info("transcript stored", zap.String("key", key), zap.Int("bytes", len(text)))
	w.publish(models.EventTranscriptUpdated, map[string]interface{}{
		"id":         rec.ID,
		"meeting_id": rec.MeetingID,
		"site_url":   rec.SiteURL,
	})
	return TranscriptResult{Done: true, Available: true, Attempts: rec.TranscriptRetryCount}, nil
}

// recordMiss counts one failed attempt and either reschedules or gives up.
func (w *Worker) recordMiss(ctx context.Context, rec *models.Recording, cause error) (TranscriptResult, error) {
	count := rec.TranscriptRetryCount + 1
	log := w.logger.With(zap.String("recording_id", rec.ID), zap.Int("attempt", count), zap.Int("max_attempts", w.maxAttempts))

	if count >= w.maxAttempts {
		if err := w.saveRetry(ctx, rec.ID, count, models.TranscriptStatusUnavailable, nil); err != nil {
			return TranscriptResult{Attempts: rec.TranscriptRetryCount}, fmt.Errorf("save transcript retry %s: %w", rec.ID, err)
		}
		rec.TranscriptRetryCount = count
		rec.TranscriptStatus = models.TranscriptStatusUnavailable
		rec.NextTranscriptRetryAt = nil
		log.Warn("transcript retries exhausted", zap.NamedError("last_error", cause))
		w.publish(models.EventTranscriptUnavailable, map[string]interface{}{
			"id":       rec.ID,
			"attempts": count,
		})
		return TranscriptResult{Done: true, Attempts: count}, nil
	}

	next := w.now().UTC().Add(w.retryInterval)
	if err := w.saveRetry(ctx, rec.ID, count, models.TranscriptStatusPending, &next); err != nil {
		return TranscriptResult{Attempts: rec.TranscriptRetryCount}, fmt.Errorf("save transcript retry %s: %w", rec.ID, err)
	}
	rec.TranscriptRetryCount = count
	rec.NextTranscriptRetryAt = &next
	log.Debug("transcript not ready, rescheduled", zap.Time("next_attempt", next), zap.NamedError("cause", cause))
	return TranscriptResult{RetryAfter: w.retryInterval, Attempts: count}, nil
}

// saveRetry and saveTranscript write on a context detached from ctx, so an attempt cut
// short by its deadline is still counted.
func (w *Worker) saveRetry(ctx context.Context, id string, count int, status string, next *time.Time) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()
	return w.deps.Recordings.SaveTranscriptRetry(ctx, id, count, status, next)
}

func (w *Worker) saveTranscript(ctx context.Context, id, text, url, key string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()
	return w.deps.Recordings.SaveTranscript(ctx, id, text, url, key)
}

func (w *Worker) storeTranscript(ctx context.Context, recordingID, link string) (text, url, key string, err error) {
	dl, err := w.deps.Platform.Download(ctx, "", link)
	if err != nil {
		return "", "", "", err
	}
	defer dl.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(dl.Body, maxTranscriptBytes+1))
	if err != nil {
		return "", "", "", fmt.Errorf("read transcript: %w", err)
	}
	if len(raw) > maxTranscriptBytes {
		return "", "", "", fmt.Errorf("transcript exceeds %d bytes", maxTranscriptBytes)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", "", "", fmt.Errorf("transcript is empty")
	}
	key = storage.TranscriptKey(recordingID)
	url, err = w.deps.Blobs.Put(ctx, key, bytes.NewReader(raw), int64(len(raw)), firstNonEmpty(dl.ContentType, "text/vtt"))
	if err != nil {
		return "", "", "", err
	}
	return string(raw), url, key, nil
}
