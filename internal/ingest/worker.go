// Package ingest turns platform webhooks into stored recordings and transcripts.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/Netsync-Automation/PracticeTools-sub004/internal/apperrors"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/models"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/platform"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/sites"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/webhooklogs"
	"github.com/Netsync-Automation/PracticeTools-sub004/pkg/storage"
)

const (
	defaultRetryInterval = 5 * time.Minute
	defaultMaxAttempts   = 288
	maxTranscriptBytes   = 16 << 20
	logWriteTimeout      = 5 * time.Second
	bookkeepingTimeout   = 10 * time.Second
)

// SiteResolver matches a webhook to a configured site and host.
type SiteResolver interface {
	ResolveSite(ctx context.Context, siteURL, hostUserID, hostEmail string) (*sites.Resolution, error)
}

// TokenProvider hands out platform access tokens per site.
type TokenProvider interface {
	GetValidToken(ctx context.Context, siteURL string) (string, error)
	Invalidate(siteURL string)
}

// PlatformAPI is the subset of the platform client the worker calls.
type PlatformAPI interface {
	GetRecording(ctx context.Context, token, recordingID, hostEmail string) (*platform.RecordingDetails, error)
	Download(ctx context.Context, token, link string) (*platform.Download, error)
}

// ArtifactStore persists artifact bytes under a deterministic key.
type ArtifactStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}

// RecordingStore is the recording persistence the worker needs.
type RecordingStore interface {
	Upsert(ctx context.Context, rec *models.Recording) (bool, error)
	ListByMeeting(ctx context.Context, meetingID string) ([]models.Recording, error)
	SaveTranscript(ctx context.Context, id, text, url, key string) error
	SaveTranscriptRetry(ctx context.Context, id string, retryCount int, status string, next *time.Time) error
}

// ActivityLog appends webhook outcomes.
type ActivityLog interface {
	Append(ctx context.Context, e *models.WebhookLogEntry) error
}

// Publisher fans events out to live subscribers.
type Publisher interface {
	Publish(ev models.Event)
}

// Deps are the collaborators of a Worker.
type Deps struct {
	Sites      SiteResolver
	Tokens     TokenProvider
	Platform   PlatformAPI
	Blobs      ArtifactStore
	Recordings RecordingStore
	Activity   ActivityLog
	Events     Publisher
}

// Options tunes transcript retries.
type Options struct {
	RetryInterval time.Duration
	MaxAttempts   int
}

// Outcome summarizes one webhook processing attempt.
type Outcome struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	RecordingID string `json:"recording_id,omitempty"`
	Created     bool   `json:"created,omitempty"`
	Err         error  `json:"-"`
}

// Worker processes recording and transcript webhooks and runs transcript fetches.
type Worker struct {
	deps          Deps
	validator     *Validator
	retryInterval time.Duration
	maxAttempts   int
	logger        *zap.Logger
	now           func() time.Time
}

// NewWorker creates an ingestion worker.
func NewWorker(deps Deps, opts Options, logger *zap.Logger) (*Worker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = defaultRetryInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	v, err := NewValidator()
	if err != nil {
		return nil, err
	}
	return &Worker{
		deps:          deps,
		validator:     v,
		retryInterval: opts.RetryInterval,
		maxAttempts:   opts.MaxAttempts,
		logger:        logger,
		now:           time.Now,
	}, nil
}

// MaxAttempts is the transcript retry cap.
func (w *Worker) MaxAttempts() int { return w.maxAttempts }

// Decode validates a raw delivery. Rejections are written to the activity log.
func (w *Worker) Decode(ctx context.Context, webhookType string, raw []byte) (*WebhookPayload, error) {
	p, err := w.validator.Decode(webhookType, raw)
	if err != nil {
		w.logger.Warn("webhook rejected", zap.String("type", webhookType), zap.Error(err))
		w.appendLog(ctx, &models.WebhookLogEntry{
			WebhookType: webhookType,
			Status:      models.WebhookStatusError,
			Message:     "malformed payload",
			Error:       err.Error(),
		})
		return nil, err
	}
	return p, nil
}

// LogRejected records a delivery refused before decoding, e.g. a bad signature.
func (w *Worker) LogRejected(ctx context.Context, webhookType, message string) {
	w.appendLog(ctx, &models.WebhookLogEntry{
		WebhookType: webhookType,
		Status:      models.WebhookStatusError,
		Message:     message,
	})
}

// ProcessRecordingWebhook ingests one recording: resolve the site and host, fetch metadata,
// store the media, upsert the record, publish, then make a first transcript attempt.
// Every branch ends in an activity log entry; errors are reported in the Outcome, never
// returned, because the caller always acknowledges the delivery.
func (w *Worker) ProcessRecordingWebhook(ctx context.Context, p *WebhookPayload) (out Outcome) {
	trace := webhooklogs.NewTrace()
	entry := &models.WebhookLogEntry{
		WebhookType: models.WebhookTypeRecordings,
		SiteURL:     models.NormalizeSiteURL(p.Data.SiteURL),
		MeetingID:   p.Data.MeetingID,
		RecordingID: p.Data.ID,
	}
	log := w.logger.With(zap.String("recording_id", p.Data.ID), zap.String("site", entry.SiteURL))
	defer func() { w.finish(ctx, entry, trace, out, log) }()

	res, err := w.deps.Sites.ResolveSite(ctx, p.Data.SiteURL, p.Data.HostUserID, p.Data.HostEmail)
	if err != nil {
		return resolveFailure(err, trace)
	}
	trace.Step("site resolved, %d host candidate(s)", len(res.Candidates))

	token, err := w.deps.Tokens.GetValidToken(ctx, res.Site.SiteURL)
	if err != nil {
		trace.Step("token unavailable")
		return failed("token unavailable", err)
	}

	details, host, err := w.fetchMetadata(ctx, token, p.Data.ID, res, trace)
	if err != nil {
		return failed("metadata fetch failed", err)
	}

	link := details.RecordingLink()
	if link == "" {
		trace.Step("metadata has no recording download link")
		return failed("recording download link missing", &apperrors.ArtifactError{RecordingID: p.Data.ID, Artifact: "recording", Reason: "no download link in metadata"})
	}

	key := storage.RecordingKey(p.Data.ID)
	url, contentType, size, err := w.storeArtifact(ctx, link, key, "video/mp4")
	if err != nil {
		trace.Step("media store failed")
		return failed("recording download failed", &apperrors.ArtifactError{RecordingID: p.Data.ID, Artifact: "recording", Reason: "download or store failed", Err: err})
	}
	trace.Step("media stored at %s (%d bytes)", key, size)

	rec := &models.Recording{
		ID:          p.Data.ID,
		MeetingID:   firstNonEmpty(details.MeetingID, p.Data.MeetingID),
		HostEmail:   firstNonEmpty(host.Email, details.HostEmail, p.Data.HostEmail),
		SiteURL:     models.NormalizeSiteURL(res.Site.SiteURL),
		Topic:       firstNonEmpty(details.Topic, p.Data.Topic),
		CreateTime:  details.CreateTime,
		MediaURL:    url,
		MediaKey:    key,
		ContentType: contentType,
		FileSize:    size,
	}
	if rec.CreateTime.IsZero() {
		rec.CreateTime = p.Data.CreatedAt()
	}
	created, err := w.deps.Recordings.Upsert(ctx, rec)
	if err != nil {
		return failed("recording save failed", err)
	}
	entry.MeetingID = rec.MeetingID
	trace.Step("recording saved (created=%t)", created)

	w.publish(models.EventRecordingCreated, map[string]interface{}{
		"id":         rec.ID,
		"meeting_id": rec.MeetingID,
		"site_url":   rec.SiteURL,
		"topic":      rec.Topic,
		"created":    created,
	})

	msg := "recording ingested"
	if !rec.HasTranscript() && rec.TranscriptStatus != models.TranscriptStatusUnavailable {
		tr, terr := w.fetchTranscript(ctx, rec, token, details)
		switch {
		case terr != nil:
			trace.Step("first transcript attempt failed: %v", terr)
			log.Warn("first transcript attempt failed", zap.Error(terr))
			msg = "recording ingested; transcript pending"
		case tr.Available:
			trace.Step("transcript stored")
			msg = "recording and transcript ingested"
		default:
			trace.Step("transcript not ready (attempt %d)", tr.Attempts)
			msg = "recording ingested; transcript pending"
		}
	}
	return Outcome{Status: models.WebhookStatusSuccess, Message: msg, RecordingID: rec.ID, Created: created}
}

// ProcessTranscriptWebhook runs a transcript fetch for every recording of the meeting
// that still lacks one, regardless of its scheduled retry time.
func (w *Worker) ProcessTranscriptWebhook(ctx context.Context, p *WebhookPayload) (out Outcome) {
	trace := webhooklogs.NewTrace()
	entry := &models.WebhookLogEntry{
		WebhookType: models.WebhookTypeTranscripts,
		SiteURL:     models.NormalizeSiteURL(p.Data.SiteURL),
		MeetingID:   p.Data.MeetingID,
	}
	log := w.logger.With(zap.String("meeting_id", p.Data.MeetingID), zap.String("site", entry.SiteURL))
	defer func() { w.finish(ctx, entry, trace, out, log) }()

	if _, err := w.deps.Sites.ResolveSite(ctx, p.Data.SiteURL, p.Data.HostUserID, p.Data.HostEmail); err != nil {
		return resolveFailure(err, trace)
	}

	recs, err := w.deps.Recordings.ListByMeeting(ctx, p.Data.MeetingID)
	if err != nil {
		return failed("recording lookup failed", err)
	}
	var stored, pending, failures int
	for i := range recs {
		rec := &recs[i]
		if rec.HasTranscript() {
			continue
		}
		entry.RecordingID = rec.ID
		// The delivery is authoritative: an exhausted record gets one more try.
		if rec.TranscriptStatus == models.TranscriptStatusUnavailable {
			rec.TranscriptStatus = models.TranscriptStatusPending
		}
		tr, err := w.FetchTranscript(ctx, rec)
		switch {
		case err != nil:
			failures++
			trace.Step("%s: %v", rec.ID, err)
		case tr.Available:
			stored++
			trace.Step("%s: transcript stored", rec.ID)
		default:
			pending++
			trace.Step("%s: transcript not ready (attempt %d)", rec.ID, tr.Attempts)
		}
	}

	switch {
	case stored+pending+failures == 0:
		return Outcome{Status: models.WebhookStatusWarning, Message: "no recording awaiting a transcript for this meeting"}
	case failures > 0 && stored == 0:
		return failed(fmt.Sprintf("transcript fetch failed for %d recording(s)", failures), errors.New("transcript fetch failed"))
	default:
		return Outcome{
			Status:      models.WebhookStatusSuccess,
			Message:     fmt.Sprintf("transcripts stored: %d, pending: %d, failed: %d", stored, pending, failures),
			RecordingID: entry.RecordingID,
		}
	}
}

// fetchMetadata tries each candidate host in order until the platform returns the
// recording. An auth failure stops the walk and drops the cached token.
func (w *Worker) fetchMetadata(ctx context.Context, token, recordingID string, res *sites.Resolution, trace *webhooklogs.Trace) (*platform.RecordingDetails, models.RecordingHost, error) {
	var lastErr error
	for _, host := range res.Candidates {
		details, err := w.deps.Platform.GetRecording(ctx, token, recordingID, host.Email)
		if err == nil {
			trace.Step("metadata fetched as %s", host.Email)
			return details, host, nil
		}
		lastErr = err
		trace.Step("metadata fetch as %s failed: %v", host.Email, err)
		if apperrors.IsAuth(err) {
			w.deps.Tokens.Invalidate(res.Site.SiteURL)
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no host candidates for site %s", res.Site.SiteURL)
	}
	return nil, models.RecordingHost{}, lastErr
}

// storeArtifact streams a direct download link into the artifact store. Direct links
// are pre-signed, so no bearer token is sent.
func (w *Worker) storeArtifact(ctx context.Context, link, key, fallbackType string) (url, contentType string, size int64, err error) {
	dl, err := w.deps.Platform.Download(ctx, "", link)
	if err != nil {
		return "", "", 0, err
	}
	defer dl.Body.Close()
	contentType = firstNonEmpty(dl.ContentType, fallbackType)
	counter := &countingReader{r: dl.Body}
	url, err = w.deps.Blobs.Put(ctx, key, counter, dl.Size, contentType)
	if err != nil {
		return "", "", 0, err
	}
	return url, contentType, counter.n, nil
}

func (w *Worker) publish(eventType string, data interface{}) {
	if w.deps.Events == nil {
		return
	}
	w.deps.Events.Publish(models.NewEvent(eventType, data))
}

func (w *Worker) finish(ctx context.Context, entry *models.WebhookLogEntry, trace *webhooklogs.Trace, out Outcome, log *zap.Logger) {
	entry.Status = out.Status
	entry.Message = out.Message
	if out.Err != nil {
		entry.Error = out.Err.Error()
	}
	entry.Trace = trace.Steps()

	fields := []zap.Field{zap.String("type", entry.WebhookType), zap.String("status", out.Status), zap.String("message", out.Message)}
	switch out.Status {
	case models.WebhookStatusError:
		log.Error("webhook processed", append(fields, zap.Error(out.Err))...)
	case models.WebhookStatusWarning:
		log.Warn("webhook processed", fields...)
	default:
		log.Info("webhook processed", fields...)
	}
	w.appendLog(ctx, entry)
}

// appendLog writes to the activity log even when ctx has expired.
func (w *Worker) appendLog(ctx context.Context, e *models.WebhookLogEntry) {
	if w.deps.Activity == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logWriteTimeout)
	defer cancel()
	if err := w.deps.Activity.Append(ctx, e); err != nil {
		w.logger.Error("append webhook log failed", zap.Error(err))
	}
}

func resolveFailure(err error, trace *webhooklogs.Trace) Outcome {
	if apperrors.IsNotConfigured(err) {
		trace.Step("ignored: %v", err)
		return Outcome{Status: models.WebhookStatusWarning, Message: "site or host not configured; event ignored", Err: err}
	}
	trace.Step("site resolution failed")
	return failed("site resolution failed", err)
}

func failed(msg string, err error) Outcome {
	return Outcome{Status: models.WebhookStatusError, Message: msg, Err: err}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
