package recordings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Netsync-Automation/PracticeTools-sub004/internal/apperrors"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/models"
)

const recordingColumns = `id, meeting_id, host_email, site_url, topic, create_time, media_url, media_key, content_type, file_size,
	COALESCE(transcript_text,''), COALESCE(transcript_url,''), COALESCE(transcript_key,''), transcript_status,
	transcript_retry_count, next_transcript_retry_at, approved, denied, approved_at, denied_at, created_at, updated_at`

// ListFilter narrows List. Approval is one of models.Approval* or empty for all.
type ListFilter struct {
	Approval string
	SiteURL  string
	Limit    int
	Offset   int
}

// Repository handles recording persistence. Every write is keyed by the platform recording id.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a recordings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type scanner interface {
	Scan(dest ...any) error
}

// prefixScanner scans one leading column into first before the recording columns.
type prefixScanner struct {
	row   scanner
	first any
}

func (p prefixScanner) Scan(dest ...any) error {
	return p.row.Scan(append([]any{p.first}, dest...)...)
}

func scanRecording(row scanner) (*models.Recording, error) {
	var rec models.Recording
	err := row.Scan(&rec.ID, &rec.MeetingID, &rec.HostEmail, &rec.SiteURL, &rec.Topic, &rec.CreateTime,
		&rec.MediaURL, &rec.MediaKey, &rec.ContentType, &rec.FileSize,
		&rec.TranscriptText, &rec.TranscriptURL, &rec.TranscriptKey, &rec.TranscriptStatus,
		&rec.TranscriptRetryCount, &rec.NextTranscriptRetryAt, &rec.Approved, &rec.Denied,
		&rec.ApprovedAt, &rec.DeniedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Upsert creates the recording or merges platform metadata and media fields into the
// existing row. Transcript, retry and approval state are never touched on merge.
// Reports whether the row was newly created.
func (r *Repository) Upsert(ctx context.Context, rec *models.Recording) (bool, error) {
	q := `INSERT INTO recordings (id, meeting_id, host_email, site_url, topic, create_time, media_url, media_key, content_type, file_size)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			meeting_id   = COALESCE(NULLIF(EXCLUDED.meeting_id, ''), recordings.meeting_id),
			host_email   = COALESCE(NULLIF(EXCLUDED.host_email, ''), recordings.host_email),
			site_url     = COALESCE(NULLIF(EXCLUDED.site_url, ''), recordings.site_url),
			topic        = COALESCE(NULLIF(EXCLUDED.topic, ''), recordings.topic),
			media_url    = EXCLUDED.media_url,
			media_key    = EXCLUDED.media_key,
			content_type = EXCLUDED.content_type,
			file_size    = EXCLUDED.file_size,
			updated_at   = NOW()
		RETURNING (xmax = 0) AS inserted, ` + recordingColumns

	createTime := rec.CreateTime
	if createTime.IsZero() {
		createTime = time.Now().UTC()
	}
	row := r.pool.QueryRow(ctx, q, rec.ID, rec.MeetingID, rec.HostEmail, rec.SiteURL, rec.Topic, createTime,
		rec.MediaURL, rec.MediaKey, rec.ContentType, rec.FileSize)

	var inserted bool
	out, err := scanRecording(prefixScanner{row: row, first: &inserted})
	if err != nil {
		return false, fmt.Errorf("upsert recording %s: %w", rec.ID, err)
	}
	*rec = *out
	return inserted, nil
}

// Get returns a recording by platform id, or apperrors.ErrNotFound.
func (r *Repository) Get(ctx context.Context, id string) (*models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings WHERE id = $1`
	rec, err := scanRecording(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recording %s: %w", id, err)
	}
	return rec, nil
}

// List returns recordings newest first.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]models.Recording, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	q := `SELECT ` + recordingColumns + ` FROM recordings
		WHERE ($1 = '' OR ($1 = 'approved' AND approved) OR ($1 = 'denied' AND denied) OR ($1 = 'pending' AND NOT approved AND NOT denied))
		  AND ($2 = '' OR site_url = $2)
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`
	return r.query(ctx, q, f.Approval, f.SiteURL, f.Limit, f.Offset)
}

// ListByMeeting returns every recording of a meeting.
func (r *Repository) ListByMeeting(ctx context.Context, meetingID string) ([]models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings WHERE meeting_id = $1 ORDER BY create_time`
	return r.query(ctx, q, meetingID)
}

// ListTranscriptDue returns recordings still waiting for a transcript whose retry time
// has elapsed (or was never set) and that have attempts left.
func (r *Repository) ListTranscriptDue(ctx context.Context, now time.Time, maxAttempts, limit int) ([]models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM recordings
		WHERE transcript_status = 'pending'
		  AND (transcript_text IS NULL OR transcript_text = '')
		  AND transcript_retry_count < $2
		  AND (next_transcript_retry_at IS NULL OR next_transcript_retry_at <= $1)
		ORDER BY next_transcript_retry_at NULLS FIRST, created_at
		LIMIT $3`
	return r.query(ctx, q, now, maxAttempts, limit)
}

// SaveTranscript stores transcript content and marks it available.
func (r *Repository) SaveTranscript(ctx context.Context, id, text, url, key string) error {
	const q = `UPDATE recordings SET transcript_text = $2, transcript_url = $3, transcript_key = $4,
		transcript_status = 'available', next_transcript_retry_at = NULL, updated_at = NOW()
		WHERE id = $1`
	return r.exec(ctx, "save transcript", q, id, text, url, key)
}

// SaveTranscriptRetry records a missed transcript attempt. next is nil once retries are exhausted.
func (r *Repository) SaveTranscriptRetry(ctx context.Context, id string, retryCount int, status string, next *time.Time) error {
	const q = `UPDATE recordings SET transcript_retry_count = $2, transcript_status = $3,
		next_transcript_retry_at = $4, updated_at = NOW()
		WHERE id = $1 AND (transcript_text IS NULL OR transcript_text = '')`
	return r.exec(ctx, "save transcript retry", q, id, retryCount, status, next)
}

// Approve marks a recording approved when it has a transcript. Reports whether the row changed.
func (r *Repository) Approve(ctx context.Context, id string, at time.Time) (bool, error) {
	const q = `UPDATE recordings SET approved = TRUE, denied = FALSE, approved_at = $2, updated_at = NOW()
		WHERE id = $1 AND transcript_text IS NOT NULL AND transcript_text <> ''`
	tag, err := r.pool.Exec(ctx, q, id, at)
	if err != nil {
		return false, fmt.Errorf("approve recording %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Deny marks a recording denied and clears approval.
func (r *Repository) Deny(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE recordings SET approved = FALSE, denied = TRUE, denied_at = $2, updated_at = NOW() WHERE id = $1`
	return r.exec(ctx, "deny recording", q, id, at)
}

func (r *Repository) query(ctx context.Context, q string, args ...any) ([]models.Recording, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query recordings: %w", err)
	}
	defer rows.Close()
	list := make([]models.Recording, 0)
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		list = append(list, *rec)
	}
	return list, rows.Err()
}

func (r *Repository) exec(ctx context.Context, op, q string, args ...any) error {
	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, apperrors.ErrNotFound)
	}
	return nil
}
