// Package webhooklogs is the append-only activity log of inbound webhook processing.
package webhooklogs

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Netsync-Automation/PracticeTools-sub004/internal/models"
)

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Status      string
	WebhookType string
	SiteURL     string
	Limit       int
}

// Repository handles webhook_logs persistence. There is no update or delete path.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a webhook logs repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append writes one entry and fills in its generated ID and Timestamp.
func (r *Repository) Append(ctx context.Context, e *models.WebhookLogEntry) error {
	const q = `INSERT INTO webhook_logs (id, webhook_type, site_url, meeting_id, recording_id, status, message, error, trace)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`
	e.ID = uuid.NewString()
	trace := e.Trace
	if trace == nil {
		trace = []string{}
	}
	err := r.pool.QueryRow(ctx, q, e.ID, e.WebhookType, e.SiteURL, e.MeetingID, e.RecordingID, e.Status, e.Message, e.Error, trace).
		Scan(&e.Timestamp)
	if err != nil {
		return fmt.Errorf("append webhook log: %w", err)
	}
	return nil
}

// List returns entries newest first.
func (r *Repository) List(ctx context.Context, f Filter) ([]models.WebhookLogEntry, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	const q = `SELECT id::text, created_at, webhook_type, site_url, meeting_id, recording_id, status, message, error, trace
		FROM webhook_logs
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR webhook_type = $2)
		  AND ($3 = '' OR site_url = $3)
		ORDER BY created_at DESC
		LIMIT $4`
	rows, err := r.pool.Query(ctx, q, f.Status, f.WebhookType, f.SiteURL, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("list webhook logs: %w", err)
	}
	defer rows.Close()
	list := make([]models.WebhookLogEntry, 0)
	for rows.Next() {
		var e models.WebhookLogEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.WebhookType, &e.SiteURL, &e.MeetingID, &e.RecordingID, &e.Status, &e.Message, &e.Error, &e.Trace); err != nil {
			return nil, fmt.Errorf("scan webhook log: %w", err)
		}
		list = append(list, e)
	}
	return list, rows.Err()
}
