package recordings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Netsync-Automation/PracticeTools-sub004/internal/apperrors"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/models"
)

// Decision outcomes.
const (
	DecisionApproved = "approved"
	DecisionDenied   = "denied"
	DecisionRejected = "rejected"
)

// Rejection reasons.
const (
	ReasonNotFound          = "recording not found"
	ReasonTranscriptMissing = "transcript not available"
	ReasonInternal          = "internal error"
)

// Store is the persistence the approval gate needs.
type Store interface {
	Get(ctx context.Context, id string) (*models.Recording, error)
	Approve(ctx context.Context, id string, at time.Time) (bool, error)
	Deny(ctx context.Context, id string, at time.Time) error
}

// Publisher fans events out to live subscribers.
type Publisher interface {
	Publish(ev models.Event)
}

// Announcer posts a message about a recording to its site's monitored rooms.
type Announcer interface {
	Announce(ctx context.Context, rec *models.Recording, markdown string)
}

// ItemResult is the outcome for one recording id.
type ItemResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// BatchResult reports per-id outcomes. Count is the number of ids that changed state.
type BatchResult struct {
	Results []ItemResult `json:"results"`
	Count   int          `json:"count"`
}

// Gate approves and denies recordings. Approval requires a stored transcript.
type Gate struct {
	store     Store
	events    Publisher
	announcer Announcer
	logger    *zap.Logger
	now       func() time.Time
}

// NewGate creates an approval gate. announcer may be nil.
func NewGate(store Store, events Publisher, announcer Announcer, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{store: store, events: events, announcer: announcer, logger: logger, now: time.Now}
}

// Approve approves each id that has a transcript. Ids without one are rejected
// individually and left unchanged.
func (g *Gate) Approve(ctx context.Context, ids []string) (*BatchResult, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, fmt.Errorf("approve: no recording ids")
	}
	out := &BatchResult{Results: make([]ItemResult, 0, len(ids))}
	for _, id := range ids {
		res := g.approveOne(ctx, id)
		if res.Status == DecisionApproved {
			out.Count++
		}
		out.Results = append(out.Results, res)
	}
	g.logger.Info("recordings approved", zap.Int("requested", len(ids)), zap.Int("approved", out.Count))
	return out, nil
}

func (g *Gate) approveOne(ctx context.Context, id string) ItemResult {
	rec, err := g.store.Get(ctx, id)
	if err != nil {
		return g.lookupFailure(id, err)
	}
	if !rec.HasTranscript() {
		return ItemResult{ID: id, Status: DecisionRejected, Reason: ReasonTranscriptMissing}
	}
	at := g.now().UTC()
	ok, err := g.store.Approve(ctx, id, at)
	if err != nil {
		g.logger.Error("approve recording failed", zap.String("recording_id", id), zap.Error(err))
		return ItemResult{ID: id, Status: DecisionRejected, Reason: ReasonInternal}
	}
	if !ok {
		return ItemResult{ID: id, Status: DecisionRejected, Reason: ReasonTranscriptMissing}
	}

	rec.Approved, rec.Denied, rec.ApprovedAt = true, false, &at
	g.publish(models.EventRecordingApproved, rec)
	if g.announcer != nil {
		g.announcer.Announce(ctx, rec, fmt.Sprintf("Recording **%s** has been approved and is now available.", displayTopic(rec)))
	}
	return ItemResult{ID: id, Status: DecisionApproved}
}

// Deny denies each id and clears any approval. Unknown ids are rejected.
func (g *Gate) Deny(ctx context.Context, ids []string) (*BatchResult, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, fmt.Errorf("deny: no recording ids")
	}
	out := &BatchResult{Results: make([]ItemResult, 0, len(ids))}
	for _, id := range ids {
		res := g.denyOne(ctx, id)
		if res.Status == DecisionDenied {
			out.Count++
		}
		out.Results = append(out.Results, res)
	}
	g.logger.Info("recordings denied", zap.Int("requested", len(ids)), zap.Int("denied", out.Count))
	return out, nil
}

func (g *Gate) denyOne(ctx context.Context, id string) ItemResult {
	rec, err := g.store.Get(ctx, id)
	if err != nil {
		return g.lookupFailure(id, err)
	}
	at := g.now().UTC()
	if err := g.store.Deny(ctx, id, at); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return ItemResult{ID: id, Status: DecisionRejected, Reason: ReasonNotFound}
		}
		g.logger.Error("deny recording failed", zap.String("recording_id", id), zap.Error(err))
		return ItemResult{ID: id, Status: DecisionRejected, Reason: ReasonInternal}
	}
	rec.Approved, rec.Denied, rec.DeniedAt = false, true, &at
	g.publish(models.EventRecordingDenied, rec)
	return ItemResult{ID: id, Status: DecisionDenied}
}

func (g *Gate) lookupFailure(id string, err error) ItemResult {
	if errors.Is(err, apperrors.ErrNotFound) {
		return ItemResult{ID: id, Status: DecisionRejected, Reason: ReasonNotFound}
	}
	g.logger.Error("load recording failed", zap.String("recording_id", id), zap.Error(err))
	return ItemResult{ID: id, Status: DecisionRejected, Reason: ReasonInternal}
}

func (g *Gate) publish(eventType string, rec *models.Recording) {
	if g.events == nil {
		return
	}
	g.events.Publish(models.NewEvent(eventType, map[string]interface{}{
		"id":         rec.ID,
		"meeting_id": rec.MeetingID,
		"site_url":   rec.SiteURL,
		"topic":      rec.Topic,
		"approved":   rec.Approved,
		"denied":     rec.Denied,
	}))
}

func displayTopic(rec *models.Recording) string {
	if rec.Topic != "" {
		return rec.Topic
	}
	return rec.ID
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
