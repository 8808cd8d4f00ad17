// Package worker runs the transcript retry sweep.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Netsync-Automation/PracticeTools-sub004/internal/ingest"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/models"
	"github.com/Netsync-Automation/PracticeTools-sub004/pkg/redis"
)

const sweepLockKey = "practicetools:transcript-sweep"

// ErrSweepRunning is returned when another sweep holds the lock.
var ErrSweepRunning = errors.New("transcript sweep already running")

// Item statuses in a sweep result.
const (
	ItemStored      = "transcript_stored"
	ItemRescheduled = "retry_scheduled"
	ItemUnavailable = "unavailable"
	ItemFailed      = "failed"
)

// DueLister finds recordings whose transcript retry is due.
type DueLister interface {
	ListTranscriptDue(ctx context.Context, now time.Time, maxAttempts, limit int) ([]models.Recording, error)
}

// TranscriptFetcher makes one transcript attempt for a recording.
type TranscriptFetcher interface {
	FetchTranscript(ctx context.Context, rec *models.Recording) (ingest.TranscriptResult, error)
	MaxAttempts() int
}

// Locker guards a sweep across instances. Acquire returns redis.ErrLockHeld when taken;
// the lease must stay held until release, however long the sweep runs.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// SweepOptions tunes the sweep.
type SweepOptions struct {
	Concurrency int
	ItemTimeout time.Duration
	BatchSize   int
	LockTTL     time.Duration
}

// ItemResult is the outcome for one recording in a sweep.
type ItemResult struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Processed   int          `json:"processed"`
	Stored      int          `json:"stored"`
	Rescheduled int          `json:"rescheduled"`
	Unavailable int          `json:"unavailable"`
	Failed      int          `json:"failed"`
	DurationMS  int64        `json:"duration_ms"`
	Results     []ItemResult `json:"results"`
}

// Sweeper retries transcript fetches for due recordings with bounded concurrency.
type Sweeper struct {
	due     DueLister
	fetcher TranscriptFetcher
	locker  Locker
	opts    SweepOptions
	logger  *zap.Logger
	now     func() time.Time
}

// NewSweeper creates a sweeper. locker may be nil for single-instance deployments.
func NewSweeper(due DueLister, fetcher TranscriptFetcher, locker Locker, opts SweepOptions, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 5
	}
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = 2 * time.Minute
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Minute
	}
	return &Sweeper{due: due, fetcher: fetcher, locker: locker, opts: opts, logger: logger, now: time.Now}
}

// Sweep makes one transcript attempt for each due recording, at most BatchSize per call.
// A failing recording is reported in its ItemResult and never aborts the sweep.
func (s *Sweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, sweepLockKey, s.opts.LockTTL)
		if errors.Is(err, redis.ErrLockHeld) {
			return nil, ErrSweepRunning
		}
		if err != nil {
			return nil, fmt.Errorf("sweep lock: %w", err)
		}
		defer release()
	}

	start := s.now()
	recs, err := s.due.ListTranscriptDue(ctx, start.UTC(), s.fetcher.MaxAttempts(), s.opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("list due recordings: %w", err)
	}

	results := make([]ItemResult, len(recs))
	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i := range recs {
		i := i
		g.Go(func() error {
			results[i] = s.sweepOne(ctx, &recs[i])
			return nil
		})
	}
	_ = g.Wait()

	out := &SweepResult{Processed: len(results), Results: results}
	for _, r := range results {
		switch r.Status {
		case ItemStored:
			out.Stored++
		case ItemRescheduled:
			out.Rescheduled++
		case ItemUnavailable:
			out.Unavailable++
		default:
			out.Failed++
		}
	}
	out.DurationMS = s.now().Sub(start).Milliseconds()
	s.logger.Info("transcript sweep finished",
		zap.Int("processed", out.Processed),
		zap.Int("stored", out.Stored),
		zap.Int("rescheduled", out.Rescheduled),
		zap.Int("unavailable", out.Unavailable),
		zap.Int("failed", out.Failed),
	)
	return out, nil
}

func (s *Sweeper) sweepOne(ctx context.Context, rec *models.Recording) ItemResult {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ItemTimeout)
	defer cancel()

	res, err := s.fetcher.FetchTranscript(ctx, rec)
	item := ItemResult{ID: rec.ID, Attempts: res.Attempts}
	switch {
	case err != nil:
		item.Status = ItemFailed
		item.Error = err.Error()
		s.logger.Warn("transcript retry failed", zap.String("recording_id", rec.ID), zap.Error(err))
	case res.Available:
		item.Status = ItemStored
	case res.Done:
		item.Status = ItemUnavailable
	default:
		item.Status = ItemRescheduled
	}
	return item
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.Sweep(ctx); err != nil {
			if errors.Is(err, ErrSweepRunning) {
				s.logger.Debug("sweep skipped, another instance holds the lock")
			} else {
				s.logger.Error("sweep failed", zap.Error(err))
			}
		}
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopping")
			return
		case <-ticker.C:
		}
	}
}
