// Package app wires the pipeline components shared by the server and the worker CLI.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Netsync-Automation/PracticeTools-sub004/config"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/announce"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/auth"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/credentials"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/ingest"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/platform"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/realtime"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/recordings"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/sites"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/token"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/webhooklogs"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/worker"
	"github.com/Netsync-Automation/PracticeTools-sub004/pkg/awsutil"
	"github.com/Netsync-Automation/PracticeTools-sub004/pkg/database"
	"github.com/Netsync-Automation/PracticeTools-sub004/pkg/redis"
	"github.com/Netsync-Automation/PracticeTools-sub004/pkg/secrets"
	"github.com/Netsync-Automation/PracticeTools-sub004/pkg/storage"
)

const userAgent = "practicetools-pipeline/1.0"

// App holds the wired components.
type App struct {
	Config      *config.Config
	Logger      *zap.Logger
	Pool        *pgxpool.Pool
	Redis       *redis.Client // nil when REDIS_ADDR is empty
	Sites       *sites.Registry
	Tokens      *token.Manager
	Platform    *platform.Client
	Blobs       *storage.S3
	Recordings  *recordings.Repository
	WebhookLogs *webhooklogs.Repository
	Hub         *realtime.Hub
	Ingest      *ingest.Worker
	Gate        *recordings.Gate
	Sweeper     *worker.Sweeper
	JWT         *auth.JWTService

	closers []func()
}

// New connects to the stores, runs migrations and builds every component.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg, logger := a.Config, a.Logger

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns), logger)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	a.Pool = pool
	a.closers = append(a.closers, pool.Close)
	if err := database.Migrate(ctx, pool, logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.Redis = rdb
		a.closers = append(a.closers, func() { _ = rdb.Close() })
	} else {
		logger.Warn("redis disabled: events stay on this instance and sweeps are not locked")
	}

	awsCfg, err := awsutil.LoadConfig(ctx, cfg.AWS.Region, cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey, logger)
	if err != nil {
		return fmt.Errorf("aws: %w", err)
	}
	a.Blobs = storage.NewS3(awsCfg, storage.S3Config{
		Region:               cfg.AWS.Region,
		RecordingsBucket:     cfg.AWS.RecordingsBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}, logger)
	creds := credentials.NewStore(secrets.NewSSM(awsCfg, cfg.AWS.SSMPrefix, logger), logger)

	a.Sites, err = sites.Open(cfg.Sites.Path, logger)
	if err != nil {
		return fmt.Errorf("sites: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.Platform.HTTPTimeout}
	a.Tokens = token.NewManager(a.Sites, creds, token.Options{
		TokenURL:   cfg.Platform.TokenURL,
		HTTPClient: httpClient,
		Skew:       cfg.Pipeline.TokenSkew,
	}, logger)
	a.Platform = platform.NewClient(platform.Options{
		BaseURL:    cfg.Platform.BaseURL,
		HTTPClient: httpClient,
		UserAgent:  userAgent,
	}, logger)
	a.Sites.SetDirectory(platform.NewDirectory(a.Platform, a.Tokens))

	a.Recordings = recordings.NewRepository(pool)
	a.WebhookLogs = webhooklogs.NewRepository(pool)

	hubOpts := realtime.HubOptions{KeepAlive: cfg.Pipeline.KeepAliveInterval}
	if a.Redis != nil {
		hubOpts.Bridge = realtime.NewRedisPubSub(a.Redis.Client, logger)
	}
	a.Hub = realtime.NewHub(hubOpts, logger)

	a.Ingest, err = ingest.NewWorker(ingest.Deps{
		Sites:      a.Sites,
		Tokens:     a.Tokens,
		Platform:   a.Platform,
		Blobs:      a.Blobs,
		Recordings: a.Recordings,
		Activity:   a.WebhookLogs,
		Events:     a.Hub,
	}, ingest.Options{
		RetryInterval: cfg.Pipeline.TranscriptRetryInterval,
		MaxAttempts:   cfg.Pipeline.TranscriptMaxAttempts,
	}, logger)
	if err != nil {
		return fmt.Errorf("ingest worker: %w", err)
	}

	announcer := announce.NewAnnouncer(a.Sites, a.Tokens, a.Platform, logger)
	a.Gate = recordings.NewGate(a.Recordings, a.Hub, announcer, logger)

	var locker worker.Locker
	if a.Redis != nil {
		locker = a.Redis
	}
	a.Sweeper = worker.NewSweeper(a.Recordings, a.Ingest, locker, worker.SweepOptions{
		Concurrency: cfg.Pipeline.SweepConcurrency,
		ItemTimeout: cfg.Pipeline.SweepItemTimeout,
		BatchSize:   cfg.Pipeline.SweepBatchSize,
		LockTTL:     cfg.Pipeline.SweepLockTTL,
	}, logger)

	a.JWT = auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	return nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// NewLogger builds the production JSON logger.
func NewLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}

// waitTimeout runs wait and gives up after d.
func waitTimeout(wait func(), d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
