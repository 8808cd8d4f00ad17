package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

const (
	// FolderRecordings is the S3 prefix for recording media objects.
	FolderRecordings = "recordings"
	// FolderTranscripts is the S3 prefix for transcript objects.
	FolderTranscripts = "transcripts"
)

// S3Config holds S3 client configuration.
type S3Config struct {
	Region               string
	RecordingsBucket     string
	PresignExpireMinutes int
}

// Uploader is the subset of manager.Uploader used for streaming puts.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3 is the artifact store: deterministic keys, overwrite on re-put, pre-signed downloads.
type S3 struct {
	client   *s3.Client
	uploader Uploader
	cfg      S3Config
	logger   *zap.Logger
}

// NewS3 creates an S3 artifact store from a loaded aws.Config.
func NewS3(awsCfg aws.Config, cfg S3Config, logger *zap.Logger) *S3 {
	client := s3.NewFromConfig(awsCfg)
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024 // 5MB parts for streaming
	})
	return newS3(client, uploader, cfg, logger)
}

func newS3(client *s3.Client, uploader Uploader, cfg S3Config, logger *zap.Logger) *S3 {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3{client: client, uploader: uploader, cfg: cfg, logger: logger}
}

// RecordingKey returns the object key for a recording's media: recordings/{recording_id}.
func RecordingKey(recordingID string) string {
	return path.Join(FolderRecordings, recordingID)
}

// TranscriptKey returns the object key for a recording's transcript: transcripts/{recording_id}.
func TranscriptKey(recordingID string) string {
	return path.Join(FolderTranscripts, recordingID)
}

// Put streams body to the recordings bucket under key and returns the object URL.
// Re-putting the same key overwrites the object.
func (s *S3) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	var contentLengthPtr *int64
	if size > 0 {
		contentLengthPtr = &size
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	bucket := s.cfg.RecordingsBucket
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: contentLengthPtr,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	s.logger.Debug("artifact stored", zap.String("bucket", bucket), zap.String("key", key), zap.Int64("size", size))
	return s.ObjectURL(key), nil
}

// ObjectURL returns the unsigned URL for an object in the recordings bucket.
func (s *S3) ObjectURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.RecordingsBucket, s.cfg.Region, key)
}

// PresignExpire returns the configured presign duration.
func (s *S3) PresignExpire() time.Duration {
	if s.cfg.PresignExpireMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.cfg.PresignExpireMinutes) * time.Minute
}

// PresignGet returns a pre-signed GET URL for an artifact key.
func (s *S3) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	presignClient := s3.NewPresignClient(s.client)
	req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.RecordingsBucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return req.URL, nil
}
