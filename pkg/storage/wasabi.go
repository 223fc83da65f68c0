package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

const (
	// FolderRecordings is the object prefix for recording uploads.
	FolderRecordings = "recordings"
	// FolderArchives is the object prefix for transcript archives.
	FolderArchives = "transcripts"
)

// WasabiConfig holds S3-compatible client configuration.
type WasabiConfig struct {
	Region               string
	Endpoint             string
	AccessKeyID          string
	SecretAccessKey      string
	Bucket               string
	ArchiveBucket        string
	PresignExpireMinutes int
}

// Wasabi implements Provider over the classic S3 multipart API:
// presigned PUT per part, explicit CompleteMultipartUpload with etag list.
type Wasabi struct {
	client  *s3.Client
	presign *s3.PresignClient
	upload  *manager.Uploader
	cfg     WasabiConfig
	logger  *zap.Logger
}

// NewWasabi creates a Wasabi (S3-compatible) storage provider.
func NewWasabi(ctx context.Context, cfg WasabiConfig, logger *zap.Logger) (*Wasabi, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true // Wasabi prefers path-style addressing
	})
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
	})
	logger.Info("wasabi storage provider ready",
		zap.String("region", cfg.Region), zap.String("bucket", cfg.Bucket))
	return &Wasabi{
		client:  client,
		presign: s3.NewPresignClient(client),
		upload:  uploader,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Kind returns the provider kind.
func (w *Wasabi) Kind() string { return KindWasabi }

// RecordingKey returns the object key: recordings/{room_id}/{recording_id}/{filename}.
func RecordingKey(roomID, recordingID, filename string) string {
	return path.Join(FolderRecordings, roomID, recordingID, path.Base(filename))
}

// ArchiveKey returns the object key for a room transcript archive.
func ArchiveKey(roomID, name string) string {
	return path.Join(FolderArchives, roomID, path.Base(name))
}

// BeginUpload validates input and opens an S3 multipart upload.
func (w *Wasabi) BeginUpload(ctx context.Context, in BeginUploadInput) (*UploadTarget, error) {
	if err := ValidateUploadInput(in, MaxWasabiObjectBytes); err != nil {
		return nil, err
	}
	key := RecordingKey(in.RoomID, in.RecordingID, in.Filename)
	input := &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(w.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(in.ContentType),
	}
	if len(in.Metadata) > 0 {
		input.Metadata = in.Metadata
	}
	out, err := w.client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return nil, &ProviderError{Provider: KindWasabi, Op: "create multipart upload", Err: err}
	}
	return &UploadTarget{
		Provider: KindWasabi,
		FileID:   key,
		UploadID: aws.ToString(out.UploadId),
	}, nil
}

// PartUploadURL returns a presigned PUT URL for one part.
func (w *Wasabi) PartUploadURL(ctx context.Context, fileID, uploadID string, partNumber int32) (string, error) {
	if partNumber < 1 || partNumber > MaxPartCount {
		return "", &ValidationError{Field: "part_number", Reason: fmt.Sprintf("must be in [1,%d]", MaxPartCount)}
	}
	req, err := w.presign.PresignUploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(w.cfg.Bucket),
		Key:        aws.String(fileID),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(partNumber),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = w.PresignExpire()
	})
	if err != nil {
		return "", &ProviderError{Provider: KindWasabi, Op: "presign upload part", Err: err}
	}
	return req.URL, nil
}

// CompleteUpload validates contiguity locally, then submits the part list.
func (w *Wasabi) CompleteUpload(ctx context.Context, fileID, uploadID string, declaredSize int64, parts []CompletedPart) (*CompleteResult, error) {
	SortParts(parts)
	if err := ValidateCompletedParts(parts); err != nil {
		return nil, err
	}
	completed := make([]types.CompletedPart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, types.CompletedPart{
			PartNumber: aws.Int32(p.PartNumber),
			ETag:       aws.String(p.ETag),
		})
	}
	out, err := w.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(w.cfg.Bucket),
		Key:             aws.String(fileID),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return nil, &ProviderError{Provider: KindWasabi, Op: "complete multipart upload", Err: err}
	}
	return &CompleteResult{
		Location:  aws.ToString(out.Location),
		ETag:      aws.ToString(out.ETag),
		SizeBytes: declaredSize,
	}, nil
}

// DownloadURL returns a presigned GET URL. Default validity 60 minutes.
func (w *Wasabi) DownloadURL(ctx context.Context, fileID string, expires time.Duration) (string, error) {
	if expires <= 0 {
		expires = time.Hour
	}
	req, err := w.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(w.cfg.Bucket),
		Key:    aws.String(fileID),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		return "", &ProviderError{Provider: KindWasabi, Op: "presign get", Err: err}
	}
	return req.URL, nil
}

// AbortUpload cancels an in-progress multipart upload (operator cleanup).
func (w *Wasabi) AbortUpload(ctx context.Context, fileID, uploadID string) error {
	_, err := w.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(w.cfg.Bucket),
		Key:      aws.String(fileID),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return &ProviderError{Provider: KindWasabi, Op: "abort multipart upload", Err: err}
	}
	return nil
}

// UploadObject streams a whole object server-side (transcript archives).
func (w *Wasabi) UploadObject(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	bucket := w.cfg.ArchiveBucket
	if bucket == "" {
		bucket = w.cfg.Bucket
	}
	_, err := w.upload.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", &ProviderError{Provider: KindWasabi, Op: "upload object", Err: err}
	}
	return fmt.Sprintf("%s/%s/%s", w.cfg.Endpoint, bucket, key), nil
}

// PresignExpire returns the configured presign duration.
func (w *Wasabi) PresignExpire() time.Duration {
	if w.cfg.PresignExpireMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(w.cfg.PresignExpireMinutes) * time.Minute
}
