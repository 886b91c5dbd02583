package sink

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/yourusername/safety-backup-engine/internal/config"
)

// S3Sink uploads artifacts to AWS S3 or S3-compatible object storage.
// The blob-storage sink type maps here via a custom endpoint with
// path-style addressing.
type S3Sink struct {
	cfg    config.SinkConfig
	client *s3.S3
}

// NewS3Sink creates an object-storage sink.
func NewS3Sink(cfg config.SinkConfig) (*S3Sink, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		),
	}

	// Custom endpoint for S3-compatible storage (MinIO, blob gateways, etc.)
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	log.Printf("[S3Sink] Initialized sink %s: bucket=%s, region=%s", cfg.ID, cfg.Bucket, cfg.Region)

	return &S3Sink{
		cfg:    cfg,
		client: s3.New(sess),
	}, nil
}

func (ss *S3Sink) ID() string    { return ss.cfg.ID }
func (ss *S3Sink) Type() string  { return ss.cfg.Type }
func (ss *S3Sink) Priority() int { return ss.cfg.Priority }

// Deliver uploads the artifact file to the bucket.
func (ss *S3Sink) Deliver(ctx context.Context, sourcePath string) error {
	filename := filepath.Base(sourcePath)
	key := path.Join(ss.cfg.Path, filename)

	file, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat artifact: %w", err)
	}

	log.Printf("[S3Sink] Uploading %s to s3://%s/%s (%d bytes)", filename, ss.cfg.Bucket, key, info.Size())

	_, err = ss.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(ss.cfg.Bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("application/octet-stream"),
		StorageClass:  aws.String("STANDARD"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	return nil
}

// Delete removes an artifact object from the bucket.
func (ss *S3Sink) Delete(ctx context.Context, filename string) error {
	key := path.Join(ss.cfg.Path, filename)

	_, err := ss.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(ss.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}

	return nil
}
