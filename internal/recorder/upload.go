package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/looprec/looprec/internal/util"
)

const (
	uploadTimeout  = 5 * time.Minute
	uploadAttempts = 3
)

// UploadConfig holds S3-compatible storage settings for the finished file.
type UploadConfig struct {
	Endpoint        string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	KeyPrefix       string
}

// IsConfigured reports whether enough fields are set to attempt an upload.
func (c *UploadConfig) IsConfigured() bool {
	return c != nil && c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// newS3Client creates an S3 client for the configured storage.
func newS3Client(cfg *UploadConfig) *s3.Client {
	creds := credentials.NewStaticCredentialsProvider(
		cfg.AccessKeyID,
		cfg.SecretAccessKey,
		"",
	)

	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = creds
			o.Region = "auto"
		},
	}

	if cfg.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.New(s3.Options{}, options...)
}

// uploadRecording sends the finished WAV file to the configured bucket,
// retrying transient failures with backoff.
func uploadRecording(ctx context.Context, cfg *UploadConfig, localPath string) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return util.WrapError("stat recording for upload", err)
	}

	client := newS3Client(cfg)
	key := path.Join(cfg.KeyPrefix, filepath.Base(localPath))

	backoff := util.NewBackoff(2*time.Second, 30*time.Second)
	var lastErr error
	for attempt := 1; attempt <= uploadAttempts; attempt++ {
		lastErr = putRecording(ctx, client, cfg.Bucket, key, localPath, info.Size())
		if lastErr == nil {
			slog.Info("recording uploaded", "bucket", cfg.Bucket, "key", key, "size", info.Size())
			return nil
		}

		if attempt < uploadAttempts {
			delay := backoff.Next()
			slog.Warn("upload attempt failed, retrying",
				"attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("upload %s after %d attempts: %w", key, uploadAttempts, lastErr)
}

func putRecording(ctx context.Context, client *s3.Client, bucket, key, localPath string, size int64) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	file, err := os.Open(localPath)
	if err != nil {
		return util.WrapError("open recording for upload", err)
	}
	defer file.Close()

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("audio/wav"),
	})
	return err
}
