package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"dmchat/internal/pkg/logx"
)

// s3Client talks to an S3-compatible bucket.
type s3Client struct {
	bucket   string
	client   *s3.Client
	uploader *manager.Uploader
	logger   zerolog.Logger
}

// newS3Client builds a client with static credentials and path-style addressing so
// that S3-compatible endpoints (R2, MinIO) work as well as AWS itself.
func newS3Client(ctx context.Context, cfg Config) (*s3Client, error) {
	sdkCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config: %w", err)
	}

	client := s3.NewFromConfig(sdkCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	return &s3Client{
		bucket:   cfg.BucketName,
		client:   client,
		uploader: manager.NewUploader(client),
		logger:   logx.Component("s3"),
	}, nil
}

// Put streams body into the bucket under key.
func (c *s3Client) Put(ctx context.Context, key, contentType string, body io.Reader) error {
	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(c.bucket),
		Key:          aws.String(key),
		Body:         body,
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		c.logger.Error().Err(err).Str("key", key).Msg("s3 upload failed")
		return fmt.Errorf("upload %s: %w", key, err)
	}

	return nil
}

// PresignPut returns a URL the client can PUT the object to directly.
func (c *s3Client) PresignPut(
	ctx context.Context,
	key string,
	contentType string,
	size int64,
	ttl time.Duration,
) (string, error) {
	presignClient := s3.NewPresignClient(c.client)

	out, err := presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		c.logger.Error().Err(err).Str("key", key).Msg("presign upload failed")
		return "", fmt.Errorf("presign %s: %w", key, err)
	}

	return out.URL, nil
}

// Delete removes key from the bucket. Deleting a missing key is not an error.
func (c *s3Client) Delete(ctx context.Context, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		c.logger.Error().Err(err).Str("key", key).Msg("s3 delete failed")
		return fmt.Errorf("delete %s: %w", key, err)
	}

	return nil
}
