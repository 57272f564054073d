// SPDX-License-Identifier: MIT

package uploader

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/recwatch/recwatch/internal/errcode"
	"github.com/recwatch/recwatch/internal/log"
)

// S3Config holds the object-storage target. An empty Bucket disables
// uploads entirely.
type S3Config struct {
	Bucket      string
	EndpointURL string // custom endpoint for MinIO-style deployments
	Region      string
	AccessKeyID string
	SecretKey   string
}

// S3Store uploads artifacts to S3 or any S3-compatible endpoint.
type S3Store struct {
	client   *s3.Client
	bucket   string
	endpoint string
	logger   zerolog.Logger
}

// NewS3Store builds an S3-backed ObjectStore. Misconfiguration (missing
// bucket, failed bucket probe) yields a disabled store rather than an error,
// matching the sidecar's best-effort contract.
func NewS3Store(ctx context.Context, cfg S3Config) *S3Store {
	logger := log.WithComponent("uploader.s3")

	store := &S3Store{bucket: cfg.Bucket, endpoint: cfg.EndpointURL, logger: logger}
	if cfg.Bucket == "" {
		logger.Info().Msg("object storage not configured, uploads disabled")
		return store
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		logger.Error().Err(err).Msg("s3 client initialization failed")
		return store
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	})

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.HeadBucket(probeCtx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		logger.Error().Err(err).Str(log.FieldBucket, cfg.Bucket).Msg("s3 bucket probe failed, uploads disabled")
		return store
	}

	logger.Info().
		Str(log.FieldBucket, cfg.Bucket).
		Str("endpoint", cfg.EndpointURL).
		Msg("s3 client initialized")
	store.client = client
	return store
}

// Enabled reports whether uploads can be performed.
func (s *S3Store) Enabled() bool {
	return s.client != nil && s.bucket != ""
}

// Upload stores one local file under key and returns what was written.
func (s *S3Store) Upload(ctx context.Context, filePath, key string) (Outcome, error) {
	if !s.Enabled() {
		return Outcome{}, errcode.New(errcode.StorageError, "s3 upload not configured or available")
	}

	st, err := os.Stat(filePath)
	if err != nil {
		return Outcome{}, errcode.Wrap(errcode.FileNotFound, "stat artifact", err).
			WithDetail("path", filePath)
	}

	f, err := os.Open(filePath)
	if err != nil {
		return Outcome{}, errcode.Wrap(errcode.FileNotFound, "open artifact", err).
			WithDetail("path", filePath)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	uploadedAt := time.Now().UTC().Format(time.RFC3339)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(st.Size()),
		Metadata: map[string]string{
			"upload_timestamp": uploadedAt,
			"original_name":    st.Name(),
			"file_size":        strconv.FormatInt(st.Size(), 10),
		},
	})
	if err != nil {
		return Outcome{}, errcode.Wrap(errcode.S3UploadFailed, "put object", err).
			WithDetail("key", key)
	}

	url := fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, key)
	if s.endpoint != "" {
		url = fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, key)
	}

	s.logger.Info().
		Str(log.FieldPath, filePath).
		Str(log.FieldS3Key, key).
		Int64("size", st.Size()).
		Msg("s3 upload completed")

	return Outcome{
		Path:       filePath,
		Bucket:     s.bucket,
		Key:        key,
		URL:        url,
		Size:       st.Size(),
		UploadedAt: uploadedAt,
	}, nil
}
