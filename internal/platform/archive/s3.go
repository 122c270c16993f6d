package archive

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/yungbote/compoundlab-backend/internal/platform/logger"
)

// S3API is the subset of the S3 client the archive uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type s3Store struct {
	log    *logger.Logger
	client S3API
	bucket string
	prefix string
}

// NewS3 targets AWS S3, or any S3-compatible endpoint (MinIO) when Endpoint is set.
// Static keys are optional; the default credential chain applies otherwise.
func NewS3(ctx context.Context, log *logger.Logger, cfg Config) (Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("missing REPORT_BUCKET for s3 archive")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewS3WithClient(log, client, cfg), nil
}

func NewS3WithClient(log *logger.Logger, client S3API, cfg Config) Store {
	return &s3Store{
		log:    log.With("component", "S3Archive"),
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}
}

func (s *s3Store) Kind() string { return KindS3 }

func (s *s3Store) Put(ctx context.Context, key, contentType string, data []byte) error {
	name := objectKey(s.prefix, key)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(name),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", name, err)
	}
	s.log.Debug("Report archived", "bucket", s.bucket, "key", name, "bytes", len(data))
	return nil
}
