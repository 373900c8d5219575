package hosting

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// s3API is the subset of the S3 client used by S3Host.
type s3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Host serves task pages from a public-read S3 bucket.
type S3Host struct {
	client   s3API
	bucket   string
	region   string
	endpoint string
	prefix   string
}

// NewS3Host creates an S3-backed host using the default AWS credential chain.
func NewS3Host(ctx context.Context, cfg Config) (*S3Host, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required for s3 hosting")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for MinIO/LocalStack
		}
	})

	return &S3Host{
		client:   client,
		bucket:   cfg.Bucket,
		region:   region,
		endpoint: cfg.Endpoint,
		prefix:   cfg.Prefix,
	}, nil
}

// Upload stores content publicly and returns its URL.
// An object already present under the same name is left untouched.
func (h *S3Host) Upload(ctx context.Context, name string, content []byte) (string, error) {
	key := h.prefix + name

	_, err := h.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return h.url(key), nil
	}

	_, err = h.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(h.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType(name)),
		ACL:         types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("s3 put failed for %s: %w", key, err)
	}

	return h.url(key), nil
}

func (h *S3Host) url(key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	if h.endpoint != "" {
		return strings.TrimSuffix(h.endpoint, "/") + "/" + h.bucket + "/" + escaped
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", h.bucket, h.region, escaped)
}
