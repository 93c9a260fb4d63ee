// Package coldstore implements the S3 cold store for aged sensor samples:
// compressed parquet objects, one per partition, immutable once written.
package coldstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/vitals-systems/siphon/pkg/types"
)

// S3API is the subset of the S3 client used by the store.
type S3API interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, input *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store writes and verifies partition objects in one S3 bucket.
type Store struct {
	client S3API
	bucket string
	prefix string
	codec  string
}

// Option configures a Store.
type Option func(*Store)

// WithClient sets a custom S3 client (useful for testing).
func WithClient(c S3API) Option {
	return func(s *Store) { s.client = c }
}

// New creates a cold store from connection settings.
func New(ctx context.Context, cfg types.ColdStoreConfig, opts ...Option) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("cold store bucket required")
	}

	s := &Store{
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		codec:  cfg.Compression,
	}
	if s.prefix == "" {
		s.prefix = "timeseries"
	}
	for _, o := range opts {
		o(s)
	}

	if s.client == nil {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
		}
		// For MinIO and other local stacks: static credentials and a
		// path-style endpoint.
		if cfg.Endpoint != "" {
			loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider("local", "local", ""),
			))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		s.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
				o.UsePathStyle = true
			}
		})
	}
	return s, nil
}

// Put uploads one immutable partition object.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("putting %s: %w", key, err)
	}
	return nil
}

// Stat returns the size of an object and whether it exists. A missing object
// is not an error.
func (s *Store) Stat(ctx context.Context, key string) (int64, bool, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *s3types.NotFound
		if errors.As(err, &nf) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("heading %s: %w", key, err)
	}
	return aws.ToInt64(out.ContentLength), true, nil
}

// Exists reports whether an object is already present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Stat(ctx, key)
	return ok, err
}

// Get downloads one object. Used by tests and ad hoc verification, not by
// the pipeline's hot path.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("getting %s: %w", key, err)
	}
	defer out.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return buf.Bytes(), nil
}
