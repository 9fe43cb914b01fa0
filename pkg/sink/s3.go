package sink

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/replicate/batchget/pkg/logging"
)

// PutObjectAPI is the subset of the S3 client used by the S3 sink.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UploadTimeout   time.Duration
}

// NewS3Client builds an S3 client from cfg. A custom endpoint switches the
// client to path-style addressing for S3-compatible stores.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// S3 buffers the body and uploads it as a single object on Close.
type S3 struct {
	api     PutObjectAPI
	bucket  string
	key     string
	timeout time.Duration

	buf    bytes.Buffer
	closed bool
}

var _ Sink = &S3{}
var _ Aborter = &S3{}

func NewS3(api PutObjectAPI, bucket, key string, timeout time.Duration) *S3 {
	return &S3{api: api, bucket: bucket, key: key, timeout: timeout}
}

// S3Factory stores each download under cfg.Prefix using the same name the
// file sink would give it.
func S3Factory(api PutObjectAPI, cfg S3Config) Factory {
	return func(t Target) (Sink, error) {
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("no S3 bucket configured")
		}
		return NewS3(api, cfg.Bucket, path.Join(cfg.Prefix, FilenameFor(t)), cfg.UploadTimeout), nil
	}
}

func (s *S3) Key() string { return s.key }

func (s *S3) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	return s.buf.Write(p)
}

func (s *S3) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true

	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	size := int64(s.buf.Len())
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key),
		Body:          bytes.NewReader(s.buf.Bytes()),
		ContentLength: aws.Int64(size),
	})
	s.buf.Reset()
	if err != nil {
		return fmt.Errorf("failed to put object s3://%s/%s: %w", s.bucket, s.key, err)
	}
	logger := logging.GetLogger()
	logger.Debug().
		Str("bucket", s.bucket).
		Str("key", s.key).
		Int64("size", size).
		Msg("Object stored")
	return nil
}

func (s *S3) Abort(error) {
	s.closed = true
	s.buf.Reset()
}
