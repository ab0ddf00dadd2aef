package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// DefaultAWSRegion is the fallback region for AWS S3 when not specified.
const DefaultAWSRegion = "us-east-1"

// S3Config configures an S3Fetcher.
//
// Credentials follow the AWS SDK v2 default chain unless AccessKeyID and
// SecretAccessKey are both set. For S3-compatible stores set Endpoint and
// usually ForcePathStyle.
type S3Config struct {
	// Bucket holds the sample files (required).
	Bucket string

	// Prefix is prepended to every remote path after StripPrefix is applied.
	Prefix string

	// StripPrefix is removed from remote paths before the key is built.
	StripPrefix string

	Region          string
	Endpoint        string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
}

// Validate checks that required configuration is present.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("s3 fetch bucket is required")
	}
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return errors.New("both access key ID and secret access key must be provided together")
	}
	return nil
}

// S3Fetcher downloads sample files from an S3 bucket. The job credential is
// not used; access comes from the AWS credential chain.
type S3Fetcher struct {
	client *s3.Client
	cfg    S3Config
	logger *zap.Logger
}

var _ Fetcher = (*S3Fetcher)(nil)

// NewS3 creates an S3Fetcher.
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3Fetcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, &Error{Op: "New", Source: "s3", Path: cfg.Bucket, Err: err}
	}

	opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}
		},
	}
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return &S3Fetcher{
		client: s3.NewFromConfig(awsCfg, opts...),
		cfg:    cfg,
		logger: logger,
	}, nil
}

func loadAWSConfig(ctx context.Context, cfg S3Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	awsCfg.Region = resolveRegion(cfg.Endpoint, awsCfg.Region)
	return awsCfg, nil
}

// resolveRegion keeps whatever the SDK resolved and only falls back to the
// AWS default when talking to AWS itself.
func resolveRegion(endpoint, sdkRegion string) string {
	if sdkRegion != "" {
		return sdkRegion
	}
	if endpoint == "" {
		return DefaultAWSRegion
	}
	return ""
}

// Key maps a sample file path to its object key.
func (f *S3Fetcher) Key(remotePath string) string {
	key := strings.TrimLeft(StripPrefix(remotePath, f.cfg.StripPrefix), "/")
	if f.cfg.Prefix == "" {
		return key
	}
	return strings.TrimRight(f.cfg.Prefix, "/") + "/" + key
}

// Fetch downloads the object for remotePath into localPath.
func (f *S3Fetcher) Fetch(ctx context.Context, remotePath, localPath string, _ Credential) error {
	key := f.Key(remotePath)
	start := time.Now()

	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return f.wrapError("Get", remotePath, err)
	}
	defer func() { _ = out.Body.Close() }()

	n, err := writeAtomic(localPath, out.Body)
	if err != nil {
		return &Error{Op: "Write", Source: "s3", Path: remotePath, Err: err}
	}

	f.logger.Debug("Fetched object",
		zap.String("bucket", f.cfg.Bucket),
		zap.String("key", key),
		zap.String("local_path", localPath),
		zap.Int64("bytes", n),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (f *S3Fetcher) wrapError(op, path string, err error) error {
	wrapped := &Error{Op: op, Source: "s3", Path: path, Err: err}

	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket
	switch {
	case errors.As(err, &notFound), errors.As(err, &noSuchKey), errors.As(err, &noSuchBucket):
		wrapped.Err = fmt.Errorf("%w: %v", ErrNotFound, err)
		return wrapped
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			wrapped.Err = fmt.Errorf("%w: %v", ErrNotFound, err)
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			wrapped.Err = fmt.Errorf("%w: %v", ErrAccessDenied, err)
		case "SlowDown", "Throttling", "RequestLimitExceeded":
			wrapped.Err = fmt.Errorf("%w: %v", ErrThrottled, err)
		case "ServiceUnavailable", "InternalError":
			wrapped.Err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return wrapped
}
