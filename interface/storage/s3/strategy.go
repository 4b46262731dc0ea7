package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	dcStorage "github.com/airbusgeo/dcquery/interface/storage"
	"github.com/airbusgeo/dcquery/internal/utils"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type s3Strategy struct {
	client *s3.Client
}

// Config configures the s3 client. Empty fields fall back to the default aws configuration
type Config struct {
	Region          string
	Endpoint        string
	CredentialsFile string
}

// NewS3Strategy creates a strategy on top of aws s3 (or any s3-compatible endpoint)
func NewS3Strategy(ctx context.Context, cfg Config) (dcStorage.Strategy, error) {
	var opts []func(*awsConfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsConfig.WithRegion(cfg.Region))
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, awsConfig.WithSharedCredentialsFiles([]string{cfg.CredentialsFile}))
	}
	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return s3Strategy{client: client}, nil
}

// ConfigFromEnv reads the s3 configuration from AWS_REGION, AWS_ENDPOINT_URL and AWS_SHARED_CREDENTIALS_FILE
func ConfigFromEnv() Config {
	return Config{
		Region:          os.Getenv("AWS_REGION"),
		Endpoint:        os.Getenv("AWS_ENDPOINT_URL"),
		CredentialsFile: os.Getenv("AWS_SHARED_CREDENTIALS_FILE"),
	}
}

// Parse splits s3://bucket/path/to/object into bucket and object key
func Parse(uri string) (bucket, key string, err error) {
	uri = strings.TrimPrefix(strings.TrimPrefix(uri, "s3://"), "/")
	sep := strings.Index(uri, "/")
	if sep <= 0 || sep == len(uri)-1 {
		return "", "", fmt.Errorf("failed to parse URI : %s : missing bucket or object", uri)
	}
	return uri[:sep], uri[sep+1:], nil
}

func s3Error(err error) error {
	if err == nil {
		return nil
	}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return dcStorage.ErrFileNotFound
		case "SlowDown", "InternalError", "ServiceUnavailable", "RequestTimeout":
			return utils.MakeTemporary(err)
		}
	}
	return err
}

func retries(op dcStorage.Options) func(*s3.Options) {
	return func(o *s3.Options) {
		o.RetryMaxAttempts = op.MaxTries
	}
}

func (s s3Strategy) getObject(ctx context.Context, uri string, options ...dcStorage.Option) (io.ReadCloser, error) {
	bucket, key, err := Parse(uri)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, retries(dcStorage.Apply(options...)))
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, s3Error(err))
	}
	return out.Body, nil
}

func (s s3Strategy) Download(ctx context.Context, uri string, options ...dcStorage.Option) ([]byte, error) {
	r, err := s.getObject(ctx, uri, options...)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (s s3Strategy) Upload(ctx context.Context, uri string, data []byte, options ...dcStorage.Option) error {
	return s.put(ctx, uri, bytes.NewReader(data), options...)
}

// UploadFile streams data when it is seekable, otherwise it is buffered in memory to be signed
func (s s3Strategy) UploadFile(ctx context.Context, uri string, data io.ReadCloser, options ...dcStorage.Option) error {
	defer data.Close()
	if rs, ok := data.(io.ReadSeeker); ok {
		return s.put(ctx, uri, rs, options...)
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("UploadFile: %w", err)
	}
	return s.put(ctx, uri, bytes.NewReader(b), options...)
}

func (s s3Strategy) put(ctx context.Context, uri string, body io.ReadSeeker, options ...dcStorage.Option) error {
	bucket, key, err := Parse(uri)
	if err != nil {
		return err
	}
	op := dcStorage.Apply(options...)
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if op.ContentType != "" {
		input.ContentType = aws.String(op.ContentType)
	}
	if op.StorageClass != "" {
		input.StorageClass = types.StorageClass(op.StorageClass)
	}
	if _, err = s.client.PutObject(ctx, input, retries(op)); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", bucket, key, s3Error(err))
	}
	return nil
}

// Delete on s3 succeeds whether or not the object exists
func (s s3Strategy) Delete(ctx context.Context, uri string, options ...dcStorage.Option) error {
	bucket, key, err := Parse(uri)
	if err != nil {
		return err
	}
	op := dcStorage.Apply(options...)
	if !op.IgnoreNotFound {
		if _, err := s.GetAttrs(ctx, uri); err != nil {
			return err
		}
	}
	if _, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, retries(op)); err != nil {
		return fmt.Errorf("delete s3://%s/%s: %w", bucket, key, s3Error(err))
	}
	return nil
}

func (s s3Strategy) Exist(ctx context.Context, uri string) (bool, error) {
	if _, err := s.GetAttrs(ctx, uri); err != nil {
		return false, err
	}
	return true, nil
}

func (s s3Strategy) GetAttrs(ctx context.Context, uri string) (dcStorage.Attrs, error) {
	bucket, key, err := Parse(uri)
	if err != nil {
		return dcStorage.Attrs{}, err
	}
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return dcStorage.Attrs{}, fmt.Errorf("head s3://%s/%s: %w", bucket, key, s3Error(err))
	}
	return dcStorage.Attrs{
		ContentType:  aws.ToString(out.ContentType),
		StorageClass: string(out.StorageClass),
		Size:         aws.ToInt64(out.ContentLength),
	}, nil
}
