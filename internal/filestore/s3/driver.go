// Package s3 provides an Amazon S3 implementation of filestore.Provider.
//
// Credentials are never passed in. New resolves them through the AWS
// default chain (environment, shared config and credentials files, web
// identity, container and instance roles), exactly like the AWS CLI.
//
// Usage:
//
//	d, err := s3.New(ctx, &filestore.S3Config{Region: "eu-west-1"})
//	if err != nil { ... }
//	url, err := d.GenerateSignedURL(ctx, "reports", "q1.pdf", 15*time.Minute)
package s3

import (
	"bytes"
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/koustreak/fileport/internal/errs"
	"github.com/koustreak/fileport/internal/filestore"
	"github.com/koustreak/fileport/internal/logger"
)

// Client is the subset of the S3 API used by Driver.
// *awss3.Client satisfies it.
type Client interface {
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *awss3.HeadObjectInput, optFns ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
}

// Presigner signs GetObject requests. *awss3.PresignClient satisfies it.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Driver is an S3 implementation of filestore.Provider.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	client      Client
	presigner   Presigner
	maxDownload int64
	log         *logger.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *logger.Logger) Option {
	return func(d *Driver) { d.log = l }
}

// WithMaxDownloadBytes caps DownloadFile; see filestore.ReadAll.
func WithMaxDownloadBytes(n int64) Option {
	return func(d *Driver) { d.maxDownload = n }
}

// New builds a Driver from the AWS default configuration chain.
// cfg may be nil; its fields only override region and endpoint.
func New(ctx context.Context, cfg *filestore.S3Config, opts ...Option) (*Driver, error) {
	if cfg == nil {
		cfg = &filestore.S3Config{}
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to load aws configuration", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return NewWithClient(client, awss3.NewPresignClient(client), opts...), nil
}

// NewWithClient builds a Driver around pre-configured clients.
func NewWithClient(client Client, presigner Presigner, opts ...Option) *Driver {
	d := &Driver{
		client:      client,
		presigner:   presigner,
		maxDownload: filestore.DefaultMaxDownloadBytes,
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// --- filestore.Provider implementation ---

// UploadFile stores content with a single PutObject call.
func (d *Driver) UploadFile(ctx context.Context, bucket, key string, content []byte) error {
	_, err := d.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
	})
	if err != nil {
		return mapError(err, "failed to upload object")
	}
	return nil
}

// DeleteFile removes key. S3 reports success for keys that do not exist.
func (d *Driver) DeleteFile(ctx context.Context, bucket, key string) error {
	_, err := d.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return mapError(err, "failed to delete object")
	}
	return nil
}

// ListFiles pages through ListObjectsV2 until the bucket is exhausted.
func (d *Driver) ListFiles(ctx context.Context, bucket string) ([]string, error) {
	pager := awss3.NewListObjectsV2Paginator(d.client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	})

	keys := []string{}
	pages := 0
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapError(err, "failed to list objects")
		}
		pages++
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	d.log.DebugWith("listed bucket", logger.Fields{"bucket": bucket, "pages": pages, "keys": len(keys)})
	return keys, nil
}

// DownloadFile reads the whole object into memory.
func (d *Driver) DownloadFile(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := d.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapError(err, "failed to download object")
	}
	defer out.Body.Close()

	data, err := filestore.ReadAll(out.Body, d.maxDownload)
	if err != nil {
		if errs.KindOf(err) != errs.ErrKindUnknown {
			return nil, err
		}
		return nil, mapError(err, "failed to read object body")
	}
	return data, nil
}

// FileExists issues HeadObject; a 404 means the object is absent.
func (d *Driver) FileExists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := d.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, mapError(err, "failed to stat object")
	}
	return true, nil
}

// GenerateSignedURL presigns a GetObject request locally; no request is sent.
func (d *Driver) GenerateSignedURL(ctx context.Context, bucket, key string, expiresIn time.Duration) (string, error) {
	if err := filestore.ValidateExpiry(expiresIn); err != nil {
		return "", err
	}

	req, err := d.presigner.PresignGetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, awss3.WithPresignExpires(expiresIn))
	if err != nil {
		return "", mapError(err, "failed to presign url")
	}
	return req.URL, nil
}

var _ filestore.Provider = (*Driver)(nil)
