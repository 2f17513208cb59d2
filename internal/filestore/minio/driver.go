// Package minio provides a MinIO (or any S3-compatible server)
// implementation of filestore.Provider.
//
// Usage:
//
//	d, err := minio.New(&filestore.MinIOConfig{
//	    Endpoint:  "localhost:9000",
//	    AccessKey: "minioadmin",
//	    SecretKey: "minioadmin",
//	})
//	if err != nil { ... }
//
//	keys, err := d.ListFiles(ctx, "uploads")
package minio

import (
	"bytes"
	"context"
	"net/http"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/koustreak/fileport/internal/errs"
	"github.com/koustreak/fileport/internal/filestore"
	"github.com/koustreak/fileport/internal/logger"
)

// maxPresignExpiry is the longest lifetime a SigV4 presigned URL may have.
const maxPresignExpiry = 7 * 24 * time.Hour

// Driver is a MinIO implementation of filestore.Provider.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	client      *miniogo.Client
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

// New creates a client for cfg.Endpoint. No request is sent.
//
// With AccessKey and SecretKey empty, credentials come from the chain
// MINIO_ACCESS_KEY / MINIO_SECRET_KEY, then AWS_ACCESS_KEY_ID /
// AWS_SECRET_ACCESS_KEY, then the instance IAM role.
func New(cfg *filestore.MinIOConfig, opts ...Option) (*Driver, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "minio endpoint is required")
	}

	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentialsFor(cfg),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to create minio client", err)
	}

	d := &Driver{
		client:      client,
		maxDownload: filestore.DefaultMaxDownloadBytes,
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func credentialsFor(cfg *filestore.MinIOConfig) *credentials.Credentials {
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		return credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	}
	return credentials.NewChainCredentials([]credentials.Provider{
		&credentials.EnvMinio{},
		&credentials.EnvAWS{},
		&credentials.IAM{Client: &http.Client{Transport: http.DefaultTransport}},
	})
}

// --- filestore.Provider implementation ---

// UploadFile stores content as a single object.
func (d *Driver) UploadFile(ctx context.Context, bucket, key string, content []byte) error {
	_, err := d.client.PutObject(ctx, bucket, key, bytes.NewReader(content), int64(len(content)),
		miniogo.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return mapError(err, "failed to upload object")
	}
	return nil
}

// DeleteFile removes key. Like S3, a missing key is not an error.
func (d *Driver) DeleteFile(ctx context.Context, bucket, key string) error {
	if err := d.client.RemoveObject(ctx, bucket, key, miniogo.RemoveObjectOptions{}); err != nil {
		return mapError(err, "failed to delete object")
	}
	return nil
}

// ListFiles returns every key in bucket, recursing through "directories".
func (d *Driver) ListFiles(ctx context.Context, bucket string) ([]string, error) {
	// Stops the listing goroutine if we return early
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	keys := []string{}
	for obj := range d.client.ListObjects(ctx, bucket, miniogo.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return nil, mapError(obj.Err, "failed to list objects")
		}
		keys = append(keys, obj.Key)
	}

	d.log.DebugWith("listed bucket", logger.Fields{"bucket": bucket, "keys": len(keys)})
	return keys, nil
}

// DownloadFile reads the whole object into memory.
func (d *Driver) DownloadFile(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := d.client.GetObject(ctx, bucket, key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, mapError(err, "failed to download object")
	}
	defer obj.Close()

	// GetObject is lazy; the request happens on first read
	data, err := filestore.ReadAll(obj, d.maxDownload)
	if err != nil {
		if errs.KindOf(err) != errs.ErrKindUnknown {
			return nil, err
		}
		return nil, mapError(err, "failed to download object")
	}
	return data, nil
}

// FileExists stats the object; NoSuchKey means it is absent.
func (d *Driver) FileExists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := d.client.StatObject(ctx, bucket, key, miniogo.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, mapError(err, "failed to stat object")
	}
	return true, nil
}

// GenerateSignedURL presigns a GET for key. With a Region configured no
// request is sent; otherwise the bucket location is looked up once.
func (d *Driver) GenerateSignedURL(ctx context.Context, bucket, key string, expiresIn time.Duration) (string, error) {
	if err := filestore.ValidateExpiry(expiresIn); err != nil {
		return "", err
	}
	if expiresIn > maxPresignExpiry {
		return "", errs.Newf(errs.ErrKindInvalidInput, "presigned url expiry cannot exceed %s", maxPresignExpiry)
	}

	u, err := d.client.PresignedGetObject(ctx, bucket, key, expiresIn, nil)
	if err != nil {
		return "", mapError(err, "failed to generate presigned url")
	}
	return u.String(), nil
}

var _ filestore.Provider = (*Driver)(nil)
