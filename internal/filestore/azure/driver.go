// Package azure provides an Azure Blob Storage implementation of
// filestore.Provider.
//
// The only configuration is a storage account connection string. Signed
// URLs are service SAS URLs and require the connection string to carry an
// AccountKey; SAS-token connection strings can do everything else.
package azure

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	"github.com/koustreak/fileport/internal/errs"
	"github.com/koustreak/fileport/internal/filestore"
	"github.com/koustreak/fileport/internal/logger"
)

// Client is the subset of *azblob.Client used by Driver.
type Client interface {
	UploadBuffer(ctx context.Context, containerName string, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
	DeleteBlob(ctx context.Context, containerName string, blobName string, o *azblob.DeleteBlobOptions) (azblob.DeleteBlobResponse, error)
	NewListBlobsFlatPager(containerName string, o *azblob.ListBlobsFlatOptions) *runtime.Pager[azblob.ListBlobsFlatResponse]
	DownloadStream(ctx context.Context, containerName string, blobName string, o *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error)
}

// BlobClient is the subset of *blob.Client used for existence checks and
// SAS generation.
type BlobClient interface {
	GetProperties(ctx context.Context, o *blob.GetPropertiesOptions) (blob.GetPropertiesResponse, error)
	GetSASURL(permissions sas.BlobPermissions, expiry time.Time, o *blob.GetSASURLOptions) (string, error)
}

// BlobFactory returns the blob-level client for one blob.
type BlobFactory func(containerName, blobName string) BlobClient

// Driver is an Azure Blob Storage implementation of filestore.Provider.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	client      Client
	blob        BlobFactory
	now         func() time.Time
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

// New creates a Driver from a storage account connection string.
func New(connectionString string, opts ...Option) (*Driver, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid azure connection string", err)
	}

	blobs := func(containerName, blobName string) BlobClient {
		return client.ServiceClient().NewContainerClient(containerName).NewBlobClient(blobName)
	}
	return NewWithClient(client, blobs, opts...), nil
}

// NewWithClient builds a Driver around pre-configured clients.
func NewWithClient(client Client, blobs BlobFactory, opts ...Option) *Driver {
	d := &Driver{
		client:      client,
		blob:        blobs,
		now:         time.Now,
		maxDownload: filestore.DefaultMaxDownloadBytes,
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// --- filestore.Provider implementation ---

// UploadFile writes content as a block blob, replacing any existing blob.
func (d *Driver) UploadFile(ctx context.Context, containerName, blobName string, content []byte) error {
	if _, err := d.client.UploadBuffer(ctx, containerName, blobName, content, nil); err != nil {
		return mapError(err, "failed to upload blob")
	}
	return nil
}

// DeleteFile deletes the blob. A missing blob is reported as not found.
func (d *Driver) DeleteFile(ctx context.Context, containerName, blobName string) error {
	if _, err := d.client.DeleteBlob(ctx, containerName, blobName, nil); err != nil {
		return mapError(err, "failed to delete blob")
	}
	return nil
}

// ListFiles walks the flat blob listing until the last page.
func (d *Driver) ListFiles(ctx context.Context, containerName string) ([]string, error) {
	pager := d.client.NewListBlobsFlatPager(containerName, nil)

	names := []string{}
	pages := 0
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapError(err, "failed to list blobs")
		}
		pages++
		if page.Segment == nil {
			continue
		}
		for _, item := range page.Segment.BlobItems {
			if item != nil && item.Name != nil {
				names = append(names, *item.Name)
			}
		}
	}

	d.log.DebugWith("listed container", logger.Fields{"container": containerName, "pages": pages, "blobs": len(names)})
	return names, nil
}

// DownloadFile streams the blob and drains the stream into one buffer
// bounded by the configured download limit. Partial reads are never
// returned.
func (d *Driver) DownloadFile(ctx context.Context, containerName, blobName string) ([]byte, error) {
	resp, err := d.client.DownloadStream(ctx, containerName, blobName, nil)
	if err != nil {
		return nil, mapError(err, "failed to download blob")
	}
	defer resp.Body.Close()

	data, err := filestore.ReadAll(resp.Body, d.maxDownload)
	if err != nil {
		if errs.KindOf(err) != errs.ErrKindUnknown {
			return nil, err
		}
		return nil, mapError(err, "failed to read blob stream")
	}
	return data, nil
}

// FileExists fetches the blob properties; BlobNotFound means absent.
func (d *Driver) FileExists(ctx context.Context, containerName, blobName string) (bool, error) {
	_, err := d.blob(containerName, blobName).GetProperties(ctx, nil)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, mapError(err, "failed to get blob properties")
	}
	return true, nil
}

// GenerateSignedURL signs a read-only service SAS locally with the account
// key from the connection string.
func (d *Driver) GenerateSignedURL(_ context.Context, containerName, blobName string, expiresIn time.Duration) (string, error) {
	if err := filestore.ValidateExpiry(expiresIn); err != nil {
		return "", err
	}

	expiry := d.now().UTC().Add(expiresIn)
	u, err := d.blob(containerName, blobName).GetSASURL(sas.BlobPermissions{Read: true}, expiry, nil)
	if err != nil {
		return "", mapError(err, "failed to generate sas url")
	}
	return u, nil
}

var _ filestore.Provider = (*Driver)(nil)
