package azure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/fileport/internal/errs"
	"github.com/koustreak/fileport/internal/filestore"
	"github.com/koustreak/fileport/internal/filestore/filestoretest"
)

// ---------------------------------------------------------------------------
// fake azblob client
// ---------------------------------------------------------------------------

func responseError(status int, code bloberror.Code) error {
	return &azcore.ResponseError{
		ErrorCode:  string(code),
		StatusCode: status,
		RawResponse: &http.Response{
			StatusCode: status,
			Status:     http.StatusText(status),
			Header:     http.Header{},
			Body:       http.NoBody,
			Request:    httptest.NewRequest(http.MethodGet, "https://acct.blob.core.windows.net/c/b", nil),
		},
	}
}

// fakeBlobs is an in-memory account. pageSize forces the flat listing
// through several pages.
type fakeBlobs struct {
	mu         sync.Mutex
	containers map[string]map[string][]byte
	pageSize   int
	fetches    int

	propsErr error
	sasErr   error
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{containers: make(map[string]map[string][]byte), pageSize: 2}
}

func (f *fakeBlobs) UploadBuffer(_ context.Context, c, b string, buf []byte, _ *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	objs, ok := f.containers[c]
	if !ok {
		objs = make(map[string][]byte)
		f.containers[c] = objs
	}
	objs[b] = append([]byte(nil), buf...)
	return azblob.UploadBufferResponse{}, nil
}

func (f *fakeBlobs) DeleteBlob(_ context.Context, c, b string, _ *azblob.DeleteBlobOptions) (azblob.DeleteBlobResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.containers[c][b]; !ok {
		return azblob.DeleteBlobResponse{}, responseError(http.StatusNotFound, bloberror.BlobNotFound)
	}
	delete(f.containers[c], b)
	return azblob.DeleteBlobResponse{}, nil
}

func (f *fakeBlobs) NewListBlobsFlatPager(c string, _ *azblob.ListBlobsFlatOptions) *runtime.Pager[azblob.ListBlobsFlatResponse] {
	return runtime.NewPager(runtime.PagingHandler[azblob.ListBlobsFlatResponse]{
		More: func(page azblob.ListBlobsFlatResponse) bool {
			return page.NextMarker != nil && *page.NextMarker != ""
		},
		Fetcher: func(_ context.Context, page *azblob.ListBlobsFlatResponse) (azblob.ListBlobsFlatResponse, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.fetches++

			names := make([]string, 0, len(f.containers[c]))
			for n := range f.containers[c] {
				names = append(names, n)
			}
			sort.Strings(names)

			start := 0
			if page != nil && page.NextMarker != nil {
				start, _ = strconv.Atoi(*page.NextMarker)
			}
			end := min(start+f.pageSize, len(names))

			items := make([]*container.BlobItem, 0, end-start)
			for _, n := range names[start:end] {
				items = append(items, &container.BlobItem{Name: to.Ptr(n)})
			}

			var resp azblob.ListBlobsFlatResponse
			resp.Segment = &container.BlobFlatListSegment{BlobItems: items}
			if end < len(names) {
				resp.NextMarker = to.Ptr(strconv.Itoa(end))
			}
			return resp, nil
		},
	})
}

func (f *fakeBlobs) DownloadStream(_ context.Context, c, b string, _ *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.containers[c][b]
	if !ok {
		return azblob.DownloadStreamResponse{}, responseError(http.StatusNotFound, bloberror.BlobNotFound)
	}
	var resp azblob.DownloadStreamResponse
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return resp, nil
}

// blobFor implements BlobFactory over the same in-memory account.
func (f *fakeBlobs) blobFor(c, b string) BlobClient {
	return &fakeBlob{parent: f, container: c, name: b}
}

type fakeBlob struct {
	parent    *fakeBlobs
	container string
	name      string
}

func (b *fakeBlob) GetProperties(_ context.Context, _ *blob.GetPropertiesOptions) (blob.GetPropertiesResponse, error) {
	if b.parent.propsErr != nil {
		return blob.GetPropertiesResponse{}, b.parent.propsErr
	}
	b.parent.mu.Lock()
	defer b.parent.mu.Unlock()
	if _, ok := b.parent.containers[b.container][b.name]; !ok {
		// HEAD responses carry no body, only the status and x-ms-error-code
		return blob.GetPropertiesResponse{}, responseError(http.StatusNotFound, "")
	}
	return blob.GetPropertiesResponse{}, nil
}

func (b *fakeBlob) GetSASURL(perms sas.BlobPermissions, expiry time.Time, _ *blob.GetSASURLOptions) (string, error) {
	if b.parent.sasErr != nil {
		return "", b.parent.sasErr
	}
	return fmt.Sprintf("https://acct.blob.core.windows.net/%s/%s?se=%s&sp=%s&sig=x",
		b.container, b.name, expiry.Format(time.RFC3339), perms.String()), nil
}

func newTestDriver(t *testing.T, opts ...Option) (*Driver, *fakeBlobs) {
	t.Helper()
	fake := newFakeBlobs()
	return NewWithClient(fake, fake.blobFor, opts...), fake
}

// ---------------------------------------------------------------------------
// Driver tests
// ---------------------------------------------------------------------------

func TestDriver_Contract(t *testing.T) {
	filestoretest.Run(t, func(t *testing.T) (filestore.Provider, string) {
		d, _ := newTestDriver(t)
		return d, "container"
	})
}

func TestDriver_ListExhaustsPages(t *testing.T) {
	d, fake := newTestDriver(t)
	ctx := context.Background()

	want := []string{"1", "2", "3", "4", "5"}
	for _, n := range want {
		require.NoError(t, d.UploadFile(ctx, "c", n, []byte(n)))
	}

	got, err := d.ListFiles(ctx, "c")
	require.NoError(t, err)
	assert.ElementsMatch(t, want, got)
	assert.Equal(t, 3, fake.fetches)
}

func TestDriver_DeleteMissingIsNotFound(t *testing.T) {
	d, _ := newTestDriver(t)

	err := d.DeleteFile(context.Background(), "c", "nope")
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}

func TestDriver_ExistsPropagatesAuthFailure(t *testing.T) {
	d, fake := newTestDriver(t)
	fake.propsErr = responseError(http.StatusForbidden, bloberror.AuthenticationFailed)

	ok, err := d.FileExists(context.Background(), "c", "b")
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, errs.IsPermissionDenied(err))
}

func TestDriver_DownloadLimit(t *testing.T) {
	d, _ := newTestDriver(t, WithMaxDownloadBytes(3))
	ctx := context.Background()

	require.NoError(t, d.UploadFile(ctx, "c", "b", []byte("four")))

	_, err := d.DownloadFile(ctx, "c", "b")
	assert.True(t, errs.IsInvalidInput(err))
}

func TestDriver_GenerateSignedURL(t *testing.T) {
	d, _ := newTestDriver(t)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return fixed }

	u, err := d.GenerateSignedURL(context.Background(), "c", "dir/b.txt", 30*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, u, "/c/dir/b.txt?")
	assert.Contains(t, u, "se=2024-03-01T12:30:00Z")
	assert.Contains(t, u, "sp=r")
}

func TestDriver_GenerateSignedURLWithoutAccountKey(t *testing.T) {
	d, fake := newTestDriver(t)
	fake.sasErr = bloberror.MissingSharedKeyCredential

	_, err := d.GenerateSignedURL(context.Background(), "c", "b", time.Minute)
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
	assert.ErrorIs(t, err, bloberror.MissingSharedKeyCredential)
}

func TestNew_BadConnectionString(t *testing.T) {
	_, err := New("not a connection string")
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestNew_AccountKeyConnectionString(t *testing.T) {
	const conn = "DefaultEndpointsProtocol=https;AccountName=acct;" +
		"AccountKey=dGVzdGtleXRlc3RrZXl0ZXN0a2V5dGVzdGtleQ==;EndpointSuffix=core.windows.net"

	d, err := New(conn)
	require.NoError(t, err)

	u, err := d.GenerateSignedURL(context.Background(), "c", "b.txt", time.Hour)
	require.NoError(t, err)
	assert.Contains(t, u, "https://acct.blob.core.windows.net/c/b.txt?")
	assert.Contains(t, u, "sig=")
	assert.Contains(t, u, "sp=r")
}

// ---------------------------------------------------------------------------
// error mapping
// ---------------------------------------------------------------------------

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.ErrKind
	}{
		{"blob not found", responseError(404, bloberror.BlobNotFound), errs.ErrKindNotFound},
		{"container not found", responseError(404, bloberror.ContainerNotFound), errs.ErrKindNotFound},
		{"bare 404", responseError(404, ""), errs.ErrKindNotFound},
		{"auth failed", responseError(403, bloberror.AuthenticationFailed), errs.ErrKindPermissionDenied},
		{"bare 401", responseError(401, ""), errs.ErrKindPermissionDenied},
		{"server busy", responseError(503, bloberror.ServerBusy), errs.ErrKindTimeout},
		{"bad request", responseError(400, bloberror.InvalidHeaderValue), errs.ErrKindInvalidInput},
		{"internal", responseError(500, bloberror.InternalError), errs.ErrKindOperationFailed},
		{"missing key", bloberror.MissingSharedKeyCredential, errs.ErrKindInvalidInput},
		{"canceled", context.Canceled, errs.ErrKindTimeout},
		{"plain", errors.New("connection reset"), errs.ErrKindConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "op")
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Kind)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}
