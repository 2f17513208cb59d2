// Package b2 provides a Backblaze B2 implementation of filestore.Provider
// over the B2 native API (v2).
//
// The container argument of every operation is a B2 bucket ID.
//
// Every operation first makes sure the Driver holds an account token
// (b2_authorize_account with the application key), then runs one or more
// dependent API calls with that token. Uploads are always two round trips:
// b2_get_upload_url, then a POST to the returned upload URL with the
// returned upload token.
//
// Usage:
//
//	d := b2.New(os.Getenv("B2_KEY_ID"), os.Getenv("B2_KEY"))
//	err := d.UploadFile(ctx, bucketID, "backups/db.gz", data)
package b2

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/koustreak/fileport/internal/errs"
	"github.com/koustreak/fileport/internal/filestore"
	"github.com/koustreak/fileport/internal/logger"
)

const (
	// DefaultAuthorizeURL is the public b2_authorize_account endpoint.
	DefaultAuthorizeURL = "https://api.backblazeb2.com/b2api/v2/b2_authorize_account"

	apiPath = "/b2api/v2/"

	// maxDownloadAuthorization is the longest validDurationInSeconds B2 accepts.
	maxDownloadAuthorization = 7 * 24 * time.Hour

	defaultListPageSize = 1000
)

// Driver is a Backblaze B2 implementation of filestore.Provider.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	keyID        string
	key          string
	authorizeURL string
	http         *http.Client
	maxDownload  int64
	listPageSize int
	log          *logger.Logger

	mu   sync.RWMutex
	sess session
	auth singleflight.Group
}

// Option configures a Driver.
type Option func(*Driver)

// WithAuthorizeURL overrides the b2_authorize_account endpoint.
func WithAuthorizeURL(u string) Option {
	return func(d *Driver) { d.authorizeURL = u }
}

// WithHTTPClient sets the HTTP client used for every B2 request.
// Timeouts and proxies are configured there.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Driver) { d.http = c }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *logger.Logger) Option {
	return func(d *Driver) { d.log = l }
}

// WithMaxDownloadBytes caps DownloadFile; see filestore.ReadAll.
func WithMaxDownloadBytes(n int64) Option {
	return func(d *Driver) { d.maxDownload = n }
}

// New returns an unauthenticated Driver for the given application key.
// No request is made until the first operation.
func New(keyID, key string, opts ...Option) *Driver {
	d := &Driver{
		keyID:        keyID,
		key:          key,
		authorizeURL: DefaultAuthorizeURL,
		http:         http.DefaultClient,
		maxDownload:  filestore.DefaultMaxDownloadBytes,
		listPageSize: defaultListPageSize,
		log:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// --- filestore.Provider implementation ---

// UploadFile gets an upload URL for the bucket, then POSTs content to it.
func (d *Driver) UploadFile(ctx context.Context, bucketID, fileName string, content []byte) error {
	s, err := d.session(ctx)
	if err != nil {
		return err
	}

	var target getUploadURLResponse
	if err := d.call(ctx, s, "b2_get_upload_url", getUploadURLRequest{BucketID: bucketID}, &target); err != nil {
		return err
	}

	sum := sha1.Sum(content)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.UploadURL, bytes.NewReader(content))
	if err != nil {
		return errs.Wrap(errs.ErrKindOperationFailed, "invalid b2 upload url", err)
	}
	req.ContentLength = int64(len(content))
	req.Header.Set("Authorization", target.AuthorizationToken)
	req.Header.Set("X-Bz-File-Name", encodeName(fileName))
	req.Header.Set("Content-Type", "b2/x-auto")
	req.Header.Set("X-Bz-Content-Sha1", hex.EncodeToString(sum[:]))

	if err := d.do(req, nil); err != nil {
		return mapError(err, "failed to upload file")
	}
	return nil
}

// DeleteFile deletes every stored version of fileName, so an older upload
// cannot resurface. A file with no versions is reported as not found.
func (d *Driver) DeleteFile(ctx context.Context, bucketID, fileName string) error {
	s, err := d.session(ctx)
	if err != nil {
		return err
	}

	versions, err := d.versions(ctx, s, bucketID, fileName)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		return errs.Newf(errs.ErrKindNotFound, "b2 file %q not found", fileName)
	}

	for _, v := range versions {
		err := d.call(ctx, s, "b2_delete_file_version", deleteFileVersionRequest{
			FileName: v.FileName,
			FileID:   v.FileID,
		}, nil)
		if err != nil {
			return err
		}
	}

	d.log.DebugWith("deleted file", logger.Fields{"bucket_id": bucketID, "versions": len(versions)})
	return nil
}

// ListFiles follows nextFileName until the bucket listing is exhausted.
func (d *Driver) ListFiles(ctx context.Context, bucketID string) ([]string, error) {
	s, err := d.session(ctx)
	if err != nil {
		return nil, err
	}

	names := []string{}
	start := ""
	for pages := 1; ; pages++ {
		var out listFileNamesResponse
		err := d.call(ctx, s, "b2_list_file_names", listFileNamesRequest{
			BucketID:      bucketID,
			StartFileName: start,
			MaxFileCount:  d.listPageSize,
		}, &out)
		if err != nil {
			return nil, err
		}

		for _, f := range out.Files {
			names = append(names, f.FileName)
		}

		if out.NextFileName == nil || *out.NextFileName == "" {
			d.log.DebugWith("listed bucket", logger.Fields{"bucket_id": bucketID, "pages": pages, "files": len(names)})
			return names, nil
		}
		start = *out.NextFileName
	}
}

// DownloadFile looks the file up by name and downloads it by file ID.
func (d *Driver) DownloadFile(ctx context.Context, bucketID, fileName string) ([]byte, error) {
	s, err := d.session(ctx)
	if err != nil {
		return nil, err
	}

	f, err := d.lookup(ctx, s, bucketID, fileName)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, errs.Newf(errs.ErrKindNotFound, "b2 file %q not found", fileName)
	}

	u := s.downloadURL + apiPath + "b2_download_file_by_id?" + url.Values{"fileId": {f.FileID}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindOperationFailed, "invalid b2 download url", err)
	}
	req.Header.Set("Authorization", s.token)

	res, err := d.http.Do(req)
	if err != nil {
		return nil, mapError(err, "failed to download file")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, mapError(decodeAPIError(res), "failed to download file")
	}

	data, err := filestore.ReadAll(res.Body, d.maxDownload)
	if err != nil {
		return nil, mapError(err, "failed to read file body")
	}
	return data, nil
}

// FileExists reports whether a file with exactly this name is in the bucket.
func (d *Driver) FileExists(ctx context.Context, bucketID, fileName string) (bool, error) {
	s, err := d.session(ctx)
	if err != nil {
		return false, err
	}

	f, err := d.lookup(ctx, s, bucketID, fileName)
	if err != nil {
		return false, err
	}
	return f != nil, nil
}

// GenerateSignedURL resolves the bucket name, obtains a download
// authorization scoped to fileName, and embeds it in a download URL.
// B2 caps the lifetime at seven days.
//
// B2 download authorizations are prefix grants: the token also opens any
// file whose name starts with fileName, e.g. "a.txt.bak" for "a.txt".
func (d *Driver) GenerateSignedURL(ctx context.Context, bucketID, fileName string, expiresIn time.Duration) (string, error) {
	if err := filestore.ValidateExpiry(expiresIn); err != nil {
		return "", err
	}
	if expiresIn > maxDownloadAuthorization {
		return "", errs.Newf(errs.ErrKindInvalidInput, "b2 download authorization cannot exceed %s", maxDownloadAuthorization)
	}

	s, err := d.session(ctx)
	if err != nil {
		return "", err
	}

	var buckets listBucketsResponse
	if err := d.call(ctx, s, "b2_list_buckets", listBucketsRequest{AccountID: s.accountID, BucketID: bucketID}, &buckets); err != nil {
		return "", err
	}
	if len(buckets.Buckets) == 0 {
		return "", errs.Newf(errs.ErrKindNotFound, "b2 bucket %q not found", bucketID)
	}

	var grant getDownloadAuthorizationResponse
	err = d.call(ctx, s, "b2_get_download_authorization", getDownloadAuthorizationRequest{
		BucketID:               bucketID,
		FileNamePrefix:         fileName,
		ValidDurationInSeconds: int64(expiresIn / time.Second),
	}, &grant)
	if err != nil {
		return "", err
	}

	return s.downloadURL + "/file/" + encodeName(buckets.Buckets[0].BucketName) + "/" + encodeName(fileName) +
		"?Authorization=" + url.QueryEscape(grant.AuthorizationToken), nil
}

// lookup finds the latest version of fileName. It returns nil, nil when no
// file has exactly that name; b2_list_file_names starts at the first name
// >= fileName, so the returned name must be compared.
func (d *Driver) lookup(ctx context.Context, s session, bucketID, fileName string) (*fileInfo, error) {
	var out listFileNamesResponse
	err := d.call(ctx, s, "b2_list_file_names", listFileNamesRequest{
		BucketID:      bucketID,
		StartFileName: fileName,
		MaxFileCount:  1,
	}, &out)
	if err != nil {
		return nil, err
	}

	if len(out.Files) == 0 || out.Files[0].FileName != fileName {
		return nil, nil
	}
	return &out.Files[0], nil
}

// versions returns every version of exactly fileName, newest first,
// following nextFileName/nextFileId until the listing moves past the name.
// Hide markers are versions too and are included.
func (d *Driver) versions(ctx context.Context, s session, bucketID, fileName string) ([]fileInfo, error) {
	var found []fileInfo
	req := listFileVersionsRequest{
		BucketID:      bucketID,
		StartFileName: fileName,
		MaxFileCount:  d.listPageSize,
	}
	for {
		var out listFileVersionsResponse
		if err := d.call(ctx, s, "b2_list_file_versions", req, &out); err != nil {
			return nil, err
		}

		for _, f := range out.Files {
			if f.FileName != fileName {
				return found, nil
			}
			found = append(found, f)
		}

		if out.NextFileName == nil || *out.NextFileName != fileName {
			return found, nil
		}
		req.StartFileName = *out.NextFileName
		req.StartFileID = ""
		if out.NextFileID != nil {
			req.StartFileID = *out.NextFileID
		}
	}
}

// encodeName percent-encodes a file name for X-Bz-File-Name and download
// URLs. B2 allows '/' and a small set of punctuation to stay literal.
func encodeName(name string) string {
	var b bytes.Buffer
	for i := 0; i < len(name); i++ {
		c := name[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteString(strconv.FormatUint(uint64(c)>>4, 16))
		b.WriteString(strconv.FormatUint(uint64(c)&0xF, 16))
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '.', '_', '-', '/', '~', '!', '$', '\'', '(', ')', '*', ';', '=', ':', '@':
		return true
	}
	return false
}

var _ filestore.Provider = (*Driver)(nil)
