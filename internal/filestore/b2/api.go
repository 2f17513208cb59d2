package b2

// Wire types for the B2 native API v2. Only the fields fileport reads or
// sends are declared.

type authorizeResponse struct {
	AccountID          string `json:"accountId"`
	AuthorizationToken string `json:"authorizationToken"`
	APIURL             string `json:"apiUrl"`
	DownloadURL        string `json:"downloadUrl"`
}

type getUploadURLRequest struct {
	BucketID string `json:"bucketId"`
}

type getUploadURLResponse struct {
	BucketID           string `json:"bucketId"`
	UploadURL          string `json:"uploadUrl"`
	AuthorizationToken string `json:"authorizationToken"`
}

type listFileNamesRequest struct {
	BucketID      string `json:"bucketId"`
	StartFileName string `json:"startFileName,omitempty"`
	MaxFileCount  int    `json:"maxFileCount,omitempty"`
}

type listFileNamesResponse struct {
	Files        []fileInfo `json:"files"`
	NextFileName *string    `json:"nextFileName"`
}

type fileInfo struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
	Action   string `json:"action"`
}

type listFileVersionsRequest struct {
	BucketID      string `json:"bucketId"`
	StartFileName string `json:"startFileName,omitempty"`
	StartFileID   string `json:"startFileId,omitempty"`
	MaxFileCount  int    `json:"maxFileCount,omitempty"`
}

type listFileVersionsResponse struct {
	Files        []fileInfo `json:"files"`
	NextFileName *string    `json:"nextFileName"`
	NextFileID   *string    `json:"nextFileId"`
}

type deleteFileVersionRequest struct {
	FileName string `json:"fileName"`
	FileID   string `json:"fileId"`
}

type listBucketsRequest struct {
	AccountID string `json:"accountId"`
	BucketID  string `json:"bucketId,omitempty"`
}

type listBucketsResponse struct {
	Buckets []bucketInfo `json:"buckets"`
}

type bucketInfo struct {
	BucketID   string `json:"bucketId"`
	BucketName string `json:"bucketName"`
}

type getDownloadAuthorizationRequest struct {
	BucketID               string `json:"bucketId"`
	FileNamePrefix         string `json:"fileNamePrefix"`
	ValidDurationInSeconds int64  `json:"validDurationInSeconds"`
}

type getDownloadAuthorizationResponse struct {
	BucketID           string `json:"bucketId"`
	FileNamePrefix     string `json:"fileNamePrefix"`
	AuthorizationToken string `json:"authorizationToken"`
}
