// Package filestore defines the vendor-neutral contract for object storage
// backends and the Service facade callers depend on.
//
// Every backend (S3, Azure Blob, Backblaze B2, MinIO, in-memory) implements
// Provider. Callers depend only on this package; the concrete backend is
// chosen by configuration in the backend package.
//
// Usage:
//
//	cfg, err := filestore.LoadFile("fileport.yaml")
//	if err != nil { ... }
//	svc, err := backend.Open(ctx, cfg)
//	if err != nil { ... }
//	defer svc.Close()
//
//	err = svc.UploadFile(ctx, "reports", "2024/q1.pdf", data)
package filestore

import (
	"context"
	"time"
)

// Provider is the capability set every storage backend implements.
//
// Containers and keys are opaque strings; nothing is validated locally and
// malformed names surface as backend errors. Payloads are whole objects held
// in memory: there is no streaming upload or ranged download.
//
// Errors are *errs.Error values that keep the native backend error as their
// cause. Each call maps to one remote request or a small fixed sequence of
// them; nothing is retried here.
type Provider interface {
	// UploadFile writes content at key, replacing any existing object.
	UploadFile(ctx context.Context, container, key string, content []byte) error

	// DeleteFile removes the object at key. Whether a missing object is an
	// error is backend-defined and documented on each implementation.
	DeleteFile(ctx context.Context, container, key string) error

	// ListFiles returns every key in container. Implementations page through
	// the backend until the listing is exhausted. Order is unspecified.
	ListFiles(ctx context.Context, container string) ([]string, error)

	// DownloadFile returns the full content of the object at key.
	// It fails with a not-found error when the object does not exist.
	DownloadFile(ctx context.Context, container, key string) ([]byte, error)

	// FileExists reports whether an object exists at key. A missing object
	// yields (false, nil); any other failure is returned as an error.
	FileExists(ctx context.Context, container, key string) (bool, error)

	// GenerateSignedURL returns a URL that grants read access to key for
	// expiresIn from now without further credentials. It does not check
	// that the object exists.
	GenerateSignedURL(ctx context.Context, container, key string, expiresIn time.Duration) (string, error)
}
