package filestore

import (
	"context"
	"io"
	"time"
)

// Service is the stable type calling code depends on. It holds exactly one
// Provider, fixed at construction, and forwards every call to it unchanged:
// no retries, no argument rewriting, no caching.
type Service struct {
	provider Provider
}

// NewService returns a Service backed by p.
func NewService(p Provider) *Service {
	return &Service{provider: p}
}

// Provider returns the wrapped backend.
func (s *Service) Provider() Provider {
	return s.provider
}

func (s *Service) UploadFile(ctx context.Context, container, key string, content []byte) error {
	return s.provider.UploadFile(ctx, container, key, content)
}

func (s *Service) DeleteFile(ctx context.Context, container, key string) error {
	return s.provider.DeleteFile(ctx, container, key)
}

func (s *Service) ListFiles(ctx context.Context, container string) ([]string, error) {
	return s.provider.ListFiles(ctx, container)
}

func (s *Service) DownloadFile(ctx context.Context, container, key string) ([]byte, error) {
	return s.provider.DownloadFile(ctx, container, key)
}

func (s *Service) FileExists(ctx context.Context, container, key string) (bool, error) {
	return s.provider.FileExists(ctx, container, key)
}

func (s *Service) GenerateSignedURL(ctx context.Context, container, key string, expiresIn time.Duration) (string, error) {
	return s.provider.GenerateSignedURL(ctx, container, key, expiresIn)
}

// Close releases the provider's resources when it holds any.
func (s *Service) Close() error {
	if c, ok := s.provider.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

var _ Provider = (*Service)(nil)
