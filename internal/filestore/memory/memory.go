// Package memory provides a map-backed filestore.Provider.
//
// It keeps everything in process memory and is meant for tests and local
// development. Deleting a missing object is a no-op, as on S3.
package memory

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/koustreak/fileport/internal/errs"
	"github.com/koustreak/fileport/internal/filestore"
)

// Store is an in-memory filestore.Provider. It is safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	containers map[string]map[string][]byte
	now        func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		containers: make(map[string]map[string][]byte),
		now:        time.Now,
	}
}

func (s *Store) UploadFile(_ context.Context, container, key string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	objects, ok := s.containers[container]
	if !ok {
		objects = make(map[string][]byte)
		s.containers[container] = objects
	}
	objects[key] = append([]byte(nil), content...)
	return nil
}

func (s *Store) DeleteFile(_ context.Context, container, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.containers[container], key)
	return nil
}

func (s *Store) ListFiles(_ context.Context, container string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.containers[container]))
	for k := range s.containers[container] {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *Store) DownloadFile(_ context.Context, container, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.containers[container][key]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, fmt.Sprintf("object %s/%s not found", container, key))
	}
	return append([]byte(nil), data...), nil
}

func (s *Store) FileExists(_ context.Context, container, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.containers[container][key]
	return ok, nil
}

// GenerateSignedURL returns a memory:// URL carrying the expiry as a unix
// timestamp. It is only meaningful to code that understands this scheme.
func (s *Store) GenerateSignedURL(_ context.Context, container, key string, expiresIn time.Duration) (string, error) {
	if err := filestore.ValidateExpiry(expiresIn); err != nil {
		return "", err
	}

	u := url.URL{
		Scheme:   "memory",
		Host:     container,
		Path:     "/" + key,
		RawQuery: url.Values{"expires": {fmt.Sprint(s.now().Add(expiresIn).Unix())}}.Encode(),
	}
	return u.String(), nil
}

var _ filestore.Provider = (*Store)(nil)
