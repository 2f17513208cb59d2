package filestore

import (
	"io"
	"time"

	"github.com/koustreak/fileport/internal/errs"
)

// DefaultMaxDownloadBytes caps how much of one object a download buffers.
const DefaultMaxDownloadBytes int64 = 256 << 20

// ReadAll drains r into a single buffer. Downloads are whole-object and
// in-memory, so an object larger than limit is an error instead of a
// partial result. A limit <= 0 means DefaultMaxDownloadBytes.
func ReadAll(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxDownloadBytes
	}

	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "object exceeds the in-memory download limit of %d bytes", limit)
	}
	return data, nil
}

// ValidateExpiry rejects signed URL lifetimes shorter than one second.
func ValidateExpiry(d time.Duration) error {
	if d < time.Second {
		return errs.Newf(errs.ErrKindInvalidInput, "signed url expiry must be at least 1s, got %s", d)
	}
	return nil
}
