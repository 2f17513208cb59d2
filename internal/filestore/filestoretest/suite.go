// Package filestoretest is a conformance suite for filestore.Provider
// implementations. Backend packages run it against their test doubles.
package filestoretest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/fileport/internal/errs"
	"github.com/koustreak/fileport/internal/filestore"
)

// Factory returns a fresh, empty provider and the container to use with it.
type Factory func(t *testing.T) (filestore.Provider, string)

// Run executes the contract tests against providers built by newProvider.
func Run(t *testing.T, newProvider Factory) {
	t.Run("UploadThenDownload", func(t *testing.T) {
		p, container := newProvider(t)
		ctx := context.Background()
		content := []byte("hello\x00world\xff")

		require.NoError(t, p.UploadFile(ctx, container, "docs/a.txt", content))

		got, err := p.DownloadFile(ctx, container, "docs/a.txt")
		require.NoError(t, err)
		assert.Equal(t, content, got)
	})

	t.Run("UploadReplaces", func(t *testing.T) {
		p, container := newProvider(t)
		ctx := context.Background()

		require.NoError(t, p.UploadFile(ctx, container, "a.txt", []byte("first")))
		require.NoError(t, p.UploadFile(ctx, container, "a.txt", []byte("second")))

		got, err := p.DownloadFile(ctx, container, "a.txt")
		require.NoError(t, err)
		assert.Equal(t, "second", string(got))
	})

	t.Run("EmptyPayload", func(t *testing.T) {
		p, container := newProvider(t)
		ctx := context.Background()

		require.NoError(t, p.UploadFile(ctx, container, "empty", []byte{}))

		got, err := p.DownloadFile(ctx, container, "empty")
		require.NoError(t, err)
		assert.Len(t, got, 0)
	})

	t.Run("ExistsUnknownKey", func(t *testing.T) {
		p, container := newProvider(t)

		ok, err := p.FileExists(context.Background(), container, "never-uploaded")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ExistsAfterUploadAndDelete", func(t *testing.T) {
		p, container := newProvider(t)
		ctx := context.Background()

		require.NoError(t, p.UploadFile(ctx, container, "b.bin", []byte{1, 2, 3}))

		ok, err := p.FileExists(ctx, container, "b.bin")
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, p.DeleteFile(ctx, container, "b.bin"))

		ok, err = p.FileExists(ctx, container, "b.bin")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("OverwriteThenDelete", func(t *testing.T) {
		p, container := newProvider(t)
		ctx := context.Background()

		require.NoError(t, p.UploadFile(ctx, container, "c.txt", []byte("v1")))
		require.NoError(t, p.UploadFile(ctx, container, "c.txt", []byte("v2")))
		require.NoError(t, p.DeleteFile(ctx, container, "c.txt"))

		ok, err := p.FileExists(ctx, container, "c.txt")
		require.NoError(t, err)
		assert.False(t, ok, "no earlier upload may remain visible after delete")

		_, err = p.DownloadFile(ctx, container, "c.txt")
		require.Error(t, err)
		assert.True(t, errs.IsNotFound(err), "expected not_found, got %v", err)
	})

	t.Run("ExistsIsExactMatch", func(t *testing.T) {
		p, container := newProvider(t)
		ctx := context.Background()

		require.NoError(t, p.UploadFile(ctx, container, "report.csv.bak", []byte("x")))

		ok, err := p.FileExists(ctx, container, "report.csv")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ListReturnsUploadedKeys", func(t *testing.T) {
		p, container := newProvider(t)
		ctx := context.Background()
		keys := []string{"a.txt", "dir/b.txt", "dir/sub/c.txt"}

		for _, k := range keys {
			require.NoError(t, p.UploadFile(ctx, container, k, []byte(k)))
		}

		got, err := p.ListFiles(ctx, container)
		require.NoError(t, err)
		assert.ElementsMatch(t, keys, got)
	})

	t.Run("DownloadMissing", func(t *testing.T) {
		p, container := newProvider(t)

		_, err := p.DownloadFile(context.Background(), container, "missing.txt")
		require.Error(t, err)
		assert.True(t, errs.IsNotFound(err), "expected not_found, got %v", err)
	})
}
