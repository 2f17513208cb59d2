package filestore

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/fileport/internal/errs"
)

func TestReadAll(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		limit   int64
		wantErr bool
	}{
		{name: "under limit", input: "hello", limit: 10},
		{name: "exactly limit", input: "hello", limit: 5},
		{name: "over limit", input: "hello!", limit: 5, wantErr: true},
		{name: "default limit", input: strings.Repeat("x", 1024), limit: 0},
		{name: "empty", input: "", limit: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadAll(strings.NewReader(tt.input), tt.limit)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errs.IsInvalidInput(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input, string(got))
		})
	}
}

func TestReadAll_ReaderError(t *testing.T) {
	boom := errors.New("stream reset")
	_, err := ReadAll(iotest.ErrReader(boom), 10)
	assert.ErrorIs(t, err, boom)
}

func TestReadAll_ChunkedReader(t *testing.T) {
	data := bytes.Repeat([]byte("abc"), 1000)
	got, err := ReadAll(iotest.OneByteReader(bytes.NewReader(data)), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestValidateExpiry(t *testing.T) {
	assert.NoError(t, ValidateExpiry(time.Second))
	assert.NoError(t, ValidateExpiry(7*24*time.Hour))
	assert.True(t, errs.IsInvalidInput(ValidateExpiry(0)))
	assert.True(t, errs.IsInvalidInput(ValidateExpiry(500*time.Millisecond)))
	assert.True(t, errs.IsInvalidInput(ValidateExpiry(-time.Minute)))
}
