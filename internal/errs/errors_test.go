package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	cause := errors.New("connection reset")

	assert.Equal(t, "[not_found] object missing", New(ErrKindNotFound, "object missing").Error())
	assert.Equal(t,
		"[connection_failed] upload failed: connection reset",
		Wrap(ErrKindConnectionFailed, "upload failed", cause).Error(),
	)
	assert.Equal(t, "[invalid_input] limit 5 exceeded", Newf(ErrKindInvalidInput, "limit %d exceeded", 5).Error())
}

func TestError_UnwrapKeepsCause(t *testing.T) {
	cause := errors.New("native sdk error")
	err := fmt.Errorf("outer: %w", Wrap(ErrKindOperationFailed, "delete failed", cause))

	assert.True(t, errors.Is(err, cause))
	assert.True(t, IsOperationFailed(err))
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		kind ErrKind
		pred func(error) bool
	}{
		{ErrKindNotFound, IsNotFound},
		{ErrKindTimeout, IsTimeout},
		{ErrKindConnectionFailed, IsConnectionFailed},
		{ErrKindOperationFailed, IsOperationFailed},
		{ErrKindInvalidInput, IsInvalidInput},
		{ErrKindPermissionDenied, IsPermissionDenied},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.True(t, tt.pred(New(tt.kind, "x")))
			assert.False(t, tt.pred(errors.New("plain")))
			assert.False(t, tt.pred(nil))
		})
	}
}

func TestKindOf_Unknown(t *testing.T) {
	assert.Equal(t, ErrKindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, "unknown", ErrKind(99).String())
}
