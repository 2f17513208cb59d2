package azure

import (
	"context"
	"errors"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/koustreak/fileport/internal/errs"
)

// mapError translates an Azure SDK error into a *errs.Error, keeping the
// SDK error as the cause.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, bloberror.MissingSharedKeyCredential) {
		return errs.Wrap(errs.ErrKindInvalidInput, msg, err)
	}

	if isNotFound(err) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	if bloberror.HasCode(err,
		bloberror.AuthenticationFailed,
		bloberror.AuthorizationFailure,
		bloberror.AuthorizationPermissionMismatch,
		bloberror.InsufficientAccountPermissions,
	) {
		return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
	}

	if bloberror.HasCode(err, bloberror.ServerBusy, bloberror.OperationTimedOut) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
		case http.StatusBadRequest:
			return errs.Wrap(errs.ErrKindInvalidInput, msg, err)
		case http.StatusServiceUnavailable, http.StatusTooManyRequests:
			return errs.Wrap(errs.ErrKindTimeout, msg, err)
		}
		return errs.Wrap(errs.ErrKindOperationFailed, msg, err)
	}

	// No service response: connection / I/O failure
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// isNotFound reports whether err means the blob or container is missing.
// HEAD responses carry the code only in x-ms-error-code, so the status code
// is checked as well.
func isNotFound(err error) bool {
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound) {
		return true
	}
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}
