package b2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/koustreak/fileport/internal/errs"
)

// APIError is the JSON body B2 returns with every non-2xx response.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("b2: %d %s: %s", e.Status, e.Code, e.Message)
}

// decodeAPIError reads the error body of res. Bodies that are not B2 JSON
// (proxies, load balancers) are kept verbatim as the message.
func decodeAPIError(res *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))

	apiErr := &APIError{}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Code == "" {
		apiErr = &APIError{Code: "unknown", Message: strings.TrimSpace(string(body))}
	}
	if apiErr.Status == 0 {
		apiErr.Status = res.StatusCode
	}
	return apiErr
}

// mapError translates a B2 or transport error into a *errs.Error, keeping
// the original as the cause.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	// Already classified further down the stack
	var classified *errs.Error
	if errors.As(err, &classified) {
		return errs.Wrap(classified.Kind, msg, err)
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == http.StatusNotFound, apiErr.Code == "not_found", apiErr.Code == "file_not_present":
			return errs.Wrap(errs.ErrKindNotFound, msg, err)
		case apiErr.Status == http.StatusUnauthorized, apiErr.Status == http.StatusForbidden:
			// bad_auth_token, expired_auth_token, unauthorized, cap_exceeded
			return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
		case apiErr.Status == http.StatusBadRequest:
			return errs.Wrap(errs.ErrKindInvalidInput, msg, err)
		case apiErr.Status == http.StatusRequestTimeout,
			apiErr.Status == http.StatusTooManyRequests,
			apiErr.Status == http.StatusServiceUnavailable:
			return errs.Wrap(errs.ErrKindTimeout, msg, err)
		}
		return errs.Wrap(errs.ErrKindOperationFailed, msg, err)
	}

	// No B2 response at all: connection / I/O failure
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}
