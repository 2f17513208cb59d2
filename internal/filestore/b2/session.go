package b2

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/koustreak/fileport/internal/errs"
	"github.com/koustreak/fileport/internal/logger"
)

// session is the account authorization obtained from b2_authorize_account.
// The zero value is the unauthenticated state.
type session struct {
	token       string
	apiURL      string
	downloadURL string
	accountID   string
}

func (s session) authenticated() bool {
	return s.token != ""
}

// session returns the current authorization, performing
// b2_authorize_account first if there is none yet.
//
// Once a token is stored it is reused for the lifetime of the Driver: there
// is no expiry tracking and no refresh, so a token the server has expired
// shows up as a permission error from the next call. A failed authorize
// leaves the Driver unauthenticated, and the next call tries again.
//
// Concurrent first calls share a single authorize exchange. The exchange is
// detached from the cancellation of whichever caller started it; each caller
// stops waiting when its own ctx is done, and the HTTP client's timeout
// bounds the exchange itself.
func (d *Driver) session(ctx context.Context) (session, error) {
	if s := d.current(); s.authenticated() {
		return s, nil
	}

	if err := ctx.Err(); err != nil {
		return session{}, mapError(err, "b2 authorization not attempted")
	}

	authCtx := context.WithoutCancel(ctx)
	ch := d.auth.DoChan("authorize", func() (any, error) {
		if s := d.current(); s.authenticated() {
			return s, nil
		}

		s, err := d.authorize(authCtx)
		if err != nil {
			return session{}, err
		}

		d.mu.Lock()
		d.sess = s
		d.mu.Unlock()

		d.log.DebugWith("b2 session established", logger.Fields{
			"account_id": s.accountID,
			"api_url":    s.apiURL,
		})
		return s, nil
	})

	select {
	case <-ctx.Done():
		return session{}, mapError(ctx.Err(), "gave up waiting for b2 authorization")
	case res := <-ch:
		if res.Err != nil {
			return session{}, res.Err
		}
		return res.Val.(session), nil
	}
}

func (d *Driver) current() session {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sess
}

// authorize exchanges the application key for an account token.
func (d *Driver) authorize(ctx context.Context) (session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.authorizeURL, nil)
	if err != nil {
		return session{}, errs.Wrap(errs.ErrKindInvalidInput, "invalid b2 authorize url", err)
	}
	req.SetBasicAuth(d.keyID, d.key)

	var out authorizeResponse
	if err := d.do(req, &out); err != nil {
		return session{}, mapError(err, "failed to authorize b2 account")
	}
	if out.AuthorizationToken == "" || out.APIURL == "" {
		return session{}, errs.New(errs.ErrKindOperationFailed, "b2 authorize response is missing token or api url")
	}

	return session{
		token:       out.AuthorizationToken,
		apiURL:      out.APIURL,
		downloadURL: out.DownloadURL,
		accountID:   out.AccountID,
	}, nil
}

// call POSTs a JSON request to a B2 API operation using the account token.
// out may be nil when the response body is not needed.
func (d *Driver) call(ctx context.Context, s session, op string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "failed to encode "+op+" request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+apiPath+op, bytes.NewReader(body))
	if err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "failed to build "+op+" request", err)
	}
	req.Header.Set("Authorization", s.token)
	req.Header.Set("Content-Type", "application/json")

	if err := d.do(req, out); err != nil {
		return mapError(err, op+" failed")
	}
	return nil
}

// do sends req and decodes a JSON response into out. Non-2xx responses
// become *APIError.
func (d *Driver) do(req *http.Request, out any) error {
	res, err := d.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return decodeAPIError(res)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return errs.Wrap(errs.ErrKindOperationFailed, "invalid b2 response body", err)
	}
	return nil
}
