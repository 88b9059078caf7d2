package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/keboola/go-httpext/pkg/client/decode"
)

// HTTPError is returned for a response status code >= 400, if the error is not mapped by the request definition.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e HTTPError) Error() string {
	return fmt.Sprintf(`request %s "%s" failed: %d %s`, e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// errorWithRequest can be implemented by a mapped error to get the request.
type errorWithRequest interface {
	error
	SetRequest(request *http.Request)
}

// errorWithResponse can be implemented by a mapped error to get the response.
type errorWithResponse interface {
	error
	SetResponse(response *http.Response)
}

// mapResponse reads the body to the result or to the error definition, the body is always closed.
// An io.WriteCloser result is closed on every path.
// The processErr is returned if the response cannot be processed at all.
func mapResponse(res *http.Response, resultDef any, errDef error) (result any, err error, processErr error) {
	defer res.Body.Close()

	if res.StatusCode == http.StatusNoContent {
		return nil, nil, closeResult(resultDef)
	}

	body, err := decode.Decode(res.Body, res.Header.Get("Content-Encoding"))
	if err != nil {
		_ = closeResult(resultDef)
		return nil, nil, err
	}

	if res.StatusCode >= http.StatusBadRequest {
		// The error takes precedence over the close error
		_ = closeResult(resultDef)
		mapped, err := mapError(res, body, errDef)
		return nil, mapped, err
	}

	result, err = mapResult(res, body, resultDef)
	return result, nil, err
}

// mapError decodes the JSON error response, other responses are reported as HTTPError by the caller.
func mapError(res *http.Response, body io.Reader, errDef error) (error, error) {
	if errDef == nil || !isJSONContentType(res.Header.Get("Content-Type")) {
		return nil, nil
	}
	if err := json.NewDecoder(body).Decode(errDef); err != nil {
		return nil, fmt.Errorf(`cannot decode JSON error: %w`, err)
	}
	if v, ok := errDef.(errorWithRequest); ok {
		v.SetRequest(res.Request)
	}
	if v, ok := errDef.(errorWithResponse); ok {
		v.SetResponse(res)
	}
	return errDef, nil
}

func mapResult(res *http.Response, body io.Reader, resultDef any) (any, error) {
	switch v := resultDef.(type) {
	case nil:
		return nil, nil
	case *[]byte:
		content, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf(`cannot read response body: %w`, err)
		}
		*v = content
		return v, nil
	case *string:
		var b strings.Builder
		if _, err := io.Copy(&b, body); err != nil {
			return nil, fmt.Errorf(`cannot read response body: %w`, err)
		}
		*v = b.String()
		return v, nil
	case io.Writer:
		_, copyErr := io.Copy(v, body)
		closeErr := closeResult(v)
		if copyErr != nil {
			return nil, fmt.Errorf(`cannot read response body: %w`, copyErr)
		}
		if closeErr != nil {
			return nil, closeErr
		}
		return v, nil
	}

	if !isJSONContentType(res.Header.Get("Content-Type")) {
		return nil, fmt.Errorf(`cannot map response with content type "%s" to "%T"`, res.Header.Get("Content-Type"), resultDef)
	}
	if err := json.NewDecoder(body).Decode(resultDef); err != nil {
		return nil, fmt.Errorf(`cannot decode JSON result: %w`, err)
	}
	return resultDef, nil
}

// closeResult closes the result if it is an io.WriteCloser.
func closeResult(resultDef any) error {
	if closer, ok := resultDef.(io.WriteCloser); ok {
		if err := closer.Close(); err != nil {
			return fmt.Errorf(`cannot close result writer: %w`, err)
		}
	}
	return nil
}

// sendError converts timeouts and cancellation to a readable error with the elapsed time.
func sendError(req *http.Request, startedAt time.Time, clientTimeout time.Duration, err error) error {
	var netErr net.Error
	deadline, hasDeadline := req.Context().Deadline()
	switch {
	case hasDeadline && errors.Is(err, context.DeadlineExceeded):
		err = fmt.Errorf("timeout after %s", deadline.Sub(startedAt))
	case errors.Is(err, context.Canceled):
		err = fmt.Errorf("canceled after %s: %w", time.Since(startedAt), context.Canceled)
	case errors.As(err, &netErr) && netErr.Timeout() && strings.Contains(err.Error(), "Client.Timeout exceeded"):
		err = fmt.Errorf("timeout after %s", clientTimeout)
	case errors.As(err, &netErr) && netErr.Timeout():
		err = fmt.Errorf("timeout after %s", time.Since(startedAt))
	default:
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return fmt.Errorf(`request %s "%s" failed: %w`, strings.ToUpper(urlErr.Op), urlErr.URL, urlErr.Err)
		}
		return err
	}
	return fmt.Errorf(`request %s "%s" failed: %w`, req.Method, req.URL.String(), err)
}
