package request

import "net/http"

// HTTPResponse is the request definition together with the received response.
type HTTPResponse interface {
	httpRequestReadOnly
	ResponseHeader() http.Header
	// StatusCode is 0 if no response has been received, for example on a network error.
	StatusCode() int
	// RawRequest is the request of the last attempt, after redirects and retries.
	RawRequest() *http.Request
	RawResponse() *http.Response
	// IsSuccess reports a 2xx status code.
	IsSuccess() bool
	// IsError reports a status code >= 400.
	IsError() bool
	// Error is the mapped error response or a transport error.
	Error() error
	// Result is the value the body has been mapped to, if any.
	Result() any
}

type httpResponse struct {
	httpRequest
	rawResponse *http.Response
	result      any
	err         error
}

func (r httpResponse) ResponseHeader() http.Header {
	if res := r.rawResponse; res != nil {
		return res.Header
	}
	return nil
}

func (r httpResponse) StatusCode() int {
	if res := r.rawResponse; res != nil {
		return res.StatusCode
	}
	return 0
}

func (r httpResponse) RawRequest() *http.Request {
	if res := r.rawResponse; res != nil {
		return res.Request
	}
	return nil
}

func (r httpResponse) RawResponse() *http.Response { return r.rawResponse }

func (r httpResponse) IsSuccess() bool { return r.StatusCode()/100 == 2 }

func (r httpResponse) IsError() bool { return r.StatusCode() >= http.StatusBadRequest }

func (r httpResponse) Result() any { return r.result }

func (r httpResponse) Error() error { return r.err }
