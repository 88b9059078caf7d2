package request

import (
	"context"
	"net/http"
)

// Sender sends request definitions, client.Client is the default implementation on top of net/http.
type Sender interface {
	// Send returns the raw response and the mapped result.
	// The result is the value of HTTPRequest.ResultDef(), filled from the response body.
	Send(ctx context.Context, request HTTPRequest) (rawResponse *http.Response, result any, err error)
}

// Sendable is anything that can be sent: HTTPRequest, APIRequest or a group of them.
type Sendable interface {
	SendOrErr(ctx context.Context) error
}

// ReqDefinitionError is a Sendable which fails with the definition error when it is sent.
// A function building a request can then return a Sendable in all cases and leave the error handling to the caller.
type ReqDefinitionError struct {
	error
}

func NewReqDefinitionError(err error) Sendable {
	return ReqDefinitionError{error: err}
}

func (v ReqDefinitionError) SendOrErr(context.Context) error {
	return v
}

func (v ReqDefinitionError) Unwrap() error {
	return v.error
}
