// Package request defines immutable HTTP requests and helpers to send them.
//
// Use NewHTTPRequest to create a definition, each With* / And* method returns a modified copy.
// Requests are sent by the Sender interface, the client.Client is the default implementation
// based on the standard net/http package.
//
// Load sends a GET request to an URI and maps the response body to a result value.
// EncodeFormValue and ParseURI are helpers for building URLs.
//
// APIRequest[R Result] wraps one or more requests and maps them to the R type.
// Parallel, Sequential, WaitGroup and RunGroup combine multiple requests.
package request
