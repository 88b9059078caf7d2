package client

import (
	"os"

	"github.com/jarcoal/httpmock"

	"github.com/keboola/go-httpext/pkg/client/trace"
)

// TestVerboseEnv enables the DumpTracer of clients created by NewTestClient, if it is "true".
const TestVerboseEnv = "HTTPEXT_TEST_VERBOSE"

// NewTestClient returns a Client with short retry delays.
// Requests and responses are dumped to stdout if the TestVerboseEnv variable is set,
// the dump may contain secrets.
func NewTestClient() Client {
	c := New().WithRetry(TestingRetry())
	if os.Getenv(TestVerboseEnv) == "true" { //nolint:forbidigo
		return c.AndTrace(trace.DumpTracer(os.Stdout))
	}
	return c
}

// NewMockedClient returns a test Client and the mocked transport it uses.
func NewMockedClient() (Client, *httpmock.MockTransport) {
	transport := httpmock.NewMockTransport()
	return NewTestClient().WithTransport(transport), transport
}
