package client_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/keboola/go-httpext/pkg/client"
	. "github.com/keboola/go-httpext/pkg/request"
)

type testStruct struct {
	Foo string `json:"foo"`
}

type testError struct {
	ErrorMsg   string `json:"error"`
	StatusCode int    `json:"-"`
}

func (e *testError) Error() string {
	return e.ErrorMsg
}

func (e *testError) SetResponse(res *http.Response) {
	e.StatusCode = res.StatusCode
}

type testWriteCloser struct {
	io.Writer
}

func (v testWriteCloser) Close() error {
	_, err := v.Write([]byte("<CLOSE>"))
	return err
}

type failingWriteCloser struct{}

func (failingWriteCloser) Write(p []byte) (int, error) {
	return len(p), nil
}

func (failingWriteCloser) Close() error {
	return errors.New("close failed")
}

func TestNew(t *testing.T) {
	t.Parallel()
	c := New()
	assert.NotNil(t, c)
	assert.Nil(t, c.Tracer())
}

func TestRequest(t *testing.T) {
	t.Parallel()

	// Mocked response
	c, transport := NewMockedClient()
	transport.RegisterResponder("GET", `https://example.com`, httpmock.NewStringResponder(200, "test"))

	ctx := context.Background()
	_, _, err := NewHTTPRequest(c).WithGet("https://example.com").Send(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, transport.GetCallCountInfo()["GET https://example.com"])
}

func TestResultMapping(t *testing.T) {
	t.Parallel()

	jsonBody := httpmock.NewJsonResponderOrPanic(200, map[string]any{"foo": "bar"})
	vendorJSONBody := func(_ *http.Request) (*http.Response, error) {
		res := httpmock.NewStringResponse(200, `{"foo":"bar"}`)
		res.Header.Set("Content-Type", "application/vnd.example+json; charset=utf-8")
		return res, nil
	}

	var out strings.Builder
	cases := []struct {
		name      string
		responder httpmock.Responder
		resultDef func() any
		expected  func(result any) any
	}{
		{
			name:      "string",
			responder: httpmock.NewStringResponder(200, "foo bar"),
			resultDef: func() any { return new(string) },
			expected:  func(any) any { v := "foo bar"; return &v },
		},
		{
			name:      "bytes",
			responder: jsonBody,
			resultDef: func() any { return new([]byte) },
			expected:  func(any) any { v := []byte(`{"foo":"bar"}`); return &v },
		},
		{
			name:      "writer",
			responder: jsonBody,
			resultDef: func() any { out.Reset(); return io.Writer(&out) },
			expected:  func(result any) any { assert.Equal(t, `{"foo":"bar"}`, out.String()); return result },
		},
		{
			name:      "write closer",
			responder: jsonBody,
			resultDef: func() any { out.Reset(); return testWriteCloser{Writer: &out} },
			expected:  func(any) any { assert.Equal(t, `{"foo":"bar"}<CLOSE>`, out.String()); return testWriteCloser{Writer: &out} },
		},
		{
			name:      "json map",
			responder: jsonBody,
			resultDef: func() any { return &map[string]any{} },
			expected:  func(any) any { return &map[string]any{"foo": "bar"} },
		},
		{
			name:      "json struct with vendor type",
			responder: vendorJSONBody,
			resultDef: func() any { return &testStruct{} },
			expected:  func(any) any { return &testStruct{Foo: "bar"} },
		},
	}

	// Cases share the writer, so they run sequentially
	for _, tc := range cases {
		c, transport := NewMockedClient()
		transport.RegisterResponder("GET", "https://example.com", tc.responder)

		resultDef := tc.resultDef()
		_, result, err := NewHTTPRequest(c).WithGet("https://example.com").WithResult(resultDef).Send(context.Background())
		require.NoError(t, err, tc.name)
		assert.Equal(t, resultDef, result, tc.name)
		assert.Equal(t, tc.expected(result), result, tc.name)
		assert.Equal(t, 1, transport.GetCallCountInfo()["GET https://example.com"], tc.name)
	}
}

func TestUnexpectedContentType(t *testing.T) {
	t.Parallel()

	c, transport := NewMockedClient()
	transport.RegisterResponder("GET", `https://example.com`, httpmock.NewStringResponder(200, "<html></html>"))

	_, _, err := NewHTTPRequest(c).WithGet("https://example.com").WithResult(&testStruct{}).Send(context.Background())
	require.Error(t, err)
	assert.Equal(t, `cannot process request GET "https://example.com": cannot map response with content type "" to "*client_test.testStruct"`, err.Error())
}

func TestJsonErrorResult(t *testing.T) {
	t.Parallel()

	c, transport := NewMockedClient()
	transport.RegisterResponder("GET", `https://example.com`, httpmock.NewJsonResponderOrPanic(400, map[string]any{"error": "error message"}))

	errDef := &testError{}
	_, _, err := NewHTTPRequest(c).WithGet("https://example.com").WithError(errDef).Send(context.Background())
	assert.Error(t, err)
	assert.Same(t, errDef, err)
	assert.Equal(t, &testError{ErrorMsg: "error message", StatusCode: 400}, err)
	assert.Equal(t, 1, transport.GetCallCountInfo()["GET https://example.com"])
}

func TestGenericHTTPError(t *testing.T) {
	t.Parallel()

	c, transport := NewMockedClient()
	transport.RegisterResponder("GET", `https://example.com`, httpmock.NewStringResponder(404, "not found"))

	var out string
	_, result, err := NewHTTPRequest(c).WithGet("https://example.com").WithResult(&out).Send(context.Background())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Empty(t, out)
	httpErr, ok := err.(HTTPError)
	require.True(t, ok)
	assert.Equal(t, HTTPError{Method: "GET", URL: "https://example.com", StatusCode: 404}, httpErr)
	assert.Equal(t, `request GET "https://example.com" failed: 404 Not Found`, err.Error())
}

func TestNoContent(t *testing.T) {
	t.Parallel()

	c, transport := NewMockedClient()
	transport.RegisterResponder("DELETE", `https://example.com/item`, httpmock.NewStringResponder(204, ""))

	var out testStruct
	_, result, err := NewHTTPRequest(c).WithDelete("https://example.com/item").WithResult(&out).Send(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestWriteCloserResult_ClosedOnEveryPath(t *testing.T) {
	t.Parallel()

	c, transport := NewMockedClient()
	transport.RegisterResponder("GET", `https://example.com/empty`, httpmock.NewStringResponder(204, ""))
	transport.RegisterResponder("GET", `https://example.com/missing`, httpmock.NewStringResponder(404, "not found"))
	transport.RegisterResponder("GET", `https://example.com/broken`, httpmock.NewErrorResponder(io.ErrUnexpectedEOF))

	cases := []struct {
		url    string
		errMsg string
	}{
		{url: "https://example.com/empty"},
		{url: "https://example.com/missing", errMsg: `request GET "https://example.com/missing" failed: 404 Not Found`},
		{url: "https://example.com/broken", errMsg: `request GET "https://example.com/broken" failed: unexpected EOF`},
	}
	for _, tc := range cases {
		var out bytes.Buffer
		_, result, err := NewHTTPRequest(c).WithGet(tc.url).WithResult(testWriteCloser{Writer: &out}).Send(context.Background())
		if tc.errMsg == "" {
			assert.NoError(t, err, tc.url)
		} else {
			assert.EqualError(t, err, tc.errMsg, tc.url)
		}
		assert.Nil(t, result, tc.url)
		assert.Equal(t, "<CLOSE>", out.String(), tc.url)
	}
}

func TestWriteCloserResult_CloseError(t *testing.T) {
	t.Parallel()

	c, transport := NewMockedClient()
	transport.RegisterResponder("GET", `https://example.com/empty`, httpmock.NewStringResponder(204, ""))

	_, _, err := NewHTTPRequest(c).WithGet("https://example.com/empty").WithResult(failingWriteCloser{}).Send(context.Background())
	assert.EqualError(t, err, `cannot process request GET "https://example.com/empty": cannot close result writer: close failed`)
}

func TestGzipResponse(t *testing.T) {
	t.Parallel()

	var body bytes.Buffer
	w := gzip.NewWriter(&body)
	_, err := w.Write([]byte("gzip content"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	c, transport := NewMockedClient()
	transport.RegisterResponder("GET", `https://example.com`, func(_ *http.Request) (*http.Response, error) {
		res := httpmock.NewBytesResponse(200, body.Bytes())
		res.Header.Set("Content-Encoding", "gzip")
		return res, nil
	})

	var out string
	_, _, err = NewHTTPRequest(c).WithGet("https://example.com").WithResult(&out).Send(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "gzip content", out)
}

func TestBrotliResponse(t *testing.T) {
	t.Parallel()

	var body bytes.Buffer
	w := brotli.NewWriter(&body)
	_, err := w.Write([]byte(`{"foo":"brotli"}`))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	c, transport := NewMockedClient()
	transport.RegisterResponder("GET", `https://example.com`, func(_ *http.Request) (*http.Response, error) {
		res := httpmock.NewBytesResponse(200, body.Bytes())
		res.Header.Set("Content-Encoding", "br")
		res.Header.Set("Content-Type", "application/json")
		return res, nil
	})

	out := &testStruct{}
	_, _, err = NewHTTPRequest(c).WithGet("https://example.com").WithResult(out).Send(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "brotli", out.Foo)
}

func TestWithBaseUrl(t *testing.T) {
	t.Parallel()

	c, transport := NewMockedClient()
	transport.RegisterResponder("GET", "https://example.com/baz", httpmock.NewStringResponder(200, "test"))

	_, _, err := NewHTTPRequest(c.WithBaseURL("https://example.com")).WithGet("baz").Send(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, transport.GetCallCountInfo()["GET https://example.com/baz"])
}

func TestPathAndQueryParams(t *testing.T) {
	t.Parallel()

	c, transport := NewMockedClient()
	transport.RegisterResponder("GET", `https://example.com/items/item1`, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "a=1&b=3&c=4", req.URL.RawQuery)
		return httpmock.NewStringResponse(200, "test"), nil
	})

	_, _, err := NewHTTPRequest(c).
		WithGet("https://example.com/items/{id}?a=1&b=2").
		AndPathParam("id", "item1").
		AndQueryParam("b", "3").
		AndQueryParam("c", "4").
		Send(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, transport.GetCallCountInfo()["GET https://example.com/items/item1"])
}

func TestFormBody(t *testing.T) {
	t.Parallel()

	c, transport := NewMockedClient()
	transport.RegisterResponder("POST", `https://example.com`, func(req *http.Request) (*http.Response, error) {
		body, err := io.ReadAll(req.Body)
		assert.NoError(t, err)
		assert.Equal(t, "key=a+b*c&other=%7E", string(body))
		assert.Equal(t, ContentTypeForm, req.Header.Get("Content-Type"))
		return httpmock.NewStringResponse(200, "test"), nil
	})

	_, _, err := NewHTTPRequest(c).
		WithPost("https://example.com").
		WithFormBody(map[string]string{"key": "a b*c", "other": "~"}).
		Send(context.Background())
	assert.NoError(t, err)
}

func TestUnsupportedBody(t *testing.T) {
	t.Parallel()

	c, _ := NewMockedClient()
	_, _, err := NewHTTPRequest(c).WithPost("https://example.com").WithBody(123).Send(context.Background())
	require.Error(t, err)
	assert.Equal(t, `request POST "https://example.com": cannot prepare request body: unsupported body type "int"`, err.Error())
}

func TestRequestContext(t *testing.T) {
	t.Parallel()

	c, transport := NewMockedClient()
	transport.RegisterResponder("GET", `https://example.com`, func(request *http.Request) (*http.Response, error) {
		// Request context should be used by HTTP request
		assert.Equal(t, "testValue", request.Context().Value("testKey"))
		return httpmock.NewStringResponse(200, "test"), nil
	})
	//lint:ignore SA1029 it is ok to use "testKey" without custom type in this test
	ctx := context.WithValue(context.Background(), "testKey", "testValue")
	_, _, err := NewHTTPRequest(c).WithGet("https://example.com").Send(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, transport.GetCallCountInfo()["GET https://example.com"])
}

func TestDefaultHeaders(t *testing.T) {
	t.Parallel()

	c, transport := NewMockedClient()
	transport.RegisterResponder("GET", "https://example.com", func(request *http.Request) (*http.Response, error) {
		assert.Equal(t, http.Header{
			"User-Agent":      []string{"keboola-go-httpext"},
			"Accept-Encoding": []string{"gzip, br"},
		}, request.Header)
		return httpmock.NewStringResponse(200, "test"), nil
	})

	_, _, err := NewHTTPRequest(c).WithGet("https://example.com").Send(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, transport.GetCallCountInfo()["GET https://example.com"])
}

func TestWithUserAgent(t *testing.T) {
	t.Parallel()

	c, transport := NewMockedClient()
	transport.RegisterResponder("GET", `https://example.com`, func(request *http.Request) (*http.Response, error) {
		assert.Equal(t, "my-user-agent", request.Header.Get("User-Agent"))
		return httpmock.NewStringResponse(200, "test"), nil
	})

	_, _, err := NewHTTPRequest(c.WithUserAgent("my-user-agent")).WithGet("https://example.com").Send(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, transport.GetCallCountInfo()["GET https://example.com"])
}

func TestWithHeaders(t *testing.T) {
	t.Parallel()

	c, transport := NewMockedClient()
	transport.RegisterResponder("GET", `https://example.com`, func(request *http.Request) (*http.Response, error) {
		assert.Equal(t, http.Header{
			"User-Agent":      []string{"keboola-go-httpext"},
			"Accept-Encoding": []string{"gzip, br"},
			"Key1":            []string{"value1"},
			"Key2":            []string{"request-value"},
			"My-Header":       []string{"my-value"},
		}, request.Header)
		return httpmock.NewStringResponse(200, "test"), nil
	})

	c = c.WithHeader("my-header", "my-value").WithHeaders(map[string]string{
		"key1": "value1",
		"key2": "value2",
	})
	_, _, err := NewHTTPRequest(c).
		WithGet("https://example.com").
		AndHeader("key2", "request-value").
		Send(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, transport.GetCallCountInfo()["GET https://example.com"])
}

func TestClientImmutable(t *testing.T) {
	t.Parallel()

	c, transport := NewMockedClient()
	transport.RegisterResponder("GET", `https://example.com`, func(request *http.Request) (*http.Response, error) {
		assert.Empty(t, request.Header.Get("My-Header"))
		return httpmock.NewStringResponse(200, "test"), nil
	})

	_ = c.WithHeader("my-header", "my-value")
	_, _, err := NewHTTPRequest(c).WithGet("https://example.com").Send(context.Background())
	assert.NoError(t, err)
}

func TestRequestTimeout(t *testing.T) {
	t.Parallel()

	c, transport := NewMockedClient()
	transport.RegisterResponder("GET", "https://example.com", func(request *http.Request) (*http.Response, error) {
		<-request.Context().Done()
		return nil, request.Context().Err()
	})

	retry := TestingRetry()
	retry.TotalRequestTimeout = 20 * time.Millisecond
	_, _, err := NewHTTPRequest(c.WithRetry(retry)).WithGet("https://example.com").Send(context.Background())
	assert.Error(t, err)
	assert.Equal(t, `request GET "https://example.com" failed: timeout after 20ms`, err.Error())
}

func TestContext_DeadlineExceeded(t *testing.T) {
	t.Parallel()

	c, transport := NewMockedClient()
	transport.RegisterResponder("GET", "https://example.com", func(request *http.Request) (*http.Response, error) {
		<-request.Context().Done()
		return nil, request.Context().Err()
	})

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(50*time.Millisecond))
	defer cancel()

	_, _, err := NewHTTPRequest(c).WithGet("https://example.com").Send(ctx)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `request GET "https://example.com" failed: timeout after`)
}

func TestContext_Canceled(t *testing.T) {
	t.Parallel()

	c, transport := NewMockedClient()
	transport.RegisterResponder("GET", "https://example.com", func(request *http.Request) (*http.Response, error) {
		<-request.Context().Done()
		return nil, request.Context().Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, _, err := NewHTTPRequest(c).WithGet("https://example.com").Send(ctx)
	assert.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), `request GET "https://example.com" failed: canceled after`)
}

func TestContext_CanceledBeforeSend(t *testing.T) {
	t.Parallel()

	c, transport := NewMockedClient()
	transport.RegisterResponder("GET", "https://example.com", httpmock.NewStringResponder(200, "test"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewHTTPRequest(c).WithGet("https://example.com").Send(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, transport.GetTotalCallCount())
}
