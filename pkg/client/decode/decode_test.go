package decode_test

import (
	"bytes"
	"compress/gzip"
	"io"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/go-httpext/pkg/client/decode"
)

func TestDecode(t *testing.T) {
	t.Parallel()

	var gzipBody bytes.Buffer
	gzipWriter := gzip.NewWriter(&gzipBody)
	_, err := gzipWriter.Write([]byte("content"))
	require.NoError(t, err)
	require.NoError(t, gzipWriter.Close())

	var brBody bytes.Buffer
	brWriter := brotli.NewWriter(&brBody)
	_, err = brWriter.Write([]byte("content"))
	require.NoError(t, err)
	require.NoError(t, brWriter.Close())

	cases := []struct {
		encoding string
		body     []byte
	}{
		{encoding: "", body: []byte("content")},
		{encoding: "identity", body: []byte("content")},
		{encoding: "gzip", body: gzipBody.Bytes()},
		{encoding: "GZIP", body: gzipBody.Bytes()},
		{encoding: "br", body: brBody.Bytes()},
	}

	for _, tc := range cases {
		reader, err := decode.Decode(io.NopCloser(bytes.NewReader(tc.body)), tc.encoding)
		require.NoError(t, err, tc.encoding)
		content, err := io.ReadAll(reader)
		require.NoError(t, err, tc.encoding)
		assert.Equal(t, "content", string(content), tc.encoding)
	}
}

func TestDecode_InvalidGzip(t *testing.T) {
	t.Parallel()

	_, err := decode.Decode(io.NopCloser(bytes.NewReader([]byte("foo"))), "gzip")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot decode gzip:")
}
