package trace

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"os"
	"strings"
	"time"

	"github.com/keboola/go-httpext/pkg/client/decode"
	"github.com/keboola/go-httpext/pkg/request"
)

const (
	dumpMaxLength = 2000
	dumpFullEnv   = "HTTPEXT_DUMP_FULL"
)

// DumpTracer dumps HTTP requests and responses to the writer.
// Request lines are prefixed by ">>>", response lines by "<<<" and events by "---".
// Long bodies are truncated, unless the HTTPEXT_DUMP_FULL environment variable is "true".
//
// Output may contain unmasked tokens, do not use it in production!
func DumpTracer(wr io.Writer) Factory {
	return func(ctx context.Context, _ request.HTTPRequest) (context.Context, *ClientTrace) {
		d := &dumper{wr: wr}
		t := &ClientTrace{}
		t.HTTPRequestStart = d.requestStart
		t.HTTPRequestDone = d.requestDone
		t.HTTPRequestRetry = func(attempt int, delay time.Duration) {
			d.event(fmt.Sprintf("retry %d after %s (%s)", attempt, delay, d.summary()))
		}
		t.ResponseBodyDone = func(bytes int64, err error) {
			d.bytes = bytes
			d.setErr(err)
		}
		t.RequestProcessed = func(_ any, err error) {
			d.setErr(err)
			msg := fmt.Sprintf("processed %s, %dB, headers %s, total %s", d.summary(), d.bytes, d.headersAt.Sub(d.startedAt), time.Since(d.startedAt))
			if d.err != nil {
				msg += ", error: " + d.err.Error()
			}
			d.event(msg)
		}
		return ctx, t
	}
}

type dumper struct {
	wr        io.Writer
	method    string
	uri       string
	status    int
	bytes     int64
	err       error
	startedAt time.Time
	headersAt time.Time
}

func (d *dumper) requestStart(r *http.Request) {
	d.startedAt = time.Now()
	d.method, d.uri = r.Method, r.URL.RequestURI()
	if out, err := httputil.DumpRequestOut(r, true); err == nil {
		d.lines(">>>", string(out))
	} else {
		d.lines(">>>", "cannot dump request: "+err.Error())
	}
}

func (d *dumper) requestDone(r *http.Response, err error) {
	d.setErr(err)
	if r == nil {
		// Network error, there is no response
		d.lines("<<<", "error: "+err.Error())
		return
	}

	d.status = r.StatusCode
	d.headersAt = time.Now()
	if out, err := httputil.DumpResponse(r, false); err == nil {
		d.lines("<<<", string(out))
	} else {
		d.lines("<<<", "cannot dump response: "+err.Error())
	}

	if r.Body == nil {
		return
	}

	// The body is read twice, raw bytes are kept for the client
	var raw bytes.Buffer
	var decoded strings.Builder
	if reader, err := decode.Decode(io.NopCloser(io.TeeReader(r.Body, &raw)), r.Header.Get("Content-Encoding")); err != nil {
		d.lines("<<<", "cannot decode body: "+err.Error())
	} else if _, err := io.Copy(&decoded, reader); err != nil {
		d.lines("<<<", "cannot read body: "+err.Error())
	}
	r.Body = io.NopCloser(bytes.NewReader(raw.Bytes()))
	if decoded.Len() > 0 {
		d.lines("<<<", "\n"+d.truncate(decoded.String()))
	}
}

func (d *dumper) summary() string {
	return fmt.Sprintf("%s %s %d", d.method, d.uri, d.status)
}

func (d *dumper) setErr(err error) {
	if err != nil {
		d.err = err
	}
}

func (d *dumper) truncate(s string) string {
	if len(s) <= dumpMaxLength || os.Getenv(dumpFullEnv) == "true" { //nolint:forbidigo
		return s
	}
	return s[:dumpMaxLength] + "\n... (set env " + dumpFullEnv + "=true to see full output)"
}

func (d *dumper) event(msg string) {
	_, _ = fmt.Fprintln(d.wr, "---", msg)
}

// lines writes the text line by line with the prefix.
func (d *dumper) lines(prefix, text string) {
	text = strings.TrimRight(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		b.WriteString(strings.TrimRight(prefix+" "+line, " "))
		b.WriteByte('\n')
	}
	_, _ = io.WriteString(d.wr, b.String())
}
