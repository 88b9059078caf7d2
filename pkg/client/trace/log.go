package trace

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/keboola/go-httpext/pkg/request"
)

// LogTracer writes one line per request stage to the writer, for example:
//
//	[0001] GET "https://example.com" | start
//	[0001] GET "https://example.com" | done 200 in 12ms
//	[0001] GET "https://example.com" | body 3B
//	[0001] GET "https://example.com" | processed in 13ms
//
// Each logical request has its own number, redirects and retries share it.
func LogTracer(wr io.Writer) Factory {
	var lastID uint64
	var lock sync.Mutex // lines of concurrent requests are not interleaved
	return func(ctx context.Context, _ request.HTTPRequest) (context.Context, *ClientTrace) {
		id := atomic.AddUint64(&lastID, 1)
		var prefix string
		var startedAt, connectAt time.Time

		log := func(err error, format string, args ...any) {
			var b strings.Builder
			_, _ = fmt.Fprintf(&b, "[%04d] ", id)
			if prefix != "" {
				b.WriteString(prefix)
				b.WriteString(" | ")
			}
			_, _ = fmt.Fprintf(&b, format, args...)
			if err != nil {
				_, _ = fmt.Fprintf(&b, " | error=%q", err.Error())
			}
			lock.Lock()
			defer lock.Unlock()
			_, _ = fmt.Fprintln(wr, b.String())
		}

		t := &ClientTrace{}
		t.ConnectStart = func(_, _ string) {
			connectAt = time.Now()
		}
		t.GotConn = func(info httptrace.GotConnInfo) {
			switch {
			case info.Reused && info.WasIdle:
				log(nil, "conn reused, idle %s", info.IdleTime)
			case info.Reused:
				log(nil, "conn reused")
			default:
				log(nil, "conn new in %s", time.Since(connectAt))
			}
		}
		t.HTTPRequestStart = func(r *http.Request) {
			prefix = fmt.Sprintf(`%s "%s"`, r.Method, r.URL.String())
			startedAt = time.Now()
			log(nil, "start")
		}
		t.HTTPRequestDone = func(r *http.Response, err error) {
			status := 0
			if r != nil {
				status = r.StatusCode
			}
			log(err, "done %d in %s", status, time.Since(startedAt))
		}
		t.HTTPRequestRetry = func(attempt int, delay time.Duration) {
			log(nil, "retry %d after %s", attempt, delay)
		}
		t.ResponseBodyDone = func(bytes int64, err error) {
			log(err, "body %dB", bytes)
		}
		t.RequestProcessed = func(_ any, err error) {
			// Prefix is empty if the request has not been sent, for example, the definition is invalid
			log(err, "processed in %s", time.Since(startedAt))
		}
		return ctx, t
	}
}
