package trace

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/keboola/go-httpext/pkg/request"
)

// ZapTracer logs request stages as structured debug entries, errors are logged at the warn level.
// Each logical request gets a "request.id" field, redirects and retries share it.
func ZapTracer(logger *zap.Logger) Factory {
	var idGenerator uint64
	return func(ctx context.Context, reqDef request.HTTPRequest) (context.Context, *ClientTrace) {
		log := logger.With(
			zap.Uint64("request.id", atomic.AddUint64(&idGenerator, 1)),
			zap.String("request.method", reqDef.Method()),
		)

		var startTime time.Time
		t := &ClientTrace{}
		t.HTTPRequestStart = func(r *http.Request) {
			startTime = time.Now()
			log.Debug("http request start", zap.String("url", r.URL.String()))
		}
		t.HTTPRequestDone = func(r *http.Response, err error) {
			fields := []zap.Field{zap.Duration("duration", time.Since(startTime))}
			if r != nil {
				fields = append(fields, zap.Int("status", r.StatusCode))
			}
			if err != nil {
				log.Warn("http request failed", append(fields, zap.Error(err))...)
				return
			}
			log.Debug("http request done", fields...)
		}
		t.HTTPRequestRetry = func(attempt int, delay time.Duration) {
			log.Debug("http request retry", zap.Int("attempt", attempt), zap.Duration("delay", delay))
		}
		t.ResponseBodyDone = func(bytes int64, err error) {
			if err != nil {
				log.Warn("http response body failed", zap.Int64("bytes", bytes), zap.Error(err))
				return
			}
			log.Debug("http response body done", zap.Int64("bytes", bytes))
		}
		t.RequestProcessed = func(_ any, err error) {
			if err != nil {
				log.Warn("request processed", zap.Error(err))
				return
			}
			log.Debug("request processed")
		}
		return ctx, t
	}
}
