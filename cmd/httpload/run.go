package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/keboola/go-httpext/pkg/blobsink"
	"github.com/keboola/go-httpext/pkg/client"
	"github.com/keboola/go-httpext/pkg/client/trace"
	"github.com/keboola/go-httpext/pkg/delay"
	"github.com/keboola/go-httpext/pkg/request"
)

// loadTask loads one URL to the stdout or to the bucket.
type loadTask struct {
	sender request.Sender
	uri    *url.URL
	bucket string
	stdout io.Writer
	logger *zap.Logger
}

func (t loadTask) SendOrErr(ctx context.Context) error {
	if t.bucket == "" {
		t.logger.Info("loading", zap.String("url", t.uri.String()))
		// Hide Close of the stdout, it is shared by all tasks
		_, err := request.Load(ctx, t.sender, t.uri, struct{ io.Writer }{t.stdout})
		return err
	}

	// The blob write is aborted if the context is canceled before Close
	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	key := objectKey(t.uri)
	w, err := blobsink.OpenWriter(writeCtx, t.bucket, key)
	if err != nil {
		return err
	}

	// The writer is closed here, so a failed response does not create the object
	t.logger.Info("loading", zap.String("url", t.uri.String()), zap.String("key", key))
	if _, err := request.Load(ctx, t.sender, t.uri, struct{ io.Writer }{w}); err != nil {
		cancel()
		_ = w.Close()
		return err
	}
	return w.Close()
}

func newClient(cfg config, logger *zap.Logger) client.Client {
	c := client.New().WithUserAgent(cfg.UserAgent).WithRetry(cfg.retry())
	if cfg.Verbose {
		c = c.AndTrace(trace.ZapTracer(logger.Named("http")))
	}
	return c
}

// run loads all URLs from the config, one by one, and stops at the first error.
func run(ctx context.Context, cfg config, sender request.Sender, stdout io.Writer, logger *zap.Logger) error {
	// Validate all URLs before the first request
	tasks := make([]request.Sendable, 0, len(cfg.URLs))
	for _, str := range cfg.URLs {
		uri, err := request.ParseURI(str)
		if err != nil {
			return err
		}
		if !uri.IsAbs() {
			return fmt.Errorf(`uri "%s" is not absolute`, str)
		}
		tasks = append(tasks, loadTask{sender: sender, uri: uri, bucket: cfg.Bucket, stdout: stdout, logger: logger})
	}

	var policy delay.Func[request.Sendable]
	switch {
	case cfg.Delay == 0:
		policy = delay.None[request.Sendable]()
	case cfg.Every > 1:
		policy = delay.EveryNth[request.Sendable](cfg.Every, cfg.Delay)
	default:
		policy = delay.Constant[request.Sendable](cfg.Delay)
	}

	return request.Sequential(policy, tasks...).WithOptions(delay.WithLogger(logger.Named("delay"))).SendOrErr(ctx)
}

// objectKey maps the URL to a bucket key, "https://example.com/dir/" is stored as "example.com/dir/index".
func objectKey(uri *url.URL) string {
	p := uri.Path
	if p == "" || strings.HasSuffix(p, "/") {
		p += "index"
	}
	return path.Clean(uri.Host + "/" + strings.TrimPrefix(p, "/"))
}
