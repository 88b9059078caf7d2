// Command httpload loads a list of URLs one by one, with a configurable delay between requests.
//
// Bodies are written to the stdout, or to a gocloud bucket if the --bucket flag is set.
// Flags can be set by HTTPLOAD_* environment variables or by a config file.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	cfg, err := loadConfig(os.Args[1:], os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	} else if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		return 2
	}

	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, newClient(cfg, logger), os.Stdout, logger); err != nil {
		logger.Error("load failed", zap.Error(err))
		return 1
	}
	return 0
}

// newLogger logs to the stderr, so the stdout contains only the loaded bodies.
func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}
