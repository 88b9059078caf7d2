// Package delay performs an action over a sequence of elements, one element at a time,
// waiting after each action for a duration chosen by a delay policy.
//
// Execute and ExecuteSeq never run two actions concurrently and never spawn goroutines.
// The wait between elements is the only suspension point, it blocks only the calling goroutine
// and it is aborted when the context is done. Errors of the action and of the policy
// are returned verbatim, the remaining elements are skipped.
//
// By default, nothing is logged and no spans are created, see WithLogger and WithTracerProvider.
package delay

import (
	"context"
	"iter"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelTrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	traceAppName      = "github.com/keboola/go-httpext/pkg/delay"
	executeSpanName   = "keboola.go.delay.execute"
	waitSpanName      = "keboola.go.delay.wait"
	attrElementIndex  = attribute.Key("delay.element.index")
	attrElementsCount = attribute.Key("delay.elements.count")
	attrDelayMs       = attribute.Key("delay.duration_ms")
)

// Action is invoked once for each element of the sequence, in the sequence order.
type Action[T any] func(ctx context.Context, elem T) error

// Execute performs the action on each element of the slice, in order,
// and waits after each action according to the policy.
func Execute[T any](ctx context.Context, elems []T, action Action[T], policy Func[T], opts ...Option) error {
	return ExecuteSeq(ctx, slices.Values(elems), action, policy, opts...)
}

// ExecuteSeq performs the action on each element of the sequence, in order,
// and waits after each action according to the policy.
//
// The first error returned by the action or by the policy stops the iteration and is returned unchanged.
// If the context is done before an action or during a wait, ctx.Err() is returned
// and no further action is invoked.
func ExecuteSeq[T any](ctx context.Context, seq iter.Seq[T], action Action[T], policy Func[T], opts ...Option) (err error) {
	cfg := newConfig(opts)

	ctx, span := cfg.tracer.Start(ctx, executeSpanName)
	index := 0
	defer func() {
		span.SetAttributes(attrElementsCount.Int(index))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	for elem := range seq {
		// Stop if context has been cancelled
		if err = ctx.Err(); err != nil {
			cfg.logger.Debug("iteration canceled", zap.Int("index", index), zap.Error(err))
			return err
		}

		// Action
		cfg.logger.Debug("action start", zap.Int("index", index))
		if err = action(ctx, elem); err != nil {
			cfg.logger.Debug("action failed", zap.Int("index", index), zap.Error(err))
			return err
		}

		// Delay policy
		d, ok, policyErr := policy(index, elem)
		if policyErr != nil {
			err = policyErr
			cfg.logger.Debug("delay policy failed", zap.Int("index", index), zap.Error(err))
			return err
		}

		// Wait
		if ok && d > 0 {
			cfg.logger.Debug("delay", zap.Int("index", index), zap.Duration("delay", d))
			if err = wait(ctx, cfg.tracer, index, d); err != nil {
				cfg.logger.Debug("delay canceled", zap.Int("index", index), zap.Error(err))
				return err
			}
		}

		index++
	}

	return nil
}

// wait blocks until the duration elapses or the context is done.
func wait(ctx context.Context, tracer otelTrace.Tracer, index int, d time.Duration) error {
	_, span := tracer.Start(ctx, waitSpanName, otelTrace.WithAttributes(
		attrElementIndex.Int(index),
		attrDelayMs.Int64(d.Milliseconds()),
	))
	defer span.End()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		span.SetStatus(codes.Error, ctx.Err().Error())
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
