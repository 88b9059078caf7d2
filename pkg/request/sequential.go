package request

import (
	"context"

	"github.com/keboola/go-httpext/pkg/delay"
)

// SequentialAPIRequests is a group of requests sent one by one, with a delay after each request.
type SequentialAPIRequests struct {
	requests []Sendable
	policy   delay.Func[Sendable]
	opts     []delay.Option
}

// Sequential wraps requests to one Sendable interface.
// The requests are sent in order, the next request is sent when the previous one is completed
// and the delay returned by the policy has elapsed. Sending stops at the first error.
// A nil policy means no delay.
func Sequential(policy delay.Func[Sendable], requests ...Sendable) SequentialAPIRequests {
	if policy == nil {
		policy = delay.None[Sendable]()
	}
	return SequentialAPIRequests{requests: requests, policy: policy}
}

// WithOptions returns a copy with the delay executor options set, for example a logger.
func (v SequentialAPIRequests) WithOptions(opts ...delay.Option) SequentialAPIRequests {
	v.opts = append(v.opts[:len(v.opts):len(v.opts)], opts...)
	return v
}

func (v SequentialAPIRequests) SendOrErr(ctx context.Context) error {
	return delay.Execute(ctx, v.requests, sendOrErr, v.policy, v.opts...)
}

func sendOrErr(ctx context.Context, r Sendable) error {
	return r.SendOrErr(ctx)
}
