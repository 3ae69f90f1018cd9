package analyzer

import (
	"context"
	"errors"
	"time"
)

// DefaultTimeout is the wall-clock budget of a single analysis
const DefaultTimeout = 10 * time.Second

type deadlinePort struct {
	Port
	timeout time.Duration
}

// WithDeadline bounds every Analyze call by timeout. An elapsed deadline is
// reported as a TIMEOUT failure; a cancelled caller gets ctx.Err() back.
func WithDeadline(p Port, timeout time.Duration) Port {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &deadlinePort{Port: p, timeout: timeout}
}

func (d *deadlinePort) Analyze(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := d.Port.Analyze(cctx, req)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		if o.err != nil && errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return Result{}, &Failure{Kind: FailureTimeout, Detail: d.timeout.String(), Err: o.err}
		}
		if o.err != nil && ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return o.res, o.err
	case <-cctx.Done():
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		return Result{}, &Failure{Kind: FailureTimeout, Detail: d.timeout.String()}
	}
}
