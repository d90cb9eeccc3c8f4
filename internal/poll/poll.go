// Package poll drives bounded, fixed-interval status polling.
//
// A Poller reports a single observation: either still pending or terminal
// with a status value. Run schedules observations on an injected clock until
// a terminal state is seen, the timeout elapses, or the context is cancelled.
// There is no backoff and no retry after the timeout; callers decide what a
// TimedOut result means for them.
package poll

import (
	"context"
	"fmt"
	"time"

	"k8s.io/utils/clock"
)

// State is the result of one observation.
type State struct {
	Done  bool
	Value string
}

// Pending returns a non-terminal state.
func Pending() State {
	return State{}
}

// Terminal returns a terminal state carrying the observed value.
func Terminal(value string) State {
	return State{Done: true, Value: value}
}

// Poller makes one observation of a remote status.
type Poller interface {
	Poll(ctx context.Context) (State, error)
}

// PollerFunc adapts a function to the Poller interface.
type PollerFunc func(ctx context.Context) (State, error)

// Poll implements Poller.
func (f PollerFunc) Poll(ctx context.Context) (State, error) {
	return f(ctx)
}

// Outcome describes how a Run ended.
type Outcome int

const (
	// OutcomeTerminal means the poller reported a terminal state.
	OutcomeTerminal Outcome = iota
	// OutcomeTimedOut means the deadline passed without a terminal state.
	OutcomeTimedOut
	// OutcomeCancelled means the context was cancelled while polling.
	OutcomeCancelled
	// OutcomeErrored means the poller returned an error.
	OutcomeErrored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeTerminal:
		return "terminal"
	case OutcomeTimedOut:
		return "timed-out"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeErrored:
		return "errored"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Options bounds a Run.
type Options struct {
	// Interval between observations.
	Interval time.Duration
	// Grace is waited once before the first observation. The timeout
	// starts counting after it.
	Grace time.Duration
	// Timeout is the hard deadline for reaching a terminal state.
	Timeout time.Duration
}

// Result is the final outcome of a Run.
type Result struct {
	Outcome Outcome
	// Value is the terminal value, or the last observed value otherwise.
	Value   string
	Ticks   int
	Elapsed time.Duration
	Err     error
}

// Run polls p until it reports a terminal state, the timeout elapses or ctx
// is done. A run that times out returns no later than one interval after
// the deadline: the final wait is clamped to the time remaining.
func Run(ctx context.Context, clk clock.Clock, p Poller, opts Options) Result {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}

	start := clk.Now()
	elapsed := func() time.Duration { return clk.Since(start) }

	if opts.Grace > 0 {
		select {
		case <-ctx.Done():
			return Result{Outcome: OutcomeCancelled, Elapsed: elapsed(), Err: ctx.Err()}
		case <-clk.After(opts.Grace):
		}
	}

	deadline := clk.Now().Add(opts.Timeout)
	var res Result
	for {
		if err := ctx.Err(); err != nil {
			res.Outcome = OutcomeCancelled
			res.Err = err
			res.Elapsed = elapsed()
			return res
		}

		state, err := p.Poll(ctx)
		res.Ticks++
		if err != nil {
			if ctx.Err() != nil {
				res.Outcome = OutcomeCancelled
				res.Err = ctx.Err()
			} else {
				res.Outcome = OutcomeErrored
				res.Err = err
			}
			res.Elapsed = elapsed()
			return res
		}
		res.Value = state.Value
		if state.Done {
			res.Outcome = OutcomeTerminal
			res.Elapsed = elapsed()
			return res
		}

		remaining := deadline.Sub(clk.Now())
		if remaining <= 0 {
			res.Outcome = OutcomeTimedOut
			res.Elapsed = elapsed()
			return res
		}

		wait := opts.Interval
		if remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			res.Outcome = OutcomeCancelled
			res.Err = ctx.Err()
			res.Elapsed = elapsed()
			return res
		case <-clk.After(wait):
		}
	}
}
