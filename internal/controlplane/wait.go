package controlplane

import (
	"context"
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"github.com/imamik/orgsync/internal/poll"
)

// AccountReader reads a single account record.
type AccountReader interface {
	GetAccount(ctx context.Context, cloudAccountID string) (*Account, error)
}

// StatusWaiter polls an account's status on a fixed interval.
type StatusWaiter struct {
	reader   AccountReader
	clock    clock.Clock
	interval time.Duration
}

// NewStatusWaiter creates a waiter. A nil clock uses the real clock.
func NewStatusWaiter(reader AccountReader, clk clock.Clock, interval time.Duration) *StatusWaiter {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &StatusWaiter{reader: reader, clock: clk, interval: interval}
}

// WaitForStatus waits until the account leaves UNINITIALIZED and returns
// the status it moved to.
func (w *StatusWaiter) WaitForStatus(ctx context.Context, cloudAccountID string, timeout time.Duration) (Status, error) {
	return w.wait(ctx, cloudAccountID, timeout, func(s Status) bool { return s != StatusUninitialized })
}

// WaitForReady waits until the account reports READY.
func (w *StatusWaiter) WaitForReady(ctx context.Context, cloudAccountID string, timeout time.Duration) (Status, error) {
	return w.wait(ctx, cloudAccountID, timeout, func(s Status) bool { return s == StatusReady })
}

func (w *StatusWaiter) wait(ctx context.Context, cloudAccountID string, timeout time.Duration, done func(Status) bool) (Status, error) {
	p := poll.PollerFunc(func(ctx context.Context) (poll.State, error) {
		account, err := w.reader.GetAccount(ctx, cloudAccountID)
		if err != nil {
			return poll.State{}, err
		}
		if done(account.Status()) {
			return poll.Terminal(account.RawStatus), nil
		}
		return poll.State{Value: account.RawStatus}, nil
	})

	res := poll.Run(ctx, w.clock, p, poll.Options{Interval: w.interval, Timeout: timeout})
	status := ParseStatus(res.Value)

	switch res.Outcome {
	case poll.OutcomeTerminal:
		return status, nil
	case poll.OutcomeTimedOut:
		return status, fmt.Errorf("%w: account %s still %s after %s", ErrStatusWaitTimeout, cloudAccountID, status, timeout)
	default:
		return status, res.Err
	}
}
