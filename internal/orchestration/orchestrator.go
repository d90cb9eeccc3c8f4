package orchestration

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/imamik/orgsync/internal/observability"
	"github.com/imamik/orgsync/internal/platform/awscloud"
	"github.com/imamik/orgsync/internal/reconciler"
)

// AccountDirectory lists organization member accounts.
type AccountDirectory interface {
	ListAccounts(ctx context.Context) ([]awscloud.OrgAccount, error)
}

// AccountReconciler converges one account.
type AccountReconciler interface {
	Reconcile(ctx context.Context, target reconciler.Target) reconciler.Result
}

// Override carries per-account settings.
type Override struct {
	DisplayName string
	Regions     []string
}

// Options selects and paces the accounts of a run.
type Options struct {
	RunID string
	// Parallel is the account pool width. Zero or one runs serially.
	Parallel int
	// Allowlist restricts the run to these account ids.
	Allowlist []string
	Overrides map[string]Override
}

// RunResult aggregates every account of a run. Processed accounts come
// first, in enumeration order, followed by allowlisted ids that were not
// active members.
type RunResult struct {
	RunID     string
	Results   []reconciler.Result
	StartedAt time.Time
	Duration  time.Duration
}

// Failed returns the failed accounts.
func (r *RunResult) Failed() []reconciler.Result {
	var failed []reconciler.Result
	for _, res := range r.Results {
		if res.Failed() {
			failed = append(failed, res)
		}
	}
	return failed
}

// Counts tallies results per outcome.
func (r *RunResult) Counts() map[reconciler.Outcome]int {
	counts := make(map[reconciler.Outcome]int)
	for _, res := range r.Results {
		counts[res.Outcome]++
	}
	return counts
}

// Orchestrator runs reconciliations across the organization.
type Orchestrator struct {
	directory  AccountDirectory
	reconciler AccountReconciler
	observer   observability.Observer
	clock      clock.Clock
}

// New creates an Orchestrator. A nil observer discards output and a nil
// clock uses the real clock.
func New(directory AccountDirectory, rec AccountReconciler, observer observability.Observer, clk clock.Clock) *Orchestrator {
	if observer == nil {
		observer = observability.Discard()
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Orchestrator{directory: directory, reconciler: rec, observer: observer, clock: clk}
}

// Run reconciles every selected account. The error is non-nil only when
// the accounts could not be enumerated, in which case nothing ran.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*RunResult, error) {
	start := o.clock.Now()

	o.observer.Printf("fetching all accounts connected to the organization")
	accounts, err := o.directory.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate organization accounts: %w", err)
	}

	targets, skipped := selectTargets(accounts, opts.Allowlist)
	o.observer.Printf("found %d accounts, %d selected", len(accounts), len(targets))

	results := make([]reconciler.Result, len(targets))
	tasks := make([]func(context.Context), len(targets))
	for i, acct := range targets {
		target := reconciler.Target{AccountID: acct.ID, Name: acct.Name}
		if ov, ok := opts.Overrides[acct.ID]; ok {
			target.DisplayName = ov.DisplayName
			target.Regions = ov.Regions
		}
		tasks[i] = func(ctx context.Context) {
			results[i] = o.reconcile(ctx, target)
		}
	}
	runPool(ctx, tasks, opts.Parallel)

	for _, s := range skipped {
		o.observer.WithFields(map[string]string{"account": s.AccountID}).Event(observability.Event{
			Type:    observability.EventAccountSkipped,
			Message: s.Reason(),
		})
	}

	return &RunResult{
		RunID:     opts.RunID,
		Results:   append(results, skipped...),
		StartedAt: start,
		Duration:  o.clock.Since(start),
	}, nil
}

// reconcile runs one account and converts a panic into a failed result.
func (o *Orchestrator) reconcile(ctx context.Context, target reconciler.Target) (res reconciler.Result) {
	defer func() {
		if p := recover(); p != nil {
			res = reconciler.Result{
				AccountID: target.AccountID,
				Name:      target.Name,
				Outcome:   reconciler.OutcomeFailed,
				Err:       fmt.Errorf("account %s: panic: %v", target.AccountID, p),
			}
			o.observer.WithFields(map[string]string{"account": target.AccountID}).Event(observability.Event{
				Type:    observability.EventAccountFailed,
				Message: res.Err.Error(),
			})
		}
	}()
	if err := ctx.Err(); err != nil {
		return reconciler.Result{
			AccountID: target.AccountID,
			Name:      target.Name,
			Outcome:   reconciler.OutcomeFailed,
			Err: &reconciler.ReconcileError{
				AccountID: target.AccountID,
				Step:      reconciler.StepCredentials,
				Kind:      reconciler.KindCancelled,
				Err:       err,
			},
		}
	}
	return o.reconciler.Reconcile(ctx, target)
}

// selectTargets returns the active accounts to process, in organization
// order, and a Skipped result for every allowlisted id that is not an
// active member.
func selectTargets(accounts []awscloud.OrgAccount, allowlist []string) ([]awscloud.OrgAccount, []reconciler.Result) {
	if len(allowlist) == 0 {
		var active []awscloud.OrgAccount
		for _, a := range accounts {
			if a.Active() {
				active = append(active, a)
			}
		}
		return active, nil
	}

	byID := make(map[string]awscloud.OrgAccount, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
	}
	allowed := make(map[string]bool, len(allowlist))
	var skipped []reconciler.Result
	for _, id := range allowlist {
		if allowed[id] {
			continue
		}
		allowed[id] = true
		a, ok := byID[id]
		switch {
		case !ok:
			skipped = append(skipped, reconciler.Skipped(id, "", "not a member of the organization"))
		case !a.Active():
			skipped = append(skipped, reconciler.Skipped(id, a.Name, fmt.Sprintf("account status is %s", a.Status)))
		}
	}

	var targets []awscloud.OrgAccount
	for _, a := range accounts {
		if allowed[a.ID] && a.Active() {
			targets = append(targets, a)
		}
	}
	return targets, skipped
}

// runPool runs tasks with at most width at once; width below two runs them
// one after another. Tasks report through closures, never through the
// group, so no task cancels another.
func runPool(ctx context.Context, tasks []func(context.Context), width int) {
	if width <= 1 {
		for _, task := range tasks {
			task(ctx)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(width)
	for _, task := range tasks {
		g.Go(func() error {
			task(ctx)
			return nil
		})
	}
	_ = g.Wait()
}
