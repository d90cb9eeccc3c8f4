package orchestration

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/hashicorp/go-multierror"

	"github.com/imamik/orgsync/internal/deploy"
	"github.com/imamik/orgsync/internal/observability"
	"github.com/imamik/orgsync/internal/platform/awscloud"
	"github.com/imamik/orgsync/internal/util/async"
)

// StackMaintainer finds platform stacks and re-applies them.
type StackMaintainer interface {
	PlatformStacks(ctx context.Context, cfg aws.Config, region, apiURL string) ([]awscloud.Stack, error)
	Update(ctx context.Context, cfg aws.Config, region string, st awscloud.Stack) (bool, error)
	ContinueRollback(ctx context.Context, cfg aws.Config, region, stackID string) error
}

// StackTracker waits on a stack change that was already submitted.
type StackTracker interface {
	Track(ctx context.Context, spec deploy.JobSpec, stackID string, op deploy.Operation, timeout time.Duration) (deploy.Completion, error)
}

// Stack update actions.
const (
	ActionUpdated   = "updated"
	ActionUnchanged = "unchanged"
	ActionPlanned   = "planned"
	ActionFailed    = "failed"
)

// Statuses a stack can be updated from.
var updatableStatuses = []string{"CREATE_COMPLETE", "UPDATE_COMPLETE", "UPDATE_ROLLBACK_COMPLETE"}

const statusRollbackFailed = "UPDATE_ROLLBACK_FAILED"

// UpdateOptions selects the accounts whose stacks are re-applied.
type UpdateOptions struct {
	Parallel      int
	Allowlist     []string
	RegionWorkers int
	StackTimeout  time.Duration
	// DryRun lists the stacks that would be touched.
	DryRun bool
}

// StackUpdate is the outcome for one root platform stack.
type StackUpdate struct {
	Region string
	Name   string
	Action string
	// RolledBack is set when a failed rollback was continued first.
	RolledBack bool
	Err        error
}

// UpdateResult is the outcome for one account.
type UpdateResult struct {
	AccountID string
	Name      string
	Stacks    []StackUpdate
	Err       error
}

// UpdateRun aggregates an update pass.
type UpdateRun struct {
	Results []UpdateResult
	DryRun  bool
}

// Failed returns the accounts with at least one failed stack or lookup.
func (r *UpdateRun) Failed() []UpdateResult {
	var failed []UpdateResult
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// Updater re-applies the current template of every root platform stack
// that reports to this environment. Stacks stuck in UPDATE_ROLLBACK_FAILED
// have their rollback continued first.
type Updater struct {
	directory AccountDirectory
	creds     CredentialSource
	stacks    StackMaintainer
	tracker   StackTracker
	regions   RegionLister
	observer  observability.Observer
	apiURL    string
}

// NewUpdater creates an Updater for stacks that report to apiURL.
func NewUpdater(directory AccountDirectory, creds CredentialSource, stacks StackMaintainer, tracker StackTracker, regions RegionLister, observer observability.Observer, apiURL string) *Updater {
	if observer == nil {
		observer = observability.Discard()
	}
	return &Updater{
		directory: directory,
		creds:     creds,
		stacks:    stacks,
		tracker:   tracker,
		regions:   regions,
		observer:  observer,
		apiURL:    apiURL,
	}
}

// Run updates the selected accounts. Without an allowlist every active
// member is updated.
func (u *Updater) Run(ctx context.Context, opts UpdateOptions) (*UpdateRun, error) {
	accounts, err := u.directory.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate organization accounts: %w", err)
	}
	enabled, err := u.regions.EnabledRegions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled regions: %w", err)
	}

	targets, skipped := selectTargets(accounts, opts.Allowlist)
	u.observer.Printf("accounts to be updated: %d", len(targets))

	results := make([]UpdateResult, len(targets))
	tasks := make([]func(context.Context), len(targets))
	for i, acct := range targets {
		tasks[i] = func(ctx context.Context) {
			results[i] = u.update(ctx, acct, enabled, opts)
		}
	}
	runPool(ctx, tasks, opts.Parallel)

	for _, s := range skipped {
		results = append(results, UpdateResult{AccountID: s.AccountID, Name: s.Name, Err: s.Err})
	}
	return &UpdateRun{Results: results, DryRun: opts.DryRun}, nil
}

func (u *Updater) update(ctx context.Context, acct awscloud.OrgAccount, enabled []string, opts UpdateOptions) UpdateResult {
	res := UpdateResult{AccountID: acct.ID, Name: acct.Name}
	obs := observability.ForAccount(u.observer, acct.ID)

	cfg, err := u.creds.Credentials(ctx, acct.ID)
	if err != nil {
		res.Err = err
		obs.Event(observability.Event{Type: observability.EventAccountFailed, Message: err.Error()})
		return res
	}

	var mu sync.Mutex
	tasks := make([]async.Task, 0, len(enabled))
	for _, region := range enabled {
		tasks = append(tasks, async.Task{
			Name: region,
			Func: func(ctx context.Context) error {
				stacks, err := u.stacks.PlatformStacks(ctx, cfg, region, u.apiURL)
				if err != nil {
					return err
				}
				var merr *multierror.Error
				for _, st := range stacks {
					if st.Nested() {
						continue
					}
					out, ok := u.updateStack(ctx, obs, acct.ID, cfg, region, st, opts)
					if !ok {
						continue
					}
					if out.Err != nil {
						merr = multierror.Append(merr, fmt.Errorf("%s: %w", st.Name, out.Err))
					}
					mu.Lock()
					res.Stacks = append(res.Stacks, out)
					mu.Unlock()
				}
				return merr.ErrorOrNil()
			},
		})
	}
	if err := async.Errors(async.Run(ctx, tasks, opts.RegionWorkers)); err != nil {
		res.Err = fmt.Errorf("account %s: %w", acct.ID, err)
		obs.Event(observability.Event{Type: observability.EventAccountFailed, Message: res.Err.Error()})
	} else {
		obs.Event(observability.Event{
			Type:    observability.EventAccountCompleted,
			Message: fmt.Sprintf("%d platform stacks checked", len(res.Stacks)),
		})
	}
	slices.SortFunc(res.Stacks, func(a, b StackUpdate) int {
		return strings.Compare(a.Region+"/"+a.Name, b.Region+"/"+b.Name)
	})
	return res
}

// updateStack handles one root stack. It reports false for stacks whose
// status neither allows an update nor a continued rollback.
func (u *Updater) updateStack(ctx context.Context, obs observability.Observer, accountID string, cfg aws.Config, region string, st awscloud.Stack, opts UpdateOptions) (StackUpdate, bool) {
	out := StackUpdate{Region: region, Name: st.Name}
	rollback := st.Status == statusRollbackFailed
	if !rollback && !slices.Contains(updatableStatuses, st.Status) {
		obs.Printf("skipping %s in %s with status %s", st.Name, region, st.Status)
		return out, false
	}
	if opts.DryRun {
		out.Action = ActionPlanned
		out.RolledBack = rollback
		return out, true
	}

	spec := deploy.JobSpec{Kind: deploy.KindUpdate, Name: st.Name, AccountID: accountID, Region: region, Config: cfg}
	fail := func(err error) (StackUpdate, bool) {
		out.Action = ActionFailed
		out.Err = err
		observability.LogStackFailed(obs, region, st.Name, err)
		return out, true
	}

	if rollback {
		obs.Event(observability.Event{
			Type:     observability.EventStackRollingBack,
			Resource: st.Name,
			Message:  "continuing failed rollback",
			Fields:   map[string]string{"region": region},
		})
		if err := u.stacks.ContinueRollback(ctx, cfg, region, st.ID); err != nil {
			return fail(err)
		}
		if _, err := u.tracker.Track(ctx, spec, st.ID, deploy.OperationRollback, opts.StackTimeout); err != nil {
			return fail(err)
		}
		out.RolledBack = true
	}

	obs.Event(observability.Event{
		Type:     observability.EventStackUpdating,
		Resource: st.Name,
		Message:  "re-applying previous template",
		Fields:   map[string]string{"region": region},
	})
	changed, err := u.stacks.Update(ctx, cfg, region, st)
	if err != nil {
		return fail(err)
	}
	if !changed {
		out.Action = ActionUnchanged
		return out, true
	}
	c, err := u.tracker.Track(ctx, spec, st.ID, deploy.OperationUpdate, opts.StackTimeout)
	if err != nil {
		return fail(err)
	}
	out.Action = ActionUpdated
	observability.LogStackCompleted(obs, region, st.Name, c.Elapsed)
	return out, true
}
