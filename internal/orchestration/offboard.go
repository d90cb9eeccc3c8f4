package orchestration

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/hashicorp/go-multierror"

	"github.com/imamik/orgsync/internal/observability"
	"github.com/imamik/orgsync/internal/platform/awscloud"
	"github.com/imamik/orgsync/internal/util/async"
)

// CredentialSource issues configs scoped to one account.
type CredentialSource interface {
	Credentials(ctx context.Context, accountID string) (aws.Config, error)
}

// StackCatalog finds and deletes platform stacks.
type StackCatalog interface {
	PlatformStacks(ctx context.Context, cfg aws.Config, region, apiURL string) ([]awscloud.Stack, error)
	Delete(ctx context.Context, cfg aws.Config, region, name string) error
}

// RegionLister lists the organization's enabled regions.
type RegionLister interface {
	EnabledRegions(ctx context.Context) ([]string, error)
}

// OffboardOptions selects the accounts to offboard.
type OffboardOptions struct {
	Parallel      int
	Allowlist     []string
	RegionWorkers int
	// DryRun lists matching stacks without deleting them.
	DryRun bool
}

// OffboardResult is the outcome for one account.
type OffboardResult struct {
	AccountID string
	Name      string
	// Stacks lists "region/name" of every stack deleted, or matched in a
	// dry run.
	Stacks []string
	Err    error
}

// OffboardRun aggregates an offboarding pass.
type OffboardRun struct {
	Results []OffboardResult
	DryRun  bool
}

// Failed returns the accounts that did not offboard cleanly.
func (r *OffboardRun) Failed() []OffboardResult {
	var failed []OffboardResult
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// Offboarder deletes every platform stack this environment deployed.
type Offboarder struct {
	directory AccountDirectory
	creds     CredentialSource
	stacks    StackCatalog
	regions   RegionLister
	observer  observability.Observer
	apiURL    string
}

// NewOffboarder creates an Offboarder for stacks that report to apiURL.
func NewOffboarder(directory AccountDirectory, creds CredentialSource, stacks StackCatalog, regions RegionLister, observer observability.Observer, apiURL string) *Offboarder {
	if observer == nil {
		observer = observability.Discard()
	}
	return &Offboarder{
		directory: directory,
		creds:     creds,
		stacks:    stacks,
		regions:   regions,
		observer:  observer,
		apiURL:    apiURL,
	}
}

// Run offboards the selected accounts. Accounts not active in the
// organization are reported as failures.
func (o *Offboarder) Run(ctx context.Context, opts OffboardOptions) (*OffboardRun, error) {
	accounts, err := o.directory.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate organization accounts: %w", err)
	}
	enabled, err := o.regions.EnabledRegions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled regions: %w", err)
	}

	targets, skipped := selectTargets(accounts, opts.Allowlist)
	o.observer.Printf("accounts to be offboarded: %d", len(targets))

	results := make([]OffboardResult, len(targets))
	tasks := make([]func(context.Context), len(targets))
	for i, acct := range targets {
		tasks[i] = func(ctx context.Context) {
			results[i] = o.offboard(ctx, acct, enabled, opts)
		}
	}
	runPool(ctx, tasks, opts.Parallel)

	for _, s := range skipped {
		results = append(results, OffboardResult{AccountID: s.AccountID, Name: s.Name, Err: s.Err})
	}
	return &OffboardRun{Results: results, DryRun: opts.DryRun}, nil
}

func (o *Offboarder) offboard(ctx context.Context, acct awscloud.OrgAccount, enabled []string, opts OffboardOptions) OffboardResult {
	res := OffboardResult{AccountID: acct.ID, Name: acct.Name}
	obs := observability.ForAccount(o.observer, acct.ID)

	cfg, err := o.creds.Credentials(ctx, acct.ID)
	if err != nil {
		res.Err = err
		obs.Event(observability.Event{Type: observability.EventAccountFailed, Message: err.Error()})
		return res
	}
	obs.Printf("deleting platform stacks from all regions")

	var mu sync.Mutex
	tasks := make([]async.Task, 0, len(enabled))
	for _, region := range enabled {
		tasks = append(tasks, async.Task{
			Name: region,
			Func: func(ctx context.Context) error {
				stacks, err := o.stacks.PlatformStacks(ctx, cfg, region, o.apiURL)
				if err != nil {
					return err
				}
				if len(stacks) == 0 {
					return nil
				}
				var merr *multierror.Error
				for _, st := range stacks {
					if !opts.DryRun {
						obs.Event(observability.Event{
							Type:     observability.EventStackDeleting,
							Resource: st.Name,
							Message:  "stack began deleting",
							Fields:   map[string]string{"region": region},
						})
						if err := o.stacks.Delete(ctx, cfg, region, st.Name); err != nil {
							merr = multierror.Append(merr, err)
							continue
						}
					}
					mu.Lock()
					res.Stacks = append(res.Stacks, region+"/"+st.Name)
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
			Message: fmt.Sprintf("%d platform stacks removed", len(res.Stacks)),
		})
	}
	slices.Sort(res.Stacks)
	return res
}
