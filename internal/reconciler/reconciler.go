// Package reconciler converges one organization account with its
// monitoring integration.
//
// Each call to [Reconciler.Reconcile] reads the account's control-plane
// record fresh, classifies it and applies only the actions needed to reach
// the desired state: register the account, deploy the initial stack,
// commit the region set and deploy one collection stack per region that
// lacks one. Region sets are only ever grown. A failure at any step ends
// that account's reconciliation and is returned in its [Result].
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"k8s.io/utils/clock"

	"github.com/imamik/orgsync/internal/controlplane"
	"github.com/imamik/orgsync/internal/deploy"
	"github.com/imamik/orgsync/internal/metrics"
	"github.com/imamik/orgsync/internal/observability"
	"github.com/imamik/orgsync/internal/platform/awscloud"
	"github.com/imamik/orgsync/internal/regions"
)

// ControlPlane is the subset of the control-plane client the reconciler
// uses.
type ControlPlane interface {
	GetAccount(ctx context.Context, cloudAccountID string) (*controlplane.Account, error)
	CreateAccount(ctx context.Context, cloudAccountID string, regions []string, displayName string) (bool, error)
	EditRegions(ctx context.Context, cloudAccountID string, regions []string) (*controlplane.Account, error)
}

// StatusWaiter waits for account status transitions.
type StatusWaiter interface {
	WaitForStatus(ctx context.Context, cloudAccountID string, timeout time.Duration) (controlplane.Status, error)
	WaitForReady(ctx context.Context, cloudAccountID string, timeout time.Duration) (controlplane.Status, error)
}

// CredentialSource issues configs scoped to one account.
type CredentialSource interface {
	Credentials(ctx context.Context, accountID string) (aws.Config, error)
}

// RegionProbe detects the regions an account runs workloads in.
type RegionProbe interface {
	ActiveRegions(ctx context.Context, accountID string, cfg aws.Config, home string) ([]string, error)
}

// Deployer runs one stack to completion.
type Deployer interface {
	Run(ctx context.Context, spec deploy.JobSpec, timeout time.Duration) (deploy.Completion, error)
}

// Deps are the collaborators of a Reconciler.
type Deps struct {
	ControlPlane ControlPlane
	Waiter       StatusWaiter
	Credentials  CredentialSource
	Probe        RegionProbe
	Deployer     Deployer
	Observer     observability.Observer
	Clock        clock.Clock
}

// AuxStack is an optional stack deployed after the collection stacks.
type AuxStack struct {
	Enabled     bool
	TemplateURL string
	// Regions restricts the stack to these regions. Empty means every
	// region that received a collection stack.
	Regions []string
}

// Options configures every reconciliation of a run.
type Options struct {
	RunID string
	Tags  []awscloud.Tag
	// Regions overrides region detection for every account.
	Regions []string

	AuditLogs   AuxStack
	Remediation AuxStack

	StackTimeout      time.Duration
	StatusTimeout     time.Duration
	ConnectionTimeout time.Duration
	RegionWorkers     int

	// DryRun computes the plan without mutating anything.
	DryRun bool
}

// Target is one account to reconcile.
type Target struct {
	AccountID string
	// Name is the organization account name.
	Name string
	// DisplayName overrides Name as the control-plane display name.
	DisplayName string
	// Regions overrides Options.Regions for this account.
	Regions []string
}

func (t Target) displayName() string {
	if t.DisplayName != "" {
		return t.DisplayName
	}
	return t.Name
}

// Reconciler converges accounts. It is safe for concurrent use; each
// Reconcile call keeps its state on the stack.
type Reconciler struct {
	cp       ControlPlane
	waiter   StatusWaiter
	creds    CredentialSource
	probe    RegionProbe
	deployer Deployer
	observer observability.Observer
	clock    clock.Clock
	opts     Options
}

// New creates a Reconciler.
func New(deps Deps, opts Options) *Reconciler {
	if deps.Observer == nil {
		deps.Observer = observability.Discard()
	}
	if deps.Clock == nil {
		deps.Clock = clock.RealClock{}
	}
	if opts.StackTimeout <= 0 {
		opts.StackTimeout = 4 * time.Minute
	}
	if opts.StatusTimeout <= 0 {
		opts.StatusTimeout = 5 * time.Minute
	}
	if opts.ConnectionTimeout <= 0 {
		opts.ConnectionTimeout = 10 * time.Minute
	}
	if opts.RegionWorkers <= 0 {
		opts.RegionWorkers = 8
	}
	return &Reconciler{
		cp:       deps.ControlPlane,
		waiter:   deps.Waiter,
		creds:    deps.Credentials,
		probe:    deps.Probe,
		deployer: deps.Deployer,
		observer: deps.Observer,
		clock:    deps.Clock,
		opts:     opts,
	}
}

// Reconcile converges one account and reports what happened. It never
// panics on provider or control-plane errors; they are returned in the
// Result.
func (r *Reconciler) Reconcile(ctx context.Context, target Target) Result {
	start := r.clock.Now()
	run := &accountRun{
		Reconciler: r,
		target:     target,
		obs:        observability.ForAccount(r.observer, target.AccountID),
		res:        &Result{AccountID: target.AccountID, Name: target.Name},
	}

	run.obs.Event(observability.Event{Type: observability.EventAccountStarted, Message: "starting integration"})

	res := run.res
	if err := run.execute(ctx); err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		run.obs.Event(observability.Event{
			Type:    observability.EventAccountFailed,
			Message: err.Error(),
		})
	} else {
		run.obs.Event(observability.Event{
			Type:    observability.EventAccountCompleted,
			Message: res.Outcome.String(),
		})
	}

	res.Duration = r.clock.Since(start)
	metrics.RecordAccount(res.Outcome.String(), res.Duration, len(res.RegionsAdded))
	return *res
}

// accountRun is the state of one Reconcile call.
type accountRun struct {
	*Reconciler
	target Target
	obs    observability.Observer
	res    *Result

	cfg  aws.Config
	home string
}

func (a *accountRun) id() string {
	return a.target.AccountID
}

func (a *accountRun) execute(ctx context.Context) error {
	observability.LogStepStart(a.obs, StepCredentials, "resolving credentials")
	cfg, err := a.creds.Credentials(ctx, a.id())
	if err != nil {
		return newError(a.id(), StepCredentials, KindCredentials, err)
	}
	a.cfg = cfg
	a.home = cfg.Region
	if a.home == "" {
		a.home = awscloud.DefaultRegion
	}
	observability.LogStepComplete(a.obs, StepCredentials, "session initialized")

	a.obs.Printf("checking if integration already exists")
	account, err := a.cp.GetAccount(ctx, a.id())
	switch {
	case errors.Is(err, controlplane.ErrAccountNotFound):
		a.res.Status = controlplane.StatusUnknown
		if a.opts.DryRun {
			return a.plan(ctx, nil)
		}
		return a.firstTime(ctx, nil)
	case err != nil:
		return newError(a.id(), StepLookup, KindControlPlane, err)
	}

	a.res.Status = account.Status()
	switch account.Status() {
	case controlplane.StatusReady:
		a.obs.Printf("integration exists and is READY")
		if a.opts.DryRun {
			return a.plan(ctx, account)
		}
		return a.converge(ctx, account)
	case controlplane.StatusUninitialized:
		a.obs.Printf("integrated but uninitialized, resuming")
		if a.opts.DryRun {
			return a.plan(ctx, account)
		}
		return a.firstTime(ctx, account)
	default:
		return newError(a.id(), StepLookup, KindUnexpectedStatus,
			fmt.Errorf("%w: account is %s at the control plane, remove it and try again", ErrUnexpectedStatus, account.RawStatus))
	}
}

// firstTime registers the account when account is nil, then deploys the
// initial stack, commits regions and deploys collection stacks.
func (a *accountRun) firstTime(ctx context.Context, account *controlplane.Account) error {
	if account == nil {
		observability.LogStepStart(a.obs, StepCreateAccount, "creating account in the control plane")
		created, err := a.cp.CreateAccount(ctx, a.id(), []string{a.home}, a.target.displayName())
		var rejection error
		switch {
		case err != nil && !controlplane.IsAPIError(err):
			return newError(a.id(), StepCreateAccount, KindControlPlane, err)
		case !created:
			rejection = err
			a.obs.Printf("control plane did not create a new record (%v), continuing with the existing one", rejection)
		}
		account, err = a.cp.GetAccount(ctx, a.id())
		if err != nil {
			if rejection != nil {
				err = fmt.Errorf("%w (create refused: %v)", err, rejection)
			}
			return newError(a.id(), StepCreateAccount, KindControlPlane, err)
		}
		a.res.Status = account.Status()
		observability.LogStepComplete(a.obs, StepCreateAccount, "account created")
	}
	initial := account.CloudRegions

	if err := a.initialStack(ctx, account); err != nil {
		return err
	}

	desired, err := a.desiredRegions(ctx)
	if err != nil {
		return err
	}
	committed := regions.Union(account.CloudRegions, desired)

	account, err = a.commitRegions(ctx, committed)
	if err != nil {
		return err
	}
	a.res.RegionsAdded = regions.Missing(committed, initial)

	if err := a.deployGap(ctx, account, committed); err != nil {
		return err
	}
	a.res.Outcome = OutcomeIntegrated
	return nil
}

// converge handles an account that is already READY.
func (a *accountRun) converge(ctx context.Context, account *controlplane.Account) error {
	actual := account.CloudRegions
	desired, err := a.desiredRegions(ctx)
	if err != nil {
		return err
	}
	committed := regions.Union(actual, desired)

	if regions.IsSubset(desired, actual) {
		a.obs.Printf("regions are up to date")
	} else {
		added := regions.Missing(desired, actual)
		a.obs.Printf("regions differ, adding %v", added)
		account, err = a.commitRegions(ctx, committed)
		if err != nil {
			return err
		}
		a.res.RegionsAdded = added
	}

	if err := a.deployGap(ctx, account, committed); err != nil {
		return err
	}

	if len(a.res.RegionsAdded) == 0 && len(a.res.Deployed) == 0 {
		a.res.Outcome = OutcomeAlreadyConverged
	} else {
		a.res.Outcome = OutcomeIntegrated
	}
	return nil
}

// desiredRegions resolves the target region set: the account override,
// then the run override, then workload detection.
func (a *accountRun) desiredRegions(ctx context.Context) ([]string, error) {
	if len(a.target.Regions) > 0 {
		return regions.Normalize(a.target.Regions), nil
	}
	if len(a.opts.Regions) > 0 {
		return regions.Normalize(a.opts.Regions), nil
	}
	a.obs.Printf("detecting active regions")
	active, err := a.probe.ActiveRegions(ctx, a.id(), a.cfg, a.home)
	if err != nil {
		return nil, newError(a.id(), StepRegions, KindRegionProbe, err)
	}
	a.obs.Printf("active regions are %v", active)
	return active, nil
}
